package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polarismesh/polaris-go/internal/transport"
	"github.com/polarismesh/polaris-go/pkg/model"
)

// fakeConnector implements enough of transport.ServerConnector to drive
// ResourceCache's subscription path without a real network connection.
type fakeConnector struct {
	transport.ServerConnector
	events chan *transport.DiscoverResponse
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{events: make(chan *transport.DiscoverResponse, 8)}
}

func (f *fakeConnector) Discover(ctx context.Context, req *transport.DiscoverRequest) (<-chan *transport.DiscoverResponse, error) {
	return f.events, nil
}

func instancesPayload(revision string) []byte {
	si := model.NewServiceInstances(model.ServiceInfo{Service: model.ServiceKey{Namespace: "ns", Service: "svc"}, Revision: revision}, nil, revision)
	data, _ := json.Marshal(si)
	return data
}

func TestResourceCacheGetPullsOnMiss(t *testing.T) {
	conn := newFakeConnector()
	c := New(conn, nil, Config{PullOnMissTimeout: time.Second}, nil)
	key := model.ResourceEventKey{Namespace: "ns", EventType: model.EventInstance, GroupOrSvc: "svc"}

	go func() {
		time.Sleep(5 * time.Millisecond)
		conn.events <- &transport.DiscoverResponse{Key: key, Revision: "1", Payload: instancesPayload("1")}
	}()

	value, err := c.Get(context.Background(), key, time.Second)
	require.NoError(t, err)
	si, ok := value.(*model.ServiceInstances)
	require.True(t, ok)
	assert.Equal(t, "1", si.Revision)
}

func TestResourceCacheGetTimesOutWithoutData(t *testing.T) {
	conn := newFakeConnector()
	c := New(conn, nil, Config{PullOnMissTimeout: 20 * time.Millisecond}, nil)
	key := model.ResourceEventKey{Namespace: "ns", EventType: model.EventInstance, GroupOrSvc: "svc"}

	_, err := c.Get(context.Background(), key, 20*time.Millisecond)
	assert.Error(t, err)
}

func TestResourceCacheFailsOverToDisk(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFileBackend(dir)
	require.NoError(t, err)

	key := model.ResourceEventKey{Namespace: "ns", EventType: model.EventInstance, GroupOrSvc: "svc"}
	data, _ := json.Marshal(persistValue{Revision: "5", Payload: instancesPayload("5")})
	require.NoError(t, backend.Save(context.Background(), key.CacheKey(), data))

	conn := newFakeConnector()
	c := New(conn, backend, Config{PullOnMissTimeout: 50 * time.Millisecond}, nil)

	value, err := c.Get(context.Background(), key, 50*time.Millisecond)
	require.NoError(t, err)
	si := value.(*model.ServiceInstances)
	assert.Equal(t, "5", si.Revision)
	assert.True(t, c.itemFor(key).LoadedFromFile())
}
