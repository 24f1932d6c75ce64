package engine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polarismesh/polaris-go/internal/discovery"
	"github.com/polarismesh/polaris-go/internal/transport"
	"github.com/polarismesh/polaris-go/pkg/config"
	"github.com/polarismesh/polaris-go/pkg/model"
)

// fakeConnector serves a single in-memory instance snapshot over Discover
// and otherwise records the calls made against it.
type fakeConnector struct {
	transport.ServerConnector
	instances *model.ServiceInstances
	events    chan *transport.DiscoverResponse

	registered int
}

func (f *fakeConnector) RegisterInstance(context.Context, *transport.RegisterInstanceRequest) (*transport.RegisterInstanceResponse, error) {
	f.registered++
	return &transport.RegisterInstanceResponse{InstanceID: "inst-1"}, nil
}

func (f *fakeConnector) DeregisterInstance(context.Context, *transport.DeregisterInstanceRequest) error {
	return nil
}

func (f *fakeConnector) Heartbeat(context.Context, *transport.HeartbeatRequest) error { return nil }

func (f *fakeConnector) Discover(ctx context.Context, req *transport.DiscoverRequest) (<-chan *transport.DiscoverResponse, error) {
	if req.Key.EventType != model.EventInstance {
		ch := make(chan *transport.DiscoverResponse)
		close(ch)
		return ch, nil
	}
	return f.events, nil
}

func (f *fakeConnector) Close() error { return nil }

func testConfig() *config.Configuration {
	cfg := config.Default()
	cfg.Global.ServerConnectors = map[string]config.ServerConnectorConfig{
		"grpc": {Addresses: []string{"127.0.0.1:8091"}, Protocol: "grpc", ConnectTimeout: time.Second},
	}
	cfg.Global.LocalCache.PersistEnable = false
	cfg.Global.API.Timeout = 50 * time.Millisecond
	return cfg
}

func instancesPayload(t *testing.T, svc model.ServiceKey) []byte {
	t.Helper()
	si := model.NewServiceInstances(model.ServiceInfo{Service: svc}, []*model.Instance{
		{ID: "i1", Service: svc, Host: "10.0.0.1", Port: 8080, Healthy: true, Weight: 100},
	}, "rev-1")
	data, err := json.Marshal(si)
	require.NoError(t, err)
	return data
}

func TestExtensionsBuildResolvesConfiguredPlugins(t *testing.T) {
	ext, err := Build(testConfig(), nil)
	require.NoError(t, err)
	defer ext.Destroy()

	_, err = ext.LoadBalancer("")
	require.NoError(t, err)
	_, err = ext.LoadBalancer("ringHash")
	require.NoError(t, err)
	_, err = ext.LoadBalancer("doesNotExist")
	assert.Error(t, err)
}

func TestExtensionsBuildFailsOnUnresolvedRouterName(t *testing.T) {
	cfg := testConfig()
	cfg.Consumer.ServiceRouter.CoreChain = []string{"noSuchRouter"}
	_, err := Build(cfg, nil)
	assert.Error(t, err)
}

func TestEngineGetInstancesAppliesRouterChain(t *testing.T) {
	svc := model.ServiceKey{Namespace: "ns", Service: "svc"}
	events := make(chan *transport.DiscoverResponse, 1)
	events <- &transport.DiscoverResponse{Key: model.ResourceEventKey{Namespace: "ns", EventType: model.EventInstance, GroupOrSvc: "svc"}, Revision: "rev-1", Payload: instancesPayload(t, svc)}

	cfg := testConfig()
	cfg.Consumer.ServiceRouter.BeforeChain = []string{"isolatedRouter"}
	cfg.Consumer.ServiceRouter.CoreChain = []string{}
	cfg.Consumer.ServiceRouter.AfterChain = []string{}

	conn := &fakeConnector{events: events}
	cm, err := transport.NewConnectionManager(cfg, nil)
	require.NoError(t, err)
	ext, err := buildExtensions(cfg, "fake", conn, cm, nil)
	require.NoError(t, err)
	defer ext.Destroy()

	eng := &Engine{ext: ext, log: ext.Log}
	out, err := eng.GetInstances(context.Background(), model.GetInstancesRequest{
		Service: svc,
		Timeout: 200 * time.Millisecond,
	})
	require.NoError(t, err)
	require.Len(t, out.Instances, 1)
	assert.Equal(t, "i1", out.Instances[0].ID)
}

func TestEngineRegisterInstanceRecordsPrometheusStats(t *testing.T) {
	conn := &fakeConnector{}
	svc := model.ServiceKey{Namespace: "ns", Service: "svc"}

	eng := &Engine{
		provider: discovery.NewProvider(conn, 0, nil),
		stats:    NewEngineStats(),
	}
	_, err := eng.RegisterInstance(context.Background(), model.InstanceRegisterRequest{Service: svc, Host: "10.0.0.1", Port: 8080})
	require.NoError(t, err)
	assert.Equal(t, 1, conn.registered)

	srv := httptest.NewServer(eng.Stats().Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `polaris_register_instance_total{namespace="ns",result="success",service="svc"} 1`)
}

func TestEngineNewLeavesStatsNilWithoutPrometheusReporter(t *testing.T) {
	eng, err := New(testConfig(), nil)
	require.NoError(t, err)
	defer eng.Destroy()

	assert.Nil(t, eng.Stats())
}

func TestSDKContextDestroyIsIdempotent(t *testing.T) {
	sdk, err := NewSDKContext(testConfig(), nil)
	require.NoError(t, err)

	require.NoError(t, sdk.Destroy())
	require.NoError(t, sdk.Destroy())
}
