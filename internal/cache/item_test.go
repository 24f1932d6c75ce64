package cache

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polarismesh/polaris-go/pkg/model"
)

func testKey() model.ResourceEventKey {
	return model.ResourceEventKey{Namespace: "ns", EventType: model.EventInstance, GroupOrSvc: "svc"}
}

func TestCacheItemUpdateRejectsOlderRevision(t *testing.T) {
	item := newCacheItem(testKey())

	assert.True(t, item.Update("v2", "2", false))
	assert.False(t, item.Update("v1", "1", false), "an older revision must not replace a newer one")

	value, revision, ok := item.Get()
	require.True(t, ok)
	assert.Equal(t, "v2", value)
	assert.Equal(t, "2", revision)
}

func TestCacheItemRevisionMonotonicitySequence(t *testing.T) {
	item := newCacheItem(testKey())
	var notifications int32
	item.AddListener(func(model.ResourceEventKey, interface{}, string) {
		atomic.AddInt32(&notifications, 1)
	})

	for _, rev := range []string{"r1", "r2", "r1"} {
		item.Update("value-"+rev, rev, false)
	}
	time.Sleep(20 * time.Millisecond)

	_, revision, _ := item.Get()
	assert.Equal(t, "r2", revision)
	assert.Equal(t, int32(2), atomic.LoadInt32(&notifications), "only the two accepted updates should notify")
}

func TestCacheItemWaitInitializedTimesOut(t *testing.T) {
	item := newCacheItem(testKey())
	ok := item.WaitInitialized(20 * time.Millisecond)
	assert.False(t, ok)
}

func TestCacheItemWaitInitializedReturnsOnUpdate(t *testing.T) {
	item := newCacheItem(testKey())
	go func() {
		time.Sleep(5 * time.Millisecond)
		item.Update("value", "1", false)
	}()
	ok := item.WaitInitialized(time.Second)
	assert.True(t, ok)
}

func TestCacheItemLoadedFromFileFlag(t *testing.T) {
	item := newCacheItem(testKey())
	item.Update("disk-value", "1", true)
	assert.True(t, item.LoadedFromFile())

	item.Update("live-value", "2", false)
	assert.False(t, item.LoadedFromFile())
}
