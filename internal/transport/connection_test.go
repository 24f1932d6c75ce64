package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionRefCountingDefersClose(t *testing.T) {
	c := newConnection("addr:1", nil)
	_, err := c.Acquire()
	require.NoError(t, err)

	c.MarkLazyDestroy()
	assert.Equal(t, ConnLazyDestroy, c.State(), "connection with an outstanding ref must not close immediately")

	c.Release()
	assert.Equal(t, ConnClosed, c.State())
}

func TestConnectionMarkLazyDestroyClosesImmediatelyWhenIdle(t *testing.T) {
	c := newConnection("addr:1", nil)
	c.MarkLazyDestroy()
	assert.Equal(t, ConnClosed, c.State())
}

func TestConnectionAcquireAfterCloseFails(t *testing.T) {
	c := newConnection("addr:1", nil)
	c.MarkLazyDestroy()
	_, err := c.Acquire()
	assert.Error(t, err)
}

func TestServerAddressNextHealthySkipsUnhealthy(t *testing.T) {
	sa := &ServerAddress{
		endpoints: []*endpoint{
			{addr: "a", healthy: true},
			{addr: "b", healthy: false},
			{addr: "c", healthy: true},
		},
		current:             0,
		maxConsecutiveFails: 3,
	}
	next := sa.nextHealthyLocked()
	assert.Equal(t, 2, next, "unhealthy endpoint b must be skipped")
}

func TestServerAddressMarkUnhealthyAfterThreshold(t *testing.T) {
	sa := &ServerAddress{
		endpoints:           []*endpoint{{addr: "a", healthy: true}},
		maxConsecutiveFails: 2,
	}
	ep := sa.endpoints[0]
	sa.markUnhealthy(ep)
	assert.True(t, ep.healthy)
	sa.markUnhealthy(ep)
	assert.False(t, ep.healthy, "endpoint should flip unhealthy at the configured threshold")

	sa.markHealthy(ep)
	assert.True(t, ep.healthy)
	assert.Equal(t, 0, ep.consecutiveFails)
}

func TestNewServerAddressRejectsEmptyAddresses(t *testing.T) {
	_, err := NewServerAddress(ServerAddressConfig{})
	assert.Error(t, err)
}
