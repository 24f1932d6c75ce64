package discovery

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polarismesh/polaris-go/internal/transport"
	"github.com/polarismesh/polaris-go/pkg/model"
	"github.com/polarismesh/polaris-go/pkg/polerr"
)

type fakeConnector struct {
	transport.ServerConnector
	mu             sync.Mutex
	registered     []*transport.RegisterInstanceRequest
	deregistered   []*transport.DeregisterInstanceRequest
	heartbeatCount int32
}

func (f *fakeConnector) RegisterInstance(_ context.Context, req *transport.RegisterInstanceRequest) (*transport.RegisterInstanceResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, req)
	return &transport.RegisterInstanceResponse{InstanceID: "inst-1"}, nil
}

func (f *fakeConnector) DeregisterInstance(_ context.Context, req *transport.DeregisterInstanceRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deregistered = append(f.deregistered, req)
	return nil
}

func (f *fakeConnector) Heartbeat(context.Context, *transport.HeartbeatRequest) error {
	atomic.AddInt32(&f.heartbeatCount, 1)
	return nil
}

func TestRegisterReturnsInstanceID(t *testing.T) {
	conn := &fakeConnector{}
	p := NewProvider(conn, time.Second, nil)
	resp, err := p.Register(context.Background(), model.InstanceRegisterRequest{
		Service: model.ServiceKey{Namespace: "ns", Service: "svc"},
		Host:    "10.0.0.1",
		Port:    8080,
	})
	require.NoError(t, err)
	assert.Equal(t, "inst-1", resp.InstanceID)
	assert.Equal(t, 0, p.ActiveHeartbeats())
}

func TestRegisterWithAutoHeartbeatStartsOneTaskPerBeatKey(t *testing.T) {
	conn := &fakeConnector{}
	p := NewProvider(conn, 20*time.Millisecond, nil)
	req := model.InstanceRegisterRequest{
		Service:       model.ServiceKey{Namespace: "ns", Service: "svc"},
		Host:          "10.0.0.1",
		Port:          8080,
		TTL:           1,
		AutoHeartbeat: true,
	}
	_, err := p.Register(context.Background(), req)
	require.NoError(t, err)
	_, err = p.Register(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, p.ActiveHeartbeats())
	_ = p.Close()
}

type flakyConnector struct {
	transport.ServerConnector
	mu          sync.Mutex
	failures    int
	failsLeft   int
	err         error
	registerCalls int
}

func (f *flakyConnector) RegisterInstance(_ context.Context, _ *transport.RegisterInstanceRequest) (*transport.RegisterInstanceResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registerCalls++
	if f.failsLeft > 0 {
		f.failsLeft--
		f.failures++
		return nil, f.err
	}
	return &transport.RegisterInstanceResponse{InstanceID: "inst-1"}, nil
}

func TestRegisterRetriesNetworkErrorsUntilSuccess(t *testing.T) {
	conn := &flakyConnector{failsLeft: 2, err: polerr.Network(assert.AnError)}
	p := NewProviderWithRetry(conn, time.Second, 3, time.Millisecond, nil)

	resp, err := p.Register(context.Background(), model.InstanceRegisterRequest{
		Service: model.ServiceKey{Namespace: "ns", Service: "svc"},
		Host:    "10.0.0.1",
		Port:    8080,
	})
	require.NoError(t, err)
	assert.Equal(t, "inst-1", resp.InstanceID)
	assert.Equal(t, 3, conn.registerCalls)
}

func TestRegisterGivesUpAfterMaxRetryTimes(t *testing.T) {
	conn := &flakyConnector{failsLeft: 10, err: polerr.Network(assert.AnError)}
	p := NewProviderWithRetry(conn, time.Second, 2, time.Millisecond, nil)

	_, err := p.Register(context.Background(), model.InstanceRegisterRequest{
		Service: model.ServiceKey{Namespace: "ns", Service: "svc"},
		Host:    "10.0.0.1",
		Port:    8080,
	})
	require.Error(t, err)
	assert.Equal(t, 3, conn.registerCalls) // initial attempt + 2 retries
}

func TestRegisterDoesNotRetryNonNetworkErrors(t *testing.T) {
	conn := &flakyConnector{failsLeft: 10, err: polerr.Argument("bad request")}
	p := NewProviderWithRetry(conn, time.Second, 3, time.Millisecond, nil)

	_, err := p.Register(context.Background(), model.InstanceRegisterRequest{
		Service: model.ServiceKey{Namespace: "ns", Service: "svc"},
		Host:    "10.0.0.1",
		Port:    8080,
	})
	require.Error(t, err)
	assert.Equal(t, 1, conn.registerCalls)
}

func TestHeartbeatLoopCallsConnectorPeriodically(t *testing.T) {
	conn := &fakeConnector{}
	p := NewProvider(conn, 10*time.Millisecond, nil)
	req := model.InstanceRegisterRequest{
		Service:       model.ServiceKey{Namespace: "ns", Service: "svc"},
		Host:          "10.0.0.1",
		Port:          8080,
		TTL:           1,
		AutoHeartbeat: true,
	}
	_, err := p.Register(context.Background(), req)
	require.NoError(t, err)

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&conn.heartbeatCount) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for heartbeat")
		case <-time.After(5 * time.Millisecond):
		}
	}
	_ = p.Close()
}

func TestDeregisterCancelsHeartbeatTask(t *testing.T) {
	conn := &fakeConnector{}
	p := NewProvider(conn, 10*time.Millisecond, nil)
	svc := model.ServiceKey{Namespace: "ns", Service: "svc"}
	req := model.InstanceRegisterRequest{Service: svc, Host: "10.0.0.1", Port: 8080, TTL: 1, AutoHeartbeat: true}
	_, err := p.Register(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 1, p.ActiveHeartbeats())

	err = p.Deregister(context.Background(), model.InstanceDeregisterRequest{Service: svc, Host: "10.0.0.1", Port: 8080})
	require.NoError(t, err)
	assert.Equal(t, 0, p.ActiveHeartbeats())
}

func TestDeregisterIsIdempotent(t *testing.T) {
	conn := &fakeConnector{}
	p := NewProvider(conn, time.Second, nil)
	svc := model.ServiceKey{Namespace: "ns", Service: "svc"}
	req := model.InstanceDeregisterRequest{Service: svc, Host: "10.0.0.1", Port: 8080}

	require.NoError(t, p.Deregister(context.Background(), req))
	require.NoError(t, p.Deregister(context.Background(), req))
}

type fakeAction struct {
	healthy atomic.Bool
}

func (a *fakeAction) DoHealthcheck(context.Context) bool {
	return a.healthy.Load()
}

func TestLosslessRegistrarBecomesReadyAfterHealthcheckPasses(t *testing.T) {
	conn := &fakeConnector{}
	p := NewProvider(conn, time.Second, nil)
	action := &fakeAction{}
	reg := NewRegistrar(p, LosslessConfig{
		DelayRegisterInterval: 5 * time.Millisecond,
		HealthCheckInterval:   5 * time.Millisecond,
	}, action, nil)

	_, err := reg.Register(context.Background(), model.InstanceRegisterRequest{
		Service: model.ServiceKey{Namespace: "ns", Service: "svc"},
		Host:    "10.0.0.1",
		Port:    8080,
	})
	require.NoError(t, err)
	assert.False(t, reg.Ready())

	action.healthy.Store(true)
	deadline := time.After(2 * time.Second)
	for !reg.Ready() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for readiness")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestLosslessRegistrarDeregisterMarksNotReady(t *testing.T) {
	conn := &fakeConnector{}
	p := NewProvider(conn, time.Second, nil)
	reg := NewRegistrar(p, LosslessConfig{DelayRegisterInterval: time.Millisecond}, nil, nil)
	reg.ready.Store(true)

	svc := model.ServiceKey{Namespace: "ns", Service: "svc"}
	err := reg.Deregister(context.Background(), model.InstanceDeregisterRequest{Service: svc, Host: "10.0.0.1", Port: 8080})
	require.NoError(t, err)
	assert.False(t, reg.Ready())
}
