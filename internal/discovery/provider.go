// Package discovery implements the provider-side register/deregister/
// heartbeat flows and their lossless variants.
package discovery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/polarismesh/polaris-go/internal/transport"
	"github.com/polarismesh/polaris-go/pkg/logging"
	"github.com/polarismesh/polaris-go/pkg/model"
	"github.com/polarismesh/polaris-go/pkg/polerr"
)

// Provider drives instance registration against a ServerConnector,
// managing at most one heartbeat task per beat_key per spec §5's
// at-most-once property.
type Provider struct {
	connector transport.ServerConnector
	log       *logging.Logger

	minRegisterInterval time.Duration
	maxRetryTimes       int
	retryInterval       time.Duration

	mu         sync.Mutex
	heartbeats map[string]context.CancelFunc
}

// NewProvider builds a Provider over connector. minRegisterInterval floors
// the auto-heartbeat period per spec §4.8. Register/deregister are not
// retried: it passes zero maxRetryTimes and retryInterval to
// NewProviderWithRetry.
func NewProvider(connector transport.ServerConnector, minRegisterInterval time.Duration, log *logging.Logger) *Provider {
	return NewProviderWithRetry(connector, minRegisterInterval, 0, 0, log)
}

// NewProviderWithRetry is NewProvider with explicit retry knobs.
func NewProviderWithRetry(connector transport.ServerConnector, minRegisterInterval time.Duration, maxRetryTimes int, retryInterval time.Duration, log *logging.Logger) *Provider {
	if log == nil {
		log = logging.Global()
	}
	return &Provider{
		connector:           connector,
		log:                 log,
		minRegisterInterval: minRegisterInterval,
		maxRetryTimes:       maxRetryTimes,
		retryInterval:       retryInterval,
		heartbeats:          make(map[string]context.CancelFunc),
	}
}

// withNetworkRetry retries fn up to p.maxRetryTimes times, at p.retryInterval
// apart, as long as it keeps failing with a network error; any other error
// (or a non-positive maxRetryTimes) stops the retry immediately.
func (p *Provider) withNetworkRetry(ctx context.Context, fn func() error) error {
	if p.maxRetryTimes <= 0 {
		return fn()
	}
	interval := p.retryInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), uint64(p.maxRetryTimes)), ctx)
	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		var polErr *polerr.PolarisError
		if !errors.As(err, &polErr) || polErr.Code != polerr.CodeNetwork {
			return backoff.Permanent(err)
		}
		return err
	}, bo)
}

// Register validates nothing beyond what the caller already has (the
// public façade is responsible for request validation), converts req to
// the wire shape, and registers it, retrying network errors per
// withNetworkRetry. When req.AutoHeartbeat is set it spawns a heartbeat
// task at interval ttl/2, floored at minRegisterInterval; concurrent
// registers for the same beat_key collapse onto one task.
func (p *Provider) Register(ctx context.Context, req model.InstanceRegisterRequest) (*model.InstanceRegisterResponse, error) {
	var resp *transport.RegisterInstanceResponse
	err := p.withNetworkRetry(ctx, func() error {
		var rpcErr error
		resp, rpcErr = p.connector.RegisterInstance(ctx, convertRegister(req))
		return rpcErr
	})
	if err != nil {
		return nil, err
	}
	result := &model.InstanceRegisterResponse{InstanceID: resp.InstanceID, Existed: resp.Existed}

	if req.AutoHeartbeat {
		p.startHeartbeat(req)
	}
	return result, nil
}

// Deregister cancels any heartbeat task for the instance's beat_key, then
// deregisters, retrying network errors per withNetworkRetry. Idempotent:
// deregistering an instance with no active heartbeat task, or one already
// deregistered server-side, is not an error on this side.
func (p *Provider) Deregister(ctx context.Context, req model.InstanceDeregisterRequest) error {
	beatKey := model.BeatKey(req.Service, req.Host, req.Port, req.VPCID)
	p.cancelHeartbeat(beatKey)
	return p.withNetworkRetry(ctx, func() error {
		return p.connector.DeregisterInstance(ctx, &transport.DeregisterInstanceRequest{
			Namespace: req.Service.Namespace,
			Service:   req.Service.Service,
			Host:      req.Host,
			Port:      int(req.Port),
			VPCID:     req.VPCID,
		})
	})
}

// Heartbeat sends one explicit liveness report, for callers not using
// auto_heartbeat.
func (p *Provider) Heartbeat(ctx context.Context, req model.InstanceHeartbeatRequest) error {
	return p.connector.Heartbeat(ctx, &transport.HeartbeatRequest{
		Namespace: req.Service.Namespace,
		Service:   req.Service.Service,
		Host:      req.Host,
		Port:      int(req.Port),
		VPCID:     req.VPCID,
	})
}

// Close cancels every outstanding heartbeat task. It does not deregister
// the instances; callers that want a clean shutdown should deregister
// explicitly first.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, cancel := range p.heartbeats {
		cancel()
		delete(p.heartbeats, key)
	}
	return nil
}

// ActiveHeartbeats reports how many beat_keys currently have a running
// heartbeat task, for tests and diagnostics.
func (p *Provider) ActiveHeartbeats() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.heartbeats)
}

func (p *Provider) startHeartbeat(req model.InstanceRegisterRequest) {
	beatKey := model.BeatKey(req.Service, req.Host, req.Port, req.VPCID)

	p.mu.Lock()
	if _, exists := p.heartbeats[beatKey]; exists {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.heartbeats[beatKey] = cancel
	p.mu.Unlock()

	interval := time.Duration(req.TTL) * time.Second / 2
	if interval < p.minRegisterInterval {
		interval = p.minRegisterInterval
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	go p.heartbeatLoop(ctx, beatKey, req, interval)
}

func (p *Provider) heartbeatLoop(ctx context.Context, beatKey string, req model.InstanceRegisterRequest, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	hbReq := &transport.HeartbeatRequest{
		Namespace: req.Service.Namespace,
		Service:   req.Service.Service,
		Host:      req.Host,
		Port:      int(req.Port),
		VPCID:     req.VPCID,
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.connector.Heartbeat(ctx, hbReq); err != nil {
				p.log.WithError(err).WithField("beat_key", beatKey).Warn("heartbeat failed")
			}
		}
	}
}

func (p *Provider) cancelHeartbeat(beatKey string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cancel, exists := p.heartbeats[beatKey]; exists {
		cancel()
		delete(p.heartbeats, beatKey)
	}
}

func convertRegister(req model.InstanceRegisterRequest) *transport.RegisterInstanceRequest {
	return &transport.RegisterInstanceRequest{
		Namespace: req.Service.Namespace,
		Service:   req.Service.Service,
		Host:      req.Host,
		Port:      int(req.Port),
		Protocol:  req.Protocol,
		VPCID:     req.VPCID,
		Weight:    int(req.Weight),
		Priority:  int(req.Priority),
		Version:   req.Version,
		Metadata:  req.Metadata,
		Healthy:   true,
		TTL:       req.TTL,
	}
}
