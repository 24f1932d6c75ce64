package discovery

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/polarismesh/polaris-go/pkg/logging"
	"github.com/polarismesh/polaris-go/pkg/model"
)

// LosslessActionProvider supplies the user-defined readiness probe that
// gates when a lossless-registered instance starts receiving traffic.
type LosslessActionProvider interface {
	DoHealthcheck(ctx context.Context) bool
}

// LosslessConfig configures delay/health-check timing for lossless
// register and deregister, mirroring pkg/config's provider.lossless group.
type LosslessConfig struct {
	Host                  string
	Port                  int
	DelayRegisterInterval time.Duration
	HealthCheckInterval   time.Duration
}

// Registrar wraps Provider with the lossless register/deregister sequence
// from spec §4.8: delay, poll the user's health check, then flip an
// in-process HTTP readiness endpoint; deregister reverses the order.
type Registrar struct {
	provider *Provider
	cfg      LosslessConfig
	action   LosslessActionProvider
	log      *logging.Logger

	ready atomic.Bool
	srv   *http.Server

	cancelProbe context.CancelFunc
}

// NewRegistrar builds a lossless Registrar over provider. action may be
// nil, in which case readiness is published immediately after the delay
// with no health-check polling.
func NewRegistrar(provider *Provider, cfg LosslessConfig, action LosslessActionProvider, log *logging.Logger) *Registrar {
	if log == nil {
		log = logging.Global()
	}
	return &Registrar{provider: provider, cfg: cfg, action: action, log: log}
}

// Register performs the underlying instance register, then starts the
// readiness status server and the background probe that will flip it
// ready once the health check passes.
func (r *Registrar) Register(ctx context.Context, req model.InstanceRegisterRequest) (*model.InstanceRegisterResponse, error) {
	resp, err := r.provider.Register(ctx, req)
	if err != nil {
		return nil, err
	}

	r.startStatusServer()

	probeCtx, cancel := context.WithCancel(context.Background())
	r.cancelProbe = cancel
	go r.waitUntilReady(probeCtx)

	return resp, nil
}

// Deregister marks not-ready, drains for DelayRegisterInterval so
// in-flight traffic routed before the flip completes, shuts the status
// server down, then deregisters.
func (r *Registrar) Deregister(ctx context.Context, req model.InstanceDeregisterRequest) error {
	r.ready.Store(false)
	if r.cancelProbe != nil {
		r.cancelProbe()
	}

	select {
	case <-time.After(r.cfg.DelayRegisterInterval):
	case <-ctx.Done():
	}

	if r.srv != nil {
		_ = r.srv.Shutdown(ctx)
	}
	return r.provider.Deregister(ctx, req)
}

// Ready reports the current readiness state, exposed mainly for tests.
func (r *Registrar) Ready() bool {
	return r.ready.Load()
}

func (r *Registrar) waitUntilReady(ctx context.Context) {
	select {
	case <-time.After(r.cfg.DelayRegisterInterval):
	case <-ctx.Done():
		return
	}

	if r.action == nil {
		r.ready.Store(true)
		return
	}

	interval := r.cfg.HealthCheckInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if r.action.DoHealthcheck(ctx) {
				r.ready.Store(true)
				return
			}
		}
	}
}

func (r *Registrar) startStatusServer() {
	if r.cfg.Host == "" && r.cfg.Port == 0 {
		return
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, _ *http.Request) {
		if r.ready.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	r.srv = &http.Server{Addr: fmt.Sprintf("%s:%d", r.cfg.Host, r.cfg.Port), Handler: mux}
	go func() {
		if err := r.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.log.WithError(err).Error("lossless status server stopped")
		}
	}()
}
