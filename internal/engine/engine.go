package engine

import (
	"context"
	"time"

	"github.com/polarismesh/polaris-go/internal/breaker"
	"github.com/polarismesh/polaris-go/internal/cache"
	"github.com/polarismesh/polaris-go/internal/configflow"
	"github.com/polarismesh/polaris-go/internal/discovery"
	"github.com/polarismesh/polaris-go/internal/router"
	"github.com/polarismesh/polaris-go/internal/transport"
	"github.com/polarismesh/polaris-go/pkg/config"
	"github.com/polarismesh/polaris-go/pkg/logging"
	"github.com/polarismesh/polaris-go/pkg/model"
	"github.com/polarismesh/polaris-go/pkg/polerr"
)

// Engine is the single dispatch point every api façade calls through. It
// exposes four groups of synchronous-looking operations -
// register/deregister/heartbeat, get/list/watch, check/report and
// allocate_quota - and delegates each to the appropriate internal flow,
// per spec §4.1.
type Engine struct {
	ext        *Extensions
	provider   *discovery.Provider
	lossless   *discovery.Registrar
	invoke     *breaker.InvokeHandler
	configFlow *configflow.Flow
	stats      *EngineStats
	log        *logging.Logger
}

// New builds an Engine wired from cfg: container.register-all, resolve
// connector names, locate plugins by name, construct the consumer router
// chain, build the cache, wire the config filter, and start background
// loops. Any unresolved plugin name surfaces as a fatal init error. A
// "prometheus" entry in global.stat_reporter.chain turns on EngineStats.
func New(cfg *config.Configuration, log *logging.Logger) (*Engine, error) {
	if log == nil {
		log = logging.Global()
	}
	ext, err := Build(cfg, log)
	if err != nil {
		return nil, err
	}

	provider := discovery.NewProviderWithRetry(ext.Connector, cfg.Provider.MinRegisterInterval,
		cfg.Global.API.MaxRetryTimes, cfg.Global.API.RetryInterval, log)

	var lossless *discovery.Registrar
	if cfg.Provider.Lossless.Enable {
		lossless = discovery.NewRegistrar(provider, discovery.LosslessConfig{
			Host:                  cfg.Provider.Lossless.Host,
			Port:                  cfg.Provider.Lossless.Port,
			DelayRegisterInterval: cfg.Provider.Lossless.DelayRegisterInterval,
			HealthCheckInterval:   cfg.Provider.Lossless.HealthCheckInterval,
		}, nil, log)
	}

	var stats *EngineStats
	for _, reporter := range cfg.Global.StatReporter.Chain {
		if reporter.Name == "prometheus" {
			stats = NewEngineStats()
			break
		}
	}

	return &Engine{
		ext:        ext,
		provider:   provider,
		lossless:   lossless,
		invoke:     breaker.NewInvokeHandler(ext.Breakers, log),
		configFlow: configflow.New(ext.Connector, ext.Filter, log),
		stats:      stats,
		log:        log,
	}, nil
}

// Extensions exposes the wired plugin set for façades that need direct
// access (e.g. RouterAPI and the api package's SDKContext, or tests).
func (e *Engine) Extensions() *Extensions { return e.ext }

// Stats returns the optional Prometheus collector set, nil unless
// "prometheus" is configured in global.stat_reporter.chain.
func (e *Engine) Stats() *EngineStats { return e.stats }

// --- register / deregister / heartbeat ---

// RegisterInstance registers a provider instance, routing through the
// lossless registrar when lossless register/deregister is enabled.
func (e *Engine) RegisterInstance(ctx context.Context, req model.InstanceRegisterRequest) (*model.InstanceRegisterResponse, error) {
	var resp *model.InstanceRegisterResponse
	var err error
	if e.lossless != nil {
		resp, err = e.lossless.Register(ctx, req)
	} else {
		resp, err = e.provider.Register(ctx, req)
	}
	if e.stats != nil {
		e.stats.observeRegister(req.Service, err)
	}
	return resp, err
}

// DeregisterInstance deregisters a provider instance.
func (e *Engine) DeregisterInstance(ctx context.Context, req model.InstanceDeregisterRequest) error {
	var err error
	if e.lossless != nil {
		err = e.lossless.Deregister(ctx, req)
	} else {
		err = e.provider.Deregister(ctx, req)
	}
	if e.stats != nil {
		e.stats.observeDeregister(req.Service, err)
	}
	return err
}

// Heartbeat issues an explicit heartbeat outside the auto-heartbeat loop.
func (e *Engine) Heartbeat(ctx context.Context, req model.InstanceHeartbeatRequest) error {
	err := e.provider.Heartbeat(ctx, req)
	if e.stats != nil {
		e.stats.observeHeartbeat(req.Service, err)
	}
	return err
}

// --- get / list / watch ---

// GetInstances returns the cached instance snapshot for req.Service,
// narrowed by the consumer router chain unless req.SkipRouteFilter is set.
func (e *Engine) GetInstances(ctx context.Context, req model.GetInstancesRequest) (*model.ServiceInstances, error) {
	value, err := e.ext.Cache.Get(ctx, model.ResourceEventKey{
		Namespace:  req.Service.Namespace,
		EventType:  model.EventInstance,
		GroupOrSvc: req.Service.Service,
	}, req.Timeout)
	if err != nil {
		return nil, err
	}
	instances, ok := value.(*model.ServiceInstances)
	if !ok {
		return nil, polerr.InvalidResponse("cached value for " + req.Service.String() + " is not a ServiceInstances snapshot")
	}
	if req.SkipRouteFilter {
		return instances, nil
	}
	return e.ext.Routers.Route(router.RouteContext{Route: req.RouteInfo, Location: e.ext.Location}, instances)
}

// ChooseInstance runs GetInstances and selects one instance from the
// surviving set with the configured (or request-specified) load balancer.
func (e *Engine) ChooseInstance(ctx context.Context, req model.GetInstancesRequest) (*model.Instance, error) {
	instances, err := e.GetInstances(ctx, req)
	if err != nil {
		return nil, err
	}
	lb, err := e.ext.LoadBalancer(req.Criteria.Policy)
	if err != nil {
		return nil, err
	}
	return lb.ChooseInstance(instances, req.Criteria)
}

// WatchInstances registers l for future changes to svc's instance set.
func (e *Engine) WatchInstances(svc model.ServiceKey, l cache.ResourceListener) {
	e.ext.Cache.AddListener(model.ResourceEventKey{
		Namespace:  svc.Namespace,
		EventType:  model.EventInstance,
		GroupOrSvc: svc.Service,
	}, l)
}

// --- check / report ---

// CheckResource returns the synchronous circuit-breaker decision for
// resource without recording a call outcome.
func (e *Engine) CheckResource(resource model.Resource) model.CheckResult {
	result := e.ext.Breakers.CheckResource(resource)
	if e.stats != nil && !result.Pass {
		e.stats.observeCircuitBreakerReject(resource.Service)
	}
	return result
}

// AcquirePermission is CheckResource translated into the PolarisError a
// caller would return from its own RPC method on rejection.
func (e *Engine) AcquirePermission(resource model.Resource) error {
	err := e.invoke.AcquirePermission(resource)
	if e.stats != nil && err != nil {
		e.stats.observeCircuitBreakerReject(resource.Service)
	}
	return err
}

// ReportInvokeResult records one call outcome against resource, deriving
// its return code and status from resp/err via toCode.
func (e *Engine) ReportInvokeResult(resource model.Resource, resp interface{}, callErr error, delay time.Duration, toCode breaker.ResultToCode) {
	if e.stats != nil {
		e.stats.invokeDuration.WithLabelValues(resource.Service.Namespace, resource.Service.Service).Observe(delay.Seconds())
	}
	if callErr != nil {
		e.invoke.OnError(resource, callErr, delay, toCode)
		return
	}
	e.invoke.OnSuccess(resource, resp, delay, toCode)
}

// ReportStat records a raw ResourceStat directly, bypassing ResultToCode
// translation, for callers that already have a RetStatus in hand.
func (e *Engine) ReportStat(stat model.ResourceStat) {
	e.ext.Breakers.ReportStat(stat)
}

// --- allocate_quota ---

// GetQuota asks the rate limiter for permission to proceed, returning the
// matched rule (nil if none matched) alongside the verdict.
func (e *Engine) GetQuota(ctx context.Context, req model.QuotaRequest) (model.QuotaResponse, *model.RateLimitRule, error) {
	resp, rule, err := e.ext.Quotas.GetQuota(ctx, req)
	if e.stats != nil && (err != nil || !resp.Allowed) {
		e.stats.observeRateLimitReject(req.Service)
	}
	return resp, rule, err
}

// ReturnQuota releases a concurrency-mode quota acquired by GetQuota.
func (e *Engine) ReturnQuota(rule *model.RateLimitRule) {
	e.ext.Quotas.ReturnQuota(rule)
}

// --- config file ---

// GetConfigFile fetches the current published version of a config file.
func (e *Engine) GetConfigFile(ctx context.Context, namespace, group, name string) (*model.ConfigFile, error) {
	return e.configFlow.Get(ctx, namespace, group, name)
}

// CreateConfigFile creates a new, unpublished config file.
func (e *Engine) CreateConfigFile(ctx context.Context, file *model.ConfigFile) (*model.ConfigFile, error) {
	return e.configFlow.Create(ctx, file)
}

// UpdateConfigFile overwrites the content of an existing config file.
func (e *Engine) UpdateConfigFile(ctx context.Context, file *model.ConfigFile) (*model.ConfigFile, error) {
	return e.configFlow.Update(ctx, file)
}

// PublishConfigFile releases a config file's current content.
func (e *Engine) PublishConfigFile(ctx context.Context, namespace, group, name, releaseName string) error {
	return e.configFlow.Publish(ctx, namespace, group, name, releaseName)
}

// WatchConfigFile subscribes to publish events for the named files.
func (e *Engine) WatchConfigFile(ctx context.Context, namespace, group string, names []string) (<-chan *model.ConfigFile, error) {
	return e.configFlow.Watch(ctx, namespace, group, names)
}

// --- reporting passthroughs ---

// ReportClient reports this process's identity to the control plane. The
// api package's report_client loop calls it on every report_interval tick.
func (e *Engine) ReportClient(ctx context.Context, clientID, host, version string, location model.Location) error {
	return e.ext.Connector.ReportClient(ctx, &transport.ReportClientRequest{
		ClientID: clientID,
		Host:     host,
		Version:  version,
		Location: location,
	})
}

// ReportServiceContract publishes or updates the API contract a provider
// instance implements.
func (e *Engine) ReportServiceContract(ctx context.Context, req *transport.ServiceContractRequest) error {
	return e.ext.Connector.ReportServiceContract(ctx, req)
}

// GetServiceContract fetches a previously reported API contract.
func (e *Engine) GetServiceContract(ctx context.Context, req *transport.ServiceContractRequest) (*transport.ServiceContractResponse, error) {
	return e.ext.Connector.GetServiceContract(ctx, req)
}

// Destroy cascades through discovery, the config flow's nothing-to-close
// surface, and Extensions, tearing down every owned resource exactly once.
func (e *Engine) Destroy() error {
	if err := e.provider.Close(); err != nil {
		e.log.WithError(err).Warn("provider close reported an error")
	}
	return e.ext.Destroy()
}
