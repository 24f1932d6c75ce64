// Package engine wires every internal subsystem (transport, cache,
// router, load balancer, circuit breaker, rate limiter, location, discovery,
// config flow) into the single dispatch point the api façade calls
// through, grounded on infrastructure/service/base.go's BaseService
// lifecycle: a sync.Once-guarded stop signal plus a registered set of
// background workers, generalized here to plugin-container wiring and a
// cooperative task runtime for the discover-driven background loops.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/polarismesh/polaris-go/internal/breaker"
	"github.com/polarismesh/polaris-go/internal/cache"
	"github.com/polarismesh/polaris-go/internal/configflow"
	"github.com/polarismesh/polaris-go/internal/loadbalance"
	"github.com/polarismesh/polaris-go/internal/location"
	"github.com/polarismesh/polaris-go/internal/plugin"
	"github.com/polarismesh/polaris-go/internal/ratelimit"
	"github.com/polarismesh/polaris-go/internal/router"
	"github.com/polarismesh/polaris-go/internal/transport"
	"github.com/polarismesh/polaris-go/pkg/config"
	"github.com/polarismesh/polaris-go/pkg/logging"
	"github.com/polarismesh/polaris-go/pkg/model"
	"github.com/polarismesh/polaris-go/pkg/polerr"
)

// taskRunner is the cooperative task runtime behind Extensions.Spawn: each
// task gets its own cancellable context, and stopAll blocks until every
// task has observed cancellation and returned. Only the report-client loop
// runs on it; heartbeat tasks and cache subscriptions start their own
// goroutines and are not stopped by stopAll.
type taskRunner struct {
	mu      sync.Mutex
	wg      sync.WaitGroup
	cancels []context.CancelFunc
}

func (t *taskRunner) spawn(fn func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.cancels = append(t.cancels, cancel)
	t.mu.Unlock()
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		fn(ctx)
	}()
}

func (t *taskRunner) stopAll() {
	t.mu.Lock()
	cancels := append([]context.CancelFunc(nil), t.cancels...)
	t.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	t.wg.Wait()
}

// connectorPlugin adapts transport.ServerConnector to plugin.Plugin so the
// active connector has a registered, named entry in the container like
// every other extension point.
type connectorPlugin struct {
	transport.ServerConnector
	name string
}

func (c *connectorPlugin) Name() string   { return c.name }
func (c *connectorPlugin) Init() error    { return nil }
func (c *connectorPlugin) Destroy() error { return c.ServerConnector.Close() }

// cachePlugin adapts *cache.ResourceCache to plugin.Plugin.
type cachePlugin struct {
	*cache.ResourceCache
	name string
}

func (c *cachePlugin) Name() string   { return c.name }
func (c *cachePlugin) Init() error    { c.Start(); return nil }
func (c *cachePlugin) Destroy() error { c.Stop(); return nil }

// breakerPlugin adapts *breaker.Registry to plugin.Plugin.
type breakerPlugin struct {
	*breaker.Registry
	name string
}

func (b *breakerPlugin) Name() string   { return b.name }
func (b *breakerPlugin) Init() error    { return nil }
func (b *breakerPlugin) Destroy() error { return nil }

// ratelimitPlugin adapts *ratelimit.Registry to plugin.Plugin.
type ratelimitPlugin struct {
	*ratelimit.Registry
	name string
}

func (r *ratelimitPlugin) Name() string   { return r.name }
func (r *ratelimitPlugin) Init() error    { return nil }
func (r *ratelimitPlugin) Destroy() error { return nil }

// Extensions holds every plugin and shared resource an Engine dispatches
// through: the sealed PluginContainer, the active discover/config
// connector, the resource cache, the consumer-side router chain and load
// balancer set, the circuit breaker and rate limiter registries, the
// config-file content filter, this process's resolved location, and the
// cooperative task runtime driving every background loop.
type Extensions struct {
	Plugins   *plugin.Container
	Connector transport.ServerConnector
	CM        *transport.ConnectionManager
	Cache     *cache.ResourceCache
	Routers   *router.Chain
	Breakers  *breaker.Registry
	Quotas    *ratelimit.Registry
	Filter    configflow.ConfigFilter
	Location  model.Location
	Log       *logging.Logger

	loadBalancers map[string]loadbalance.LoadBalancer
	defaultLB     string

	tasks *taskRunner
}

// Build wires every extension point from cfg. Any unresolved plugin name
// (a router or load-balancer name in the consumer chain with no matching
// constructor) is a fatal init failure, per spec §4.1.
func Build(cfg *config.Configuration, log *logging.Logger) (*Extensions, error) {
	if log == nil {
		log = logging.Global()
	}
	connectorName, _, _ := cfg.FirstConnector()
	cm, err := transport.NewConnectionManager(cfg, log)
	if err != nil {
		return nil, err
	}
	connector := transport.NewGRPCConnector(cm, log)
	return buildExtensions(cfg, connectorName, connector, cm, log)
}

// buildExtensions is Build's connector-injectable core, split out so tests
// can wire a fake ServerConnector in place of a real gRPC dial.
func buildExtensions(cfg *config.Configuration, connectorName string, connector transport.ServerConnector, cm *transport.ConnectionManager, log *logging.Logger) (*Extensions, error) {
	if log == nil {
		log = logging.Global()
	}
	container := plugin.NewContainer()

	if err := container.Register(plugin.KindConnector, &connectorPlugin{ServerConnector: connector, name: connectorName}); err != nil {
		return nil, err
	}

	var backend cache.PersistenceBackend
	if cfg.Global.LocalCache.PersistEnable {
		fb, err := cache.NewFileBackend(cfg.Global.LocalCache.PersistDir)
		if err != nil {
			return nil, err
		}
		backend = fb
	}
	resourceCache := cache.New(connector, backend, cache.Config{
		ServiceExpireEnable:  cfg.Global.LocalCache.ServiceExpireEnable,
		ServiceExpireTime:    cfg.Global.LocalCache.ServiceExpireTime,
		PullOnMissTimeout:    cfg.Global.API.Timeout,
		PersistMaxWriteRetry: cfg.Global.LocalCache.PersistMaxWriteRetry,
		PersistRetryInterval: cfg.Global.LocalCache.PersistRetryInterval,
	}, log)
	if err := container.Register(plugin.KindCache, &cachePlugin{ResourceCache: resourceCache, name: cfg.Global.LocalCache.Name}); err != nil {
		return nil, err
	}

	lbs := map[string]loadbalance.LoadBalancer{
		loadbalance.NameWeightedRandom:     loadbalance.NewWeightedRandom(),
		loadbalance.NameWeightedRoundRobin: loadbalance.NewWeightedRoundRobin(),
		loadbalance.NameRingHash:           loadbalance.NewRingHash(),
	}
	loadBalancers := make(map[string]loadbalance.LoadBalancer)
	for _, name := range cfg.Consumer.LoadBalancer.Plugins {
		lb, ok := lbs[name]
		if !ok {
			return nil, plugin.ErrUnresolved(plugin.KindLoadBalancer, name)
		}
		if err := container.Register(plugin.KindLoadBalancer, lb); err != nil {
			return nil, err
		}
		loadBalancers[name] = lb
	}
	if _, ok := loadBalancers[cfg.Consumer.LoadBalancer.DefaultPolicy]; !ok {
		return nil, plugin.ErrUnresolved(plugin.KindLoadBalancer, cfg.Consumer.LoadBalancer.DefaultPolicy)
	}

	chain, err := buildRouterChain(container, resourceCache, cfg)
	if err != nil {
		return nil, err
	}

	breakerRegistry := breaker.NewRegistry(func(svc model.ServiceKey) (*model.CircuitBreakerRule, bool) {
		return firstCircuitBreakerRule(resourceCache, cfg.Global.API.Timeout, svc)
	})
	if err := container.Register(plugin.KindCircuitBreaker, &breakerPlugin{Registry: breakerRegistry, name: "default"}); err != nil {
		return nil, err
	}

	quotaRegistry := ratelimit.NewRegistry(func(svc model.ServiceKey) ([]*model.RateLimitRule, bool) {
		return rateLimitRules(resourceCache, cfg.Global.API.Timeout, svc)
	}, nil)
	if err := container.Register(plugin.KindRateLimiter, &ratelimitPlugin{Registry: quotaRegistry, name: "default"}); err != nil {
		return nil, err
	}

	filter := configflow.NewIdentityFilter()
	if err := container.Register(plugin.KindConfigFilter, filter); err != nil {
		return nil, err
	}

	resolvedLocation, err := buildLocation(container, resourceCache, cfg)
	if err != nil {
		return nil, err
	}

	container.Seal()

	return &Extensions{
		Plugins:       container,
		Connector:     connector,
		CM:            cm,
		Cache:         resourceCache,
		Routers:       chain,
		Breakers:      breakerRegistry,
		Quotas:        quotaRegistry,
		Filter:        filter,
		Location:      resolvedLocation,
		Log:           log,
		loadBalancers: loadBalancers,
		defaultLB:     cfg.Consumer.LoadBalancer.DefaultPolicy,
		tasks:         &taskRunner{},
	}, nil
}

// buildLocation constructs the configured location-supplier chain,
// registers each supplier under plugin.KindLocationSupplier, and resolves
// this process's Location once at init, per SPEC_FULL.md §4's recovered
// location-resolution feature.
func buildLocation(container *plugin.Container, resourceCache *cache.ResourceCache, cfg *config.Configuration) (model.Location, error) {
	resolve := func(ctx context.Context, svc model.ServiceKey, timeout time.Duration) (*model.ServiceInstances, error) {
		value, err := resourceCache.Get(ctx, model.ResourceEventKey{
			Namespace:  svc.Namespace,
			EventType:  model.EventInstance,
			GroupOrSvc: svc.Service,
		}, timeout)
		if err != nil {
			return nil, err
		}
		instances, ok := value.(*model.ServiceInstances)
		if !ok {
			return nil, polerr.InvalidResponse("cached value for " + svc.String() + " is not a ServiceInstances snapshot")
		}
		return instances, nil
	}

	suppliers := make([]location.Supplier, 0, len(cfg.Global.Location.Providers))
	for _, p := range cfg.Global.Location.Providers {
		var s location.Supplier
		switch p.Name {
		case "local":
			s = location.NewLocalSupplier(p.Options)
		case "http":
			s = location.NewHTTPSupplier(p.Options)
		case "service":
			s = location.NewServiceSupplier(p.Options, resolve)
		default:
			return model.Location{}, plugin.ErrUnresolved(plugin.KindLocationSupplier, p.Name)
		}
		if err := container.Register(plugin.KindLocationSupplier, s); err != nil {
			return model.Location{}, err
		}
		suppliers = append(suppliers, s)
	}
	return location.NewChain(suppliers).Resolve(context.Background()), nil
}

// LoadBalancer resolves name, falling back to the configured default
// policy when name is empty.
func (e *Extensions) LoadBalancer(name string) (loadbalance.LoadBalancer, error) {
	if name == "" {
		name = e.defaultLB
	}
	lb, ok := e.loadBalancers[name]
	if !ok {
		return nil, plugin.ErrUnresolved(plugin.KindLoadBalancer, name)
	}
	return lb, nil
}

// Spawn starts fn as a background loop tracked by the cooperative task
// runtime; fn must return promptly once ctx is cancelled.
func (e *Extensions) Spawn(fn func(ctx context.Context)) {
	e.tasks.spawn(fn)
}

// Destroy cascades through every owned resource: background tasks first
// (so nothing is still using the cache or connector), then the plugin
// container, then the connection manager.
func (e *Extensions) Destroy() error {
	e.tasks.stopAll()
	err := e.Plugins.DestroyAll()
	if cmErr := e.CM.Close(); err == nil {
		err = cmErr
	}
	return err
}

func buildRouterChain(container *plugin.Container, resourceCache *cache.ResourceCache, cfg *config.Configuration) (*router.Chain, error) {
	ruleSource := func(svc model.ServiceKey) (*model.RoutingRuleSet, bool) {
		return routingRuleSet(resourceCache, cfg.Global.API.Timeout, svc)
	}

	nearby := cfg.Consumer.ServiceRouter.Nearby
	nearbyRouter, err := router.NewNearbyBasedRouter(
		nearby.StrictNearby, nearby.EnableDegradeByUnhealthyPercent, nearby.UnhealthyPercentToDegrade,
		nearby.MatchLevel, nearby.MaxMatchLevel)
	if err != nil {
		return nil, err
	}

	named := map[string]router.ServiceRouter{
		router.NameIsolatedRouter:  router.NewIsolatedRouter(),
		router.NameRecoverRouter:   router.NewRecoverRouter(),
		router.NameMetadataRouter:  router.NewMetadataRouter(),
		router.NameNearbyRouter:    nearbyRouter,
		router.NameRuleBasedRouter: router.NewRuleBasedRouter(ruleSource),
		router.NameSetRouter:       router.NewSetRouter(),
		router.NameCanaryRouter:    router.NewCanaryRouter(),
		router.NameLaneRouter:      router.NewLaneRouter(),
		router.NameNamespaceRouter: router.NewNamespaceRouter(),
	}

	resolve := func(names []string) ([]router.ServiceRouter, error) {
		out := make([]router.ServiceRouter, 0, len(names))
		for _, name := range names {
			r, ok := named[name]
			if !ok {
				return nil, plugin.ErrUnresolved(plugin.KindRouter, name)
			}
			if _, exists := container.Get(plugin.KindRouter, name); !exists {
				if err := container.Register(plugin.KindRouter, r); err != nil {
					return nil, err
				}
			}
			out = append(out, r)
		}
		return out, nil
	}

	before, err := resolve(cfg.Consumer.ServiceRouter.BeforeChain)
	if err != nil {
		return nil, err
	}
	core, err := resolve(cfg.Consumer.ServiceRouter.CoreChain)
	if err != nil {
		return nil, err
	}
	after, err := resolve(cfg.Consumer.ServiceRouter.AfterChain)
	if err != nil {
		return nil, err
	}
	return router.NewChain(before, core, after), nil
}
