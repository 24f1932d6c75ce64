package api

import (
	"github.com/polarismesh/polaris-go/internal/loadbalance"
	"github.com/polarismesh/polaris-go/internal/router"
	"github.com/polarismesh/polaris-go/pkg/config"
	"github.com/polarismesh/polaris-go/pkg/logging"
	"github.com/polarismesh/polaris-go/pkg/model"
)

// RouterAPI is the façade for running the before/core/after router chain
// and a load balancer against a caller-supplied ServiceInstances snapshot,
// for callers that already hold one (e.g. from their own cache) instead of
// going through Consumer.GetInstances, per spec §4.4's
// ProcessRouteRequest{service_instances, route_info} entry point.
type RouterAPI struct {
	sdk *SDKContext
}

// NewRouterAPIBySDKContext builds a RouterAPI sharing sdk's Engine.
func NewRouterAPIBySDKContext(sdk *SDKContext) *RouterAPI {
	return &RouterAPI{sdk: sdk}
}

// NewRouterAPI builds a dedicated SDKContext from cfg and wraps it.
func NewRouterAPI(cfg *config.Configuration) (*RouterAPI, error) {
	sdk, err := NewSDKContext(cfg, logging.Global())
	if err != nil {
		return nil, err
	}
	return NewRouterAPIBySDKContext(sdk), nil
}

// ProcessRouteRequest runs the configured before/core/after router chain
// against instances, narrowing it by route. Returns polerr.RouteRuleNotMatch
// when a router empties the set and the remaining chain cannot recover it.
func (r *RouterAPI) ProcessRouteRequest(route model.RouteInfo, instances *model.ServiceInstances) (*model.ServiceInstances, error) {
	ext := r.sdk.Engine().Extensions()
	return ext.Routers.Route(router.RouteContext{Route: route, Location: ext.Location}, instances)
}

// ProcessLoadBalance selects one instance from instances using the named
// policy, or the configured default when policy is empty.
func (r *RouterAPI) ProcessLoadBalance(policy string, instances *model.ServiceInstances, criteria model.Criteria) (*model.Instance, error) {
	ext := r.sdk.Engine().Extensions()
	criteria.Policy = policy
	lb, err := ext.LoadBalancer(policy)
	if err != nil {
		return nil, err
	}
	return lb.ChooseInstance(instances, criteria)
}

// LoadBalancer exposes a named load balancer directly, for callers that
// want to call ChooseInstance repeatedly without going through ProcessLoadBalance.
func (r *RouterAPI) LoadBalancer(policy string) (loadbalance.LoadBalancer, error) {
	return r.sdk.Engine().Extensions().LoadBalancer(policy)
}

// SDKContext exposes the underlying shared context.
func (r *RouterAPI) SDKContext() *SDKContext { return r.sdk }

// Destroy tears down the owned SDKContext.
func (r *RouterAPI) Destroy() error { return r.sdk.Destroy() }
