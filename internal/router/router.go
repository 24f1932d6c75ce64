// Package router implements the SDK's service router chain: before/core/
// after ordered lists of ServiceRouter plugins that progressively filter
// a ServiceInstances snapshot down to the candidates a load balancer may
// choose from.
package router

import (
	"github.com/polarismesh/polaris-go/pkg/model"
	"github.com/polarismesh/polaris-go/pkg/polerr"
)

// RouteContext carries the request-scoped inputs a router needs beyond the
// instance snapshot: the caller's own service/metadata, failover policy
// knobs, and (for ruleBasedRouter) a way to resolve %VARIABLE% references.
type RouteContext struct {
	Route    model.RouteInfo
	Location model.Location
}

// ServiceRouter filters instances, returning the subset that survive this
// router's rule. Returning the input unchanged is valid when the router's
// rule does not apply (e.g. no routing rule configured for this service).
type ServiceRouter interface {
	Name() string
	Init() error
	Destroy() error
	Enable(ctx RouteContext, instances *model.ServiceInstances) bool
	Route(ctx RouteContext, instances *model.ServiceInstances) (*model.ServiceInstances, error)
}

const (
	NameIsolatedRouter    = "isolatedRouter"
	NameRecoverRouter     = "recoverRouter"
	NameMetadataRouter    = "metadataRouter"
	NameNearbyRouter      = "nearbyBasedRouter"
	NameRuleBasedRouter   = "ruleBasedRouter"
	NameSetRouter         = "setRouter"
	NameCanaryRouter      = "canaryRouter"
	NameLaneRouter        = "laneRouter"
	NameNamespaceRouter   = "namespaceRouter"
)

// Chain runs the before/core/after router lists in order, stopping early
// if any router empties the candidate set to zero instances (there is
// nothing left for a later router to filter).
type Chain struct {
	before, core, after []ServiceRouter
}

// NewChain builds a Chain from three ordered router lists.
func NewChain(before, core, after []ServiceRouter) *Chain {
	return &Chain{before: before, core: core, after: after}
}

// Route applies every enabled router in order and returns the final
// surviving snapshot.
func (c *Chain) Route(ctx RouteContext, instances *model.ServiceInstances) (*model.ServiceInstances, error) {
	current := instances
	for _, stage := range [][]ServiceRouter{c.before, c.core, c.after} {
		for _, r := range stage {
			if !r.Enable(ctx, current) {
				continue
			}
			next, err := r.Route(ctx, current)
			if err != nil {
				return nil, err
			}
			if next == nil || len(next.Instances) == 0 {
				return nil, polerr.RouteRuleNotMatch("router " + r.Name() + " filtered out every instance of " + instances.Info.Service.String())
			}
			current = next
		}
	}
	return current, nil
}
