package router

import "github.com/polarismesh/polaris-go/pkg/model"

// partitionRouter narrows instances to those whose metadata value at key
// equals the request's value for that same key, falling back to the
// unfiltered set when the request carries no value for key (the partition
// is optional) or when no instance carries the key at all (nothing is
// partitioned, so nothing should be excluded). setRouter, canaryRouter and
// laneRouter are all instances of this one rule with a different key and
// value source, matching how ruleBasedRouter's metadata matching primitive
// is reused for simple single-label partitioning elsewhere in the chain.
type partitionRouter struct {
	name      string
	metaKey   string
	valueFrom func(RouteContext) (string, bool)
}

func (r *partitionRouter) Name() string   { return r.name }
func (r *partitionRouter) Init() error    { return nil }
func (r *partitionRouter) Destroy() error { return nil }

func (r *partitionRouter) Enable(ctx RouteContext, _ *model.ServiceInstances) bool {
	_, ok := r.valueFrom(ctx)
	return ok
}

func (r *partitionRouter) Route(ctx RouteContext, instances *model.ServiceInstances) (*model.ServiceInstances, error) {
	value, ok := r.valueFrom(ctx)
	if !ok {
		return instances, nil
	}

	anyTagged := false
	matched := make([]*model.Instance, 0, len(instances.Instances))
	for _, inst := range instances.Instances {
		got, has := inst.Metadata[r.metaKey]
		if has {
			anyTagged = true
		}
		if got == value {
			matched = append(matched, inst)
		}
	}
	if !anyTagged {
		return instances, nil
	}
	return instances.Clone(matched), nil
}

// NewSetRouter partitions by the "internal-set-name" metadata label.
func NewSetRouter() ServiceRouter {
	return &partitionRouter{
		name:    NameSetRouter,
		metaKey: "internal-set-name",
		valueFrom: func(ctx RouteContext) (string, bool) {
			v, ok := ctx.Route.Metadata["internal-set-name"]
			return v, ok
		},
	}
}

// NewCanaryRouter partitions by the "canary" metadata label.
func NewCanaryRouter() ServiceRouter {
	return &partitionRouter{
		name:    NameCanaryRouter,
		metaKey: "canary",
		valueFrom: func(ctx RouteContext) (string, bool) {
			v, ok := ctx.Route.Metadata["canary"]
			return v, ok
		},
	}
}

// NewLaneRouter partitions by the request's LaneKey against each
// instance's "lane" metadata label.
func NewLaneRouter() ServiceRouter {
	return &partitionRouter{
		name:    NameLaneRouter,
		metaKey: "lane",
		valueFrom: func(ctx RouteContext) (string, bool) {
			return ctx.Route.LaneKey, ctx.Route.LaneKey != ""
		},
	}
}

// NewNamespaceRouter prefers instances in the caller's own namespace,
// falling back to the full set when none match (namespace isolation is a
// soft preference, not a hard partition).
func NewNamespaceRouter() ServiceRouter {
	return &namespaceRouter{}
}

type namespaceRouter struct{}

func (r *namespaceRouter) Name() string   { return NameNamespaceRouter }
func (r *namespaceRouter) Init() error    { return nil }
func (r *namespaceRouter) Destroy() error { return nil }

func (r *namespaceRouter) Enable(ctx RouteContext, _ *model.ServiceInstances) bool {
	return ctx.Route.SourceService != nil && ctx.Route.SourceService.Namespace != ""
}

func (r *namespaceRouter) Route(ctx RouteContext, instances *model.ServiceInstances) (*model.ServiceInstances, error) {
	ns := ctx.Route.SourceService.Namespace
	matched := make([]*model.Instance, 0, len(instances.Instances))
	for _, inst := range instances.Instances {
		if inst.Service.Namespace == ns {
			matched = append(matched, inst)
		}
	}
	if len(matched) == 0 {
		return instances, nil
	}
	return instances.Clone(matched), nil
}
