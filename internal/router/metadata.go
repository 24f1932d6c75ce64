package router

import (
	"github.com/polarismesh/polaris-go/pkg/model"
	"github.com/polarismesh/polaris-go/pkg/polerr"
)

// MetadataRouter filters instances whose metadata is a superset of the
// caller-supplied RouteInfo.Metadata. The three-way failover policy
// controls what happens when the exact match yields nothing:
//   - None:  fail the route with MetadataMismatch.
//   - All:   fall back to the unfiltered instance set.
//   - NoKey: fall back to instances that simply lack the requested keys
//            (rather than disagreeing on their value).
type MetadataRouter struct{}

func NewMetadataRouter() *MetadataRouter { return &MetadataRouter{} }

func (r *MetadataRouter) Name() string   { return NameMetadataRouter }
func (r *MetadataRouter) Init() error    { return nil }
func (r *MetadataRouter) Destroy() error { return nil }

func (r *MetadataRouter) Enable(ctx RouteContext, _ *model.ServiceInstances) bool {
	return len(ctx.Route.Metadata) > 0
}

func (r *MetadataRouter) Route(ctx RouteContext, instances *model.ServiceInstances) (*model.ServiceInstances, error) {
	want := ctx.Route.Metadata

	exact := make([]*model.Instance, 0, len(instances.Instances))
	for _, inst := range instances.Instances {
		if inst.MetadataContains(want) {
			exact = append(exact, inst)
		}
	}
	if len(exact) > 0 {
		return instances.Clone(exact), nil
	}

	switch ctx.Route.MetadataFailover {
	case model.MetadataFailoverAll:
		return instances.Clone(append([]*model.Instance(nil), instances.Instances...)), nil
	case model.MetadataFailoverNoKey:
		keys := make([]string, 0, len(want))
		for k := range want {
			keys = append(keys, k)
		}
		fallback := make([]*model.Instance, 0, len(instances.Instances))
		for _, inst := range instances.Instances {
			if !inst.MetadataContainsAnyKey(keys) {
				fallback = append(fallback, inst)
			}
		}
		return instances.Clone(fallback), nil
	default: // MetadataFailoverNone
		return nil, polerr.MetadataMismatch()
	}
}
