package router

import "github.com/polarismesh/polaris-go/pkg/model"

// RecoverRouter implements the all-dead-all-alive rule: when every
// instance in the incoming snapshot is unhealthy, it returns the
// unfiltered set rather than an empty one, on the theory that traffic to a
// supposedly-dead instance beats no traffic at all. Otherwise it narrows
// to the healthy subset.
type RecoverRouter struct{}

func NewRecoverRouter() *RecoverRouter { return &RecoverRouter{} }

func (r *RecoverRouter) Name() string   { return NameRecoverRouter }
func (r *RecoverRouter) Init() error    { return nil }
func (r *RecoverRouter) Destroy() error { return nil }

func (r *RecoverRouter) Enable(RouteContext, *model.ServiceInstances) bool { return true }

func (r *RecoverRouter) Route(_ RouteContext, instances *model.ServiceInstances) (*model.ServiceInstances, error) {
	healthy := make([]*model.Instance, 0, len(instances.Instances))
	for _, inst := range instances.Instances {
		if inst.Healthy {
			healthy = append(healthy, inst)
		}
	}
	if len(healthy) == 0 {
		return instances.Clone(append([]*model.Instance(nil), instances.Instances...)), nil
	}
	return instances.Clone(healthy), nil
}
