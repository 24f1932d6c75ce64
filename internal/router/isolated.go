package router

import "github.com/polarismesh/polaris-go/pkg/model"

// IsolatedRouter drops isolated instances unconditionally. It always runs
// first in the before chain: no later router should ever consider an
// operator-isolated instance a candidate.
type IsolatedRouter struct{}

func NewIsolatedRouter() *IsolatedRouter { return &IsolatedRouter{} }

func (r *IsolatedRouter) Name() string    { return NameIsolatedRouter }
func (r *IsolatedRouter) Init() error     { return nil }
func (r *IsolatedRouter) Destroy() error  { return nil }

func (r *IsolatedRouter) Enable(RouteContext, *model.ServiceInstances) bool { return true }

func (r *IsolatedRouter) Route(_ RouteContext, instances *model.ServiceInstances) (*model.ServiceInstances, error) {
	filtered := make([]*model.Instance, 0, len(instances.Instances))
	for _, inst := range instances.Instances {
		if !inst.Isolated {
			filtered = append(filtered, inst)
		}
	}
	return instances.Clone(filtered), nil
}
