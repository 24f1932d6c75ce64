// Package loadbalance implements the SDK's instance-selection plugins:
// weightedRandom, weightedRoundRobin and ringHash. Each plugin operates on
// an immutable model.ServiceInstances snapshot already filtered by the
// router chain.
package loadbalance

import (
	"github.com/polarismesh/polaris-go/pkg/model"
	"github.com/polarismesh/polaris-go/pkg/polerr"
)

// LoadBalancer chooses one instance from a snapshot given selection
// criteria (consistent-hash key, policy hint).
type LoadBalancer interface {
	Name() string
	Init() error
	Destroy() error
	ChooseInstance(instances *model.ServiceInstances, criteria model.Criteria) (*model.Instance, error)
}

// Well-known plugin names, matching pkg/config.LoadBalancerConfig.Plugins.
const (
	NameWeightedRandom     = "weightedRandom"
	NameWeightedRoundRobin = "weightedRoundRobin"
	NameRingHash           = "ringHash"
)

func emptyInstancesError(svc model.ServiceKey) error {
	return polerr.InstanceNotFound("no healthy, non-isolated instances for " + svc.String())
}

func healthyInstances(instances *model.ServiceInstances) []*model.Instance {
	out := make([]*model.Instance, 0, len(instances.Instances))
	for _, inst := range instances.Instances {
		if inst.Healthy && !inst.Isolated {
			out = append(out, inst)
		}
	}
	return out
}
