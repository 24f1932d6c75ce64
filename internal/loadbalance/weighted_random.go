package loadbalance

import (
	"math/rand"
	"sync"

	"github.com/polarismesh/polaris-go/pkg/model"
	"github.com/polarismesh/polaris-go/pkg/polerr"
)

// WeightedRandom draws an instance with probability proportional to its
// weight: a uniform draw over [0, TotalWeight) followed by a running-sum
// walk over the healthy, non-isolated instances.
type WeightedRandom struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewWeightedRandom builds a WeightedRandom balancer.
func NewWeightedRandom() *WeightedRandom {
	return &WeightedRandom{rnd: rand.New(rand.NewSource(rand.Int63()))}
}

func (w *WeightedRandom) Name() string  { return NameWeightedRandom }
func (w *WeightedRandom) Init() error   { return nil }
func (w *WeightedRandom) Destroy() error { return nil }

func (w *WeightedRandom) ChooseInstance(instances *model.ServiceInstances, _ model.Criteria) (*model.Instance, error) {
	candidates := healthyInstances(instances)
	if len(candidates) == 0 {
		return nil, emptyInstancesError(instances.Info.Service)
	}
	if instances.TotalWeight == 0 {
		return nil, polerr.InstanceInfo("total weight of candidate instances is zero for " + instances.Info.Service.String())
	}

	w.mu.Lock()
	draw := uint64(w.rnd.Int63n(int64(instances.TotalWeight)))
	w.mu.Unlock()

	var running uint64
	for _, inst := range candidates {
		running += uint64(inst.Weight)
		if draw < running {
			return inst, nil
		}
	}
	// Floating point / integer rounding should never leave the walk short,
	// but fall back to the last candidate rather than return nothing.
	return candidates[len(candidates)-1], nil
}
