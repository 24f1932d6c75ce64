package loadbalance

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/polarismesh/polaris-go/pkg/model"
)

const (
	wrrStateCacheSize = 2048
	wrrStateIdleTTL   = 60 * time.Second
)

// wrrState is the smooth-weighted-round-robin bookkeeping for one
// ServiceInstances snapshot (keyed by its CacheKey, a digest of the
// service key and revision, so stale state never leaks across a revision
// bump).
type wrrState struct {
	mu      sync.Mutex
	current map[string]int64 // instance id -> current weight
}

// WeightedRoundRobin implements Nginx-style smooth weighted round robin:
// each pick advances every candidate's current weight by its effective
// weight, selects the maximum, then discounts it by the round's total
// weight. Per-snapshot state is evicted from an expirable LRU after 60s of
// inactivity so churned service snapshots don't leak memory.
type WeightedRoundRobin struct {
	states *expirable.LRU[string, *wrrState]
}

// NewWeightedRoundRobin builds a WeightedRoundRobin balancer.
func NewWeightedRoundRobin() *WeightedRoundRobin {
	return &WeightedRoundRobin{
		states: expirable.NewLRU[string, *wrrState](wrrStateCacheSize, nil, wrrStateIdleTTL),
	}
}

func (w *WeightedRoundRobin) Name() string  { return NameWeightedRoundRobin }
func (w *WeightedRoundRobin) Init() error   { return nil }
func (w *WeightedRoundRobin) Destroy() error { return nil }

func (w *WeightedRoundRobin) stateFor(cacheKey string) *wrrState {
	if s, ok := w.states.Get(cacheKey); ok {
		// Get does not renew an expirable entry; re-adding it does, so only
		// state idle for the full TTL expires.
		w.states.Add(cacheKey, s)
		return s
	}
	s := &wrrState{current: make(map[string]int64)}
	w.states.Add(cacheKey, s)
	return s
}

func (w *WeightedRoundRobin) ChooseInstance(instances *model.ServiceInstances, _ model.Criteria) (*model.Instance, error) {
	candidates := healthyInstances(instances)
	if len(candidates) == 0 {
		return nil, emptyInstancesError(instances.Info.Service)
	}

	state := w.stateFor(instances.CacheKey)
	state.mu.Lock()
	defer state.mu.Unlock()

	var total int64
	var best *model.Instance
	var bestWeight int64
	for _, inst := range candidates {
		weight := int64(inst.Weight)
		if weight <= 0 {
			// Weight 0 excludes the instance from load balancing entirely.
			continue
		}
		total += weight
		cur := state.current[inst.ID] + weight
		state.current[inst.ID] = cur
		if best == nil || cur > bestWeight {
			best = inst
			bestWeight = cur
		}
	}
	if best == nil {
		return nil, emptyInstancesError(instances.Info.Service)
	}
	state.current[best.ID] -= total
	return best, nil
}
