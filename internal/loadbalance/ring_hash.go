package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"
	"sync"

	"github.com/polarismesh/polaris-go/pkg/model"
	"github.com/polarismesh/polaris-go/pkg/polerr"
)

// defaultReplicas is the number of virtual nodes placed on the ring per
// real instance, balancing distribution smoothness against ring size.
const defaultReplicas = 5

// ring is one built hash ring for a specific ServiceInstances snapshot.
type ring struct {
	sortedKeys []uint32
	byKey      map[uint32]*model.Instance
}

func buildRing(instances []*model.Instance) *ring {
	r := &ring{byKey: make(map[uint32]*model.Instance, len(instances)*defaultReplicas)}
	for _, inst := range instances {
		for i := 0; i < defaultReplicas; i++ {
			h := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s:%d-%d", inst.Host, inst.Port, i)))
			r.byKey[h] = inst
			r.sortedKeys = append(r.sortedKeys, h)
		}
	}
	sort.Slice(r.sortedKeys, func(i, j int) bool { return r.sortedKeys[i] < r.sortedKeys[j] })
	return r
}

func (r *ring) pick(hashKey []byte) *model.Instance {
	if len(r.sortedKeys) == 0 {
		return nil
	}
	h := crc32.ChecksumIEEE(hashKey)
	idx := sort.Search(len(r.sortedKeys), func(i int) bool { return r.sortedKeys[i] >= h })
	if idx == len(r.sortedKeys) {
		idx = 0
	}
	return r.byKey[r.sortedKeys[idx]]
}

// RingHash is a consistent-hash load balancer: instances map onto a ring of
// virtual nodes, and a request's Criteria.HashKey determines which
// instance it lands on. The ring for a given snapshot is built once and
// cached by the snapshot's CacheKey, a digest of the service key and
// revision, so it is rebuilt when the revision changes; snapshots of the
// same service and revision with different instance subsets share one ring.
type RingHash struct {
	mu    sync.Mutex
	rings map[string]*ring
}

// NewRingHash builds a RingHash balancer.
func NewRingHash() *RingHash {
	return &RingHash{rings: make(map[string]*ring)}
}

func (rh *RingHash) Name() string  { return NameRingHash }
func (rh *RingHash) Init() error   { return nil }
func (rh *RingHash) Destroy() error { return nil }

func (rh *RingHash) ringFor(instances *model.ServiceInstances) *ring {
	rh.mu.Lock()
	defer rh.mu.Unlock()
	if r, ok := rh.rings[instances.CacheKey]; ok {
		return r
	}
	r := buildRing(healthyInstances(instances))
	rh.rings[instances.CacheKey] = r
	// Ring cache is unbounded in snapshot count for this SDK's lifetime,
	// which is acceptable: each live service has a single current
	// CacheKey at a time and stale entries are few relative to process
	// lifetime. A size-bounded LRU would trade this for eviction churn on
	// high-frequency revision bumps.
	return r
}

func (rh *RingHash) ChooseInstance(instances *model.ServiceInstances, criteria model.Criteria) (*model.Instance, error) {
	candidates := healthyInstances(instances)
	if len(candidates) == 0 {
		return nil, emptyInstancesError(instances.Info.Service)
	}
	if len(criteria.HashKey) == 0 {
		return nil, polerr.Argument("ringHash requires a non-empty Criteria.HashKey")
	}

	r := rh.ringFor(instances)
	inst := r.pick(criteria.HashKey)
	if inst == nil {
		return nil, emptyInstancesError(instances.Info.Service)
	}
	return inst, nil
}
