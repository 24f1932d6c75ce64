// Package model holds the data types shared across the SDK: service keys,
// instances, config files, and the cache's event-key addressing scheme.
package model

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// ServiceKey identifies a service within a namespace. Equality and hashing
// are componentwise; an empty namespace or name is invalid everywhere a
// ServiceKey is consumed.
type ServiceKey struct {
	Namespace string
	Service   string
}

func (k ServiceKey) String() string {
	return k.Namespace + "/" + k.Service
}

// Valid reports whether both components are non-empty.
func (k ServiceKey) Valid() bool {
	return k.Namespace != "" && k.Service != ""
}

// Location describes the topological placement used by the nearby router.
type Location struct {
	Region string
	Zone   string
	Campus string
}

// Empty reports whether no location component was resolved.
func (l Location) Empty() bool {
	return l.Region == "" && l.Zone == "" && l.Campus == ""
}

// Instance is a single routable endpoint of a ServiceKey.
type Instance struct {
	ID       string
	Service  ServiceKey
	Host     string
	Port     uint32
	Protocol string
	VPCID    string

	Healthy  bool
	Isolated bool
	Weight   uint32
	Priority uint32

	Metadata map[string]string
	Location Location
	Version  string
	Revision string
}

// MetadataContains reports whether the instance's metadata is a superset of want.
func (i *Instance) MetadataContains(want map[string]string) bool {
	for k, v := range want {
		if got, ok := i.Metadata[k]; !ok || got != v {
			return false
		}
	}
	return true
}

// MetadataContainsAnyKey reports whether the instance metadata contains any of keys.
func (i *Instance) MetadataContainsAnyKey(keys []string) bool {
	for _, k := range keys {
		if _, ok := i.Metadata[k]; ok {
			return true
		}
	}
	return false
}

// BeatKey computes the deterministic heartbeat dedup key per the GLOSSARY:
// namespace_service_ip_port_vpc.
func BeatKey(svc ServiceKey, host string, port uint32, vpc string) string {
	return fmt.Sprintf("%s_%s_%s_%d_%s", svc.Namespace, svc.Service, host, port, vpc)
}

// ServiceInfo carries the catalog-level metadata for a ServiceInstances set.
type ServiceInfo struct {
	Service  ServiceKey
	Metadata map[string]string
	Revision string
}

// ServiceInstances is the unit routers and load balancers operate on.
type ServiceInstances struct {
	Info        ServiceInfo
	Instances   []*Instance
	TotalWeight uint64
	CacheKey    string
	Revision    string
	// LoadedFromFile marks values preloaded from the disk failover store
	// before any server response has overwritten them.
	LoadedFromFile bool
}

// NewServiceInstances computes TotalWeight from instances and CacheKey
// from the service key and revision.
// TotalWeight sums the weights of non-isolated, healthy instances only,
// matching the invariant in spec §3.
func NewServiceInstances(info ServiceInfo, instances []*Instance, revision string) *ServiceInstances {
	si := &ServiceInstances{
		Info:      info,
		Instances: instances,
		Revision:  revision,
	}
	si.Recompute()
	return si
}

// Recompute refreshes TotalWeight and CacheKey after Instances changes.
func (si *ServiceInstances) Recompute() {
	var total uint64
	for _, inst := range si.Instances {
		if inst.Healthy && !inst.Isolated {
			total += uint64(inst.Weight)
		}
	}
	si.TotalWeight = total
	si.CacheKey = cacheDigest(si.Info.Service, si.Revision)
}

// Clone produces a shallow copy of the instance slice so routers can filter
// without mutating the cached snapshot (routers read immutable snapshots
// per spec §5).
func (si *ServiceInstances) Clone(filtered []*Instance) *ServiceInstances {
	out := &ServiceInstances{
		Info:           si.Info,
		Instances:      filtered,
		Revision:       si.Revision,
		LoadedFromFile: si.LoadedFromFile,
	}
	out.Recompute()
	return out
}

func cacheDigest(svc ServiceKey, revision string) string {
	h := sha1.New()
	_, _ = h.Write([]byte(svc.Namespace))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(svc.Service))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(revision))
	return hex.EncodeToString(h.Sum(nil))
}

// SortByPriority orders instances ascending by Priority, stable, for router
// output consumed by load balancers.
func SortByPriority(instances []*Instance) {
	sort.SliceStable(instances, func(i, j int) bool {
		return instances[i].Priority < instances[j].Priority
	})
}

// NewerRevision reports whether candidate is strictly newer than current
// under the cache's lexicographic tie-break rule (spec §4.3).
func NewerRevision(current, candidate string) bool {
	return strings.Compare(candidate, current) > 0
}
