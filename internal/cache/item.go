// Package cache implements the SDK's resource cache: a push-primary,
// pull-on-miss, disk-failover store for every resource the control plane
// serves (instances, routing rules, rate-limit rules, circuit-breaker
// rules, lane rules, fault-detect rules, config files and groups).
//
// Grounded on infrastructure/cache/cache.go's versioned map-of-entries
// cache, generalized from a single TTL'd value per key to a tagged-union
// CacheItem keyed by model.EventType, with revision-based freshness
// (rather than wall-clock TTL) driving replacement.
package cache

import (
	"sync"
	"time"

	"github.com/polarismesh/polaris-go/pkg/model"
)

// ResourceListener is notified whenever a CacheItem's value changes.
// Update calls each listener on its own goroutine.
type ResourceListener func(key model.ResourceEventKey, value interface{}, revision string)

// CacheItem holds one resource's latest value behind a revision latch: the
// first successful load releases waiters blocked on WaitInitialized, and
// every subsequent update replaces Value only if its revision is newer.
type CacheItem struct {
	mu          sync.RWMutex
	key         model.ResourceEventKey
	value       interface{}
	revision    string
	initialized bool
	initCh      chan struct{}
	loadedFromFile bool
	lastAccess  time.Time
	listeners   []ResourceListener
}

func newCacheItem(key model.ResourceEventKey) *CacheItem {
	return &CacheItem{key: key, initCh: make(chan struct{}), lastAccess: time.Now()}
}

// Get returns the current value, revision, and whether it has ever been
// initialized.
func (i *CacheItem) Get() (interface{}, string, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.value, i.revision, i.initialized
}

// Touch records an access for service_expire_time eviction bookkeeping.
func (i *CacheItem) Touch() {
	i.mu.Lock()
	i.lastAccess = time.Now()
	i.mu.Unlock()
}

func (i *CacheItem) idleSince() time.Duration {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return time.Since(i.lastAccess)
}

// Update replaces the item's value if revision is strictly newer than
// (lexicographically greater than, per model.NewerRevision) the current
// one; an equal revision is ignored. It returns true if the value was replaced, in which case
// registered listeners are notified off the calling goroutine.
func (i *CacheItem) Update(value interface{}, revision string, loadedFromFile bool) bool {
	i.mu.Lock()
	if i.initialized && !model.NewerRevision(i.revision, revision) {
		i.mu.Unlock()
		return false
	}
	i.value = value
	i.revision = revision
	i.loadedFromFile = loadedFromFile
	wasInitialized := i.initialized
	i.initialized = true
	i.lastAccess = time.Now()
	listeners := append([]ResourceListener(nil), i.listeners...)
	i.mu.Unlock()

	if !wasInitialized {
		close(i.initCh)
	}
	for _, l := range listeners {
		go l(i.key, value, revision)
	}
	return true
}

// AddListener registers a listener for future updates.
func (i *CacheItem) AddListener(l ResourceListener) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.listeners = append(i.listeners, l)
}

// WaitInitialized blocks until the item has received its first value or
// the timeout elapses, returning false on timeout.
func (i *CacheItem) WaitInitialized(timeout time.Duration) bool {
	i.mu.RLock()
	if i.initialized {
		i.mu.RUnlock()
		return true
	}
	ch := i.initCh
	i.mu.RUnlock()

	if timeout <= 0 {
		<-ch
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	}
}

// LoadedFromFile reports whether the current value came from disk
// failover rather than a live server response.
func (i *CacheItem) LoadedFromFile() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.loadedFromFile
}
