package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/polarismesh/polaris-go/internal/transport"
	"github.com/polarismesh/polaris-go/pkg/logging"
	"github.com/polarismesh/polaris-go/pkg/model"
	"github.com/polarismesh/polaris-go/pkg/polerr"
)

// Config controls cache behavior, mirroring pkg/config.LocalCacheConfig.
type Config struct {
	ServiceExpireEnable  bool
	ServiceExpireTime    time.Duration
	PullOnMissTimeout    time.Duration
	PersistMaxWriteRetry int
	PersistRetryInterval time.Duration
}

// ResourceCache is the single point through which every SDK component
// reads control-plane resources. It pushes primary updates from a live
// Discover stream per key, pulls on a cache miss, and fails over to disk
// when the connector cannot be reached at all.
type ResourceCache struct {
	mu    sync.RWMutex
	items map[string]*CacheItem

	connector transport.ServerConnector
	backend   PersistenceBackend
	cfg       Config
	log       *logging.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
}

// New builds a ResourceCache. backend may be nil to disable disk failover.
func New(connector transport.ServerConnector, backend PersistenceBackend, cfg Config, log *logging.Logger) *ResourceCache {
	if log == nil {
		log = logging.Global()
	}
	return &ResourceCache{
		items:     make(map[string]*CacheItem),
		connector: connector,
		backend:   backend,
		cfg:       cfg,
		log:       log,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the background eviction loop when service_expire_enable
// is set.
func (c *ResourceCache) Start() {
	if c.cfg.ServiceExpireEnable && c.cfg.ServiceExpireTime > 0 {
		go c.evictionLoop()
	}
}

// Stop halts every subscription goroutine started by Get.
func (c *ResourceCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// itemFor returns the CacheItem for key, creating it and kicking off its
// Discover subscription on first access.
func (c *ResourceCache) itemFor(key model.ResourceEventKey) *CacheItem {
	ck := key.CacheKey()

	c.mu.RLock()
	item, ok := c.items[ck]
	c.mu.RUnlock()
	if ok {
		return item
	}

	c.mu.Lock()
	item, ok = c.items[ck]
	if !ok {
		item = newCacheItem(key)
		c.items[ck] = item
		c.preloadFromDisk(key, item)
		go c.subscribe(key, item)
	}
	c.mu.Unlock()
	return item
}

// Get returns the cached value for key, pulling it on a first-touch miss
// and waiting up to timeout for the subscription to deliver an initial
// value. A non-positive timeout falls back to the configured
// PullOnMissTimeout; the wait is unbounded only when that is non-positive too.
func (c *ResourceCache) Get(ctx context.Context, key model.ResourceEventKey, timeout time.Duration) (interface{}, error) {
	item := c.itemFor(key)
	item.Touch()

	if timeout <= 0 {
		timeout = c.cfg.PullOnMissTimeout
	}
	if !item.WaitInitialized(timeout) {
		return nil, polerr.RPCTimeout()
	}
	value, _, _ := item.Get()
	return value, nil
}

// AddListener registers a listener for key's future updates, creating the
// item (and its subscription) if this is the first access.
func (c *ResourceCache) AddListener(key model.ResourceEventKey, l ResourceListener) {
	c.itemFor(key).AddListener(l)
}

// subscribe opens a Discover stream for key and applies every event to
// item until the stream ends, then reopens the stream; a failed open is
// retried after one second. It returns once the cache is stopped.
func (c *ResourceCache) subscribe(key model.ResourceEventKey, item *CacheItem) {
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		_, revision, _ := item.Get()
		ctx, cancel := context.WithCancel(context.Background())
		events, err := c.connector.Discover(ctx, &transport.DiscoverRequest{Key: key, Revision: revision})
		if err != nil {
			c.log.WithError(err).WithFields(map[string]interface{}{"resource": key.CacheKey()}).
				Warn("discover subscription failed, retrying")
			cancel()
			select {
			case <-time.After(time.Second):
			case <-c.stopCh:
				return
			}
			continue
		}

		c.drain(events, key, item)
		cancel()

		select {
		case <-c.stopCh:
			return
		default:
		}
	}
}

func (c *ResourceCache) drain(events <-chan *transport.DiscoverResponse, key model.ResourceEventKey, item *CacheItem) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			value, err := decodePayload(key.EventType, ev.Payload)
			if err != nil {
				c.log.WithError(err).Warn("failed to decode discover payload")
				continue
			}
			if item.Update(value, ev.Revision, false) {
				c.persist(key, ev.Revision, ev.Payload)
			}
		case <-c.stopCh:
			return
		}
	}
}

func (c *ResourceCache) preloadFromDisk(key model.ResourceEventKey, item *CacheItem) {
	if c.backend == nil {
		return
	}
	raw, err := c.backend.Load(context.Background(), key.CacheKey())
	if err != nil {
		return
	}
	var pv persistValue
	if err := json.Unmarshal(raw, &pv); err != nil {
		return
	}
	value, err := decodePayload(key.EventType, pv.Payload)
	if err != nil {
		return
	}
	item.Update(value, pv.Revision, true)
}

func (c *ResourceCache) persist(key model.ResourceEventKey, revision string, payload []byte) {
	if c.backend == nil {
		return
	}
	data, err := json.Marshal(persistValue{Revision: revision, Payload: payload})
	if err != nil {
		return
	}

	retries := c.cfg.PersistMaxWriteRetry
	if retries <= 0 {
		retries = 1
	}
	interval := c.cfg.PersistRetryInterval
	if interval <= 0 {
		interval = time.Second
	}

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if err := c.backend.Save(context.Background(), key.CacheKey(), data); err != nil {
			lastErr = err
			time.Sleep(interval)
			continue
		}
		return
	}
	if lastErr != nil {
		c.log.WithError(lastErr).Warn("failed to persist resource to disk failover store")
	}
}

// evictionLoop drops items idle past ServiceExpireTime. Eviction never
// fires a listener notification: the item simply disappears, and the next
// Get recreates it via pull-on-miss.
func (c *ResourceCache) evictionLoop() {
	ticker := time.NewTicker(c.cfg.ServiceExpireTime / 2)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.evictIdle()
		}
	}
}

func (c *ResourceCache) evictIdle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ck, item := range c.items {
		if item.idleSince() > c.cfg.ServiceExpireTime {
			delete(c.items, ck)
		}
	}
}

// decodePayload decodes a Discover payload according to the resource's
// event type.
func decodePayload(t model.EventType, data []byte) (interface{}, error) {
	var target interface{}
	switch t {
	case model.EventInstance:
		target = &model.ServiceInstances{}
	case model.EventRouting:
		target = &model.RoutingRuleSet{}
	case model.EventRateLimiting:
		target = &[]*model.RateLimitRule{}
	case model.EventCircuitBreaker:
		target = &[]*model.CircuitBreakerRule{}
	case model.EventLaneRule:
		target = &[]*model.LaneRule{}
	case model.EventFaultDetect:
		target = &[]*model.FaultDetectRule{}
	case model.EventConfigFile:
		target = &model.ConfigFile{}
	case model.EventConfigGroup:
		target = &model.ConfigGroup{}
	default:
		return nil, fmt.Errorf("unknown event type %v", t)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return nil, err
	}
	return target, nil
}
