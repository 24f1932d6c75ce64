// Package plugin implements the SDK's named-plugin registry. It replaces
// the deep-inheritance-tree approach the original implementation's
// polymorphic plugins could have taken with a flat, kind-keyed name->plugin
// map, per DESIGN NOTES §9 ("Polymorphic plugins... avoid deep inheritance
// trees"). The registry itself is grounded on the capability-interface
// style of infrastructure/service.MarbleService / StatisticsProvider in the
// teacher repo: small, focused interfaces rather than one fat base class.
package plugin

import (
	"fmt"
	"sync"

	"github.com/polarismesh/polaris-go/pkg/polerr"
)

// Kind identifies a plugin category.
type Kind string

const (
	KindConnector        Kind = "connector"
	KindCache            Kind = "cache"
	KindRouter           Kind = "router"
	KindLoadBalancer     Kind = "loadbalancer"
	KindCircuitBreaker   Kind = "circuitbreaker"
	KindRateLimiter      Kind = "ratelimiter"
	KindLocationSupplier Kind = "location"
	KindConfigFilter     Kind = "configfilter"
	KindLosslessPolicy   Kind = "lossless"
)

// Plugin is the capability every registered plugin must provide.
type Plugin interface {
	Name() string
	Init() error
	Destroy() error
}

// Container is the name-keyed registry of all plugin kinds. Registration
// is one-shot during SDKContext init; lookup afterward is O(1) and
// read-only (spec §5, "PluginContainer: initialized once, read-only
// thereafter").
type Container struct {
	mu      sync.RWMutex
	sealed  bool
	plugins map[Kind]map[string]Plugin
}

// NewContainer builds an empty, unsealed Container.
func NewContainer() *Container {
	return &Container{plugins: make(map[Kind]map[string]Plugin)}
}

// Register adds p under kind/p.Name(). It is an error to register after
// Seal, or to register two plugins of the same kind under the same name.
func (c *Container) Register(kind Kind, p Plugin) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed {
		return polerr.Internal("plugin container is sealed; cannot register " + string(kind) + "/" + p.Name())
	}
	if c.plugins[kind] == nil {
		c.plugins[kind] = make(map[string]Plugin)
	}
	if _, exists := c.plugins[kind][p.Name()]; exists {
		return polerr.Plugin(p.Name(), fmt.Errorf("duplicate registration for kind %s", kind))
	}
	if err := p.Init(); err != nil {
		return polerr.Plugin(p.Name(), err)
	}
	c.plugins[kind][p.Name()] = p
	return nil
}

// Seal marks the container read-only; further Register calls fail.
func (c *Container) Seal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sealed = true
}

// Get looks up a plugin by kind and name.
func (c *Container) Get(kind Kind, name string) (Plugin, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m := c.plugins[kind]
	if m == nil {
		return nil, false
	}
	p, ok := m[name]
	return p, ok
}

// ErrUnresolved builds the fatal init-time error for a configured plugin
// name that has no matching constructor, per spec §4.1 ("any unresolved
// name is a fatal init failure").
func ErrUnresolved(kind Kind, name string) *polerr.PolarisError {
	return polerr.Plugin(name, fmt.Errorf("no %s plugin implementation available for %q", kind, name))
}

// MustGet looks up a plugin, returning a typed PolarisError when unresolved.
func (c *Container) MustGet(kind Kind, name string) (Plugin, error) {
	p, ok := c.Get(kind, name)
	if !ok {
		return nil, polerr.Plugin(name, fmt.Errorf("no %s plugin named %q registered", kind, name))
	}
	return p, nil
}

// Names lists every registered plugin name for a kind.
func (c *Container) Names(kind Kind) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	for name := range c.plugins[kind] {
		out = append(out, name)
	}
	return out
}

// DestroyAll tears down every registered plugin in an unspecified order,
// collecting but not stopping on individual failures.
func (c *Container) DestroyAll() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var firstErr error
	for _, m := range c.plugins {
		for _, p := range m {
			if err := p.Destroy(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Lookup is a generic helper that fetches a plugin by kind/name and asserts
// it to type T, used by call sites that need the concrete plugin interface
// (ServiceRouter, LoadBalancer, ...) rather than the bare Plugin capability.
func Lookup[T any](c *Container, kind Kind, name string) (T, error) {
	var zero T
	p, err := c.MustGet(kind, name)
	if err != nil {
		return zero, err
	}
	typed, ok := p.(T)
	if !ok {
		return zero, polerr.Plugin(name, fmt.Errorf("plugin does not implement expected interface for kind %s", kind))
	}
	return typed, nil
}
