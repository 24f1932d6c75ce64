package transport

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/polarismesh/polaris-go/pkg/logging"
	"github.com/polarismesh/polaris-go/pkg/polerr"
)

// ConnState is a Connection's lifecycle stage. Transitions only ever move
// forward: empty -> active -> lazyDestroy -> closed.
type ConnState int

const (
	ConnEmpty ConnState = iota
	ConnActive
	ConnLazyDestroy
	ConnClosed
)

func (s ConnState) String() string {
	switch s {
	case ConnEmpty:
		return "empty"
	case ConnActive:
		return "active"
	case ConnLazyDestroy:
		return "lazy-destroy"
	case ConnClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection wraps one grpc.ClientConn to a single server address with a
// reference count. The state machine mirrors rpcpool.RPCEndpoint's health
// tracking, generalized with an explicit lazy-destroy step: a connection
// with outstanding refs that is due for replacement is marked lazyDestroy
// and closed only once its last caller releases it.
type Connection struct {
	mu       sync.Mutex
	addr     string
	cc       *grpc.ClientConn
	state    ConnState
	refCount int
	lastUsed time.Time
}

func newConnection(addr string, cc *grpc.ClientConn) *Connection {
	return &Connection{addr: addr, cc: cc, state: ConnActive, lastUsed: time.Now()}
}

// Acquire increments the ref count and returns the underlying ClientConn,
// or an error if the connection has already moved to closed.
func (c *Connection) Acquire() (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == ConnClosed {
		return nil, polerr.Network(fmt.Errorf("connection to %s is closed", c.addr))
	}
	c.refCount++
	c.lastUsed = time.Now()
	return c.cc, nil
}

// Release decrements the ref count, closing the underlying connection if
// it had been marked lazyDestroy and this was the last reference.
func (c *Connection) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refCount > 0 {
		c.refCount--
	}
	if c.state == ConnLazyDestroy && c.refCount == 0 {
		c.state = ConnClosed
		if c.cc != nil {
			_ = c.cc.Close()
		}
	}
}

// MarkLazyDestroy schedules the connection for close once drained. If it is
// already idle it closes immediately.
func (c *Connection) MarkLazyDestroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != ConnActive {
		return
	}
	c.state = ConnLazyDestroy
	if c.refCount == 0 {
		c.state = ConnClosed
		if c.cc != nil {
			_ = c.cc.Close()
		}
	}
}

func (c *Connection) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// endpoint tracks one configured server address's health, in the style of
// infrastructure/chain.RPCEndpoint.
type endpoint struct {
	addr             string
	healthy          bool
	consecutiveFails int
}

// ServerAddress is a pool of candidate addresses for one cluster role
// (discover/config/health-check), with a single active Connection shared by
// all callers and a serialized switch operation. Grounded on
// infrastructure/chain/rpcpool.go's RPCPool, generalized from HTTP health
// checks to a held gRPC connection plus ±10% jittered periodic switching
// (the control plane spreads client reconnects to avoid thundering herds).
type ServerAddress struct {
	mu               sync.Mutex
	endpoints        []*endpoint
	current          int
	active           *Connection
	switchInterval   time.Duration
	connectTimeout   time.Duration
	maxConsecutiveFails int
	dialOptions      []grpc.DialOption
	log              *logging.Logger

	switchMu sync.Mutex
	stopCh   chan struct{}
	stopOnce sync.Once
}

// ServerAddressConfig configures a ServerAddress pool.
type ServerAddressConfig struct {
	Addresses           []string
	ConnectTimeout      time.Duration
	SwitchInterval      time.Duration
	MaxConsecutiveFails int
	DialOptions         []grpc.DialOption
	Logger              *logging.Logger
}

// NewServerAddress builds a pool over cfg.Addresses and dials the first
// healthy endpoint eagerly.
func NewServerAddress(cfg ServerAddressConfig) (*ServerAddress, error) {
	if len(cfg.Addresses) == 0 {
		return nil, polerr.Argument("server address pool requires at least one address")
	}
	eps := make([]*endpoint, len(cfg.Addresses))
	for i, a := range cfg.Addresses {
		eps[i] = &endpoint{addr: a, healthy: true}
	}
	maxFails := cfg.MaxConsecutiveFails
	if maxFails <= 0 {
		maxFails = 3
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Global()
	}
	sa := &ServerAddress{
		endpoints:           eps,
		connectTimeout:      cfg.ConnectTimeout,
		switchInterval:      cfg.SwitchInterval,
		maxConsecutiveFails: maxFails,
		dialOptions:         cfg.DialOptions,
		log:                 log,
		stopCh:              make(chan struct{}),
	}
	if err := sa.dialCurrent(); err != nil {
		return nil, err
	}
	if sa.switchInterval > 0 {
		go sa.switchLoop()
	}
	return sa, nil
}

func (sa *ServerAddress) dialOptionsWithTimeout() []grpc.DialOption {
	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	return append(opts, sa.dialOptions...)
}

// dialCurrent dials the endpoint at sa.current and installs it as active.
func (sa *ServerAddress) dialCurrent() error {
	sa.mu.Lock()
	ep := sa.endpoints[sa.current]
	sa.mu.Unlock()

	ctx := context.Background()
	var cancel context.CancelFunc
	if sa.connectTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, sa.connectTimeout)
		defer cancel()
	}

	cc, err := grpc.DialContext(ctx, ep.addr, sa.dialOptionsWithTimeout()...)
	if err != nil {
		sa.markUnhealthy(ep)
		return polerr.Network(fmt.Errorf("dial %s: %w", ep.addr, err))
	}

	sa.mu.Lock()
	old := sa.active
	sa.active = newConnection(ep.addr, cc)
	sa.mu.Unlock()
	if old != nil {
		old.MarkLazyDestroy()
	}
	return nil
}

func (sa *ServerAddress) markUnhealthy(ep *endpoint) {
	sa.mu.Lock()
	defer sa.mu.Unlock()
	ep.consecutiveFails++
	if ep.consecutiveFails >= sa.maxConsecutiveFails {
		ep.healthy = false
	}
}

func (sa *ServerAddress) markHealthy(ep *endpoint) {
	sa.mu.Lock()
	defer sa.mu.Unlock()
	ep.healthy = true
	ep.consecutiveFails = 0
}

// Acquire returns the active Connection, dialing one if none is yet active.
func (sa *ServerAddress) Acquire() (*Connection, error) {
	sa.mu.Lock()
	active := sa.active
	sa.mu.Unlock()
	if active == nil || active.State() == ConnClosed {
		if err := sa.dialCurrent(); err != nil {
			return nil, err
		}
		sa.mu.Lock()
		active = sa.active
		sa.mu.Unlock()
	}
	return active, nil
}

// SwitchOnFailure fails the current endpoint and dials the next healthy one
// in ring order, matching the discover protocol's switch_client_on_fail.
func (sa *ServerAddress) SwitchOnFailure() error {
	sa.switchMu.Lock()
	defer sa.switchMu.Unlock()

	sa.mu.Lock()
	ep := sa.endpoints[sa.current]
	sa.mu.Unlock()
	sa.markUnhealthy(ep)

	sa.mu.Lock()
	next := sa.nextHealthyLocked()
	sa.current = next
	sa.mu.Unlock()

	return sa.dialCurrent()
}

// nextHealthyLocked must be called with sa.mu held.
func (sa *ServerAddress) nextHealthyLocked() int {
	n := len(sa.endpoints)
	for i := 1; i <= n; i++ {
		idx := (sa.current + i) % n
		if sa.endpoints[idx].healthy {
			return idx
		}
	}
	return (sa.current + 1) % n
}

// switchLoop periodically rotates the active connection to the next
// endpoint even absent failures, jittered ±10% so a fleet of clients
// sharing the same interval doesn't reconnect in lockstep.
func (sa *ServerAddress) switchLoop() {
	for {
		jitter := time.Duration(float64(sa.switchInterval) * (0.9 + 0.2*rand.Float64()))
		timer := time.NewTimer(jitter)
		select {
		case <-sa.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}

		sa.switchMu.Lock()
		sa.mu.Lock()
		ep := sa.endpoints[sa.current]
		sa.mu.Unlock()
		sa.markHealthy(ep)

		sa.mu.Lock()
		sa.current = (sa.current + 1) % len(sa.endpoints)
		sa.mu.Unlock()
		if err := sa.dialCurrent(); err != nil {
			sa.log.WithError(err).Warn("periodic server switch failed")
		}
		sa.switchMu.Unlock()
	}
}

// Endpoints returns a snapshot of addresses sorted by health then address,
// useful for diagnostics.
func (sa *ServerAddress) Endpoints() []string {
	sa.mu.Lock()
	defer sa.mu.Unlock()
	out := make([]string, len(sa.endpoints))
	idx := make([]int, len(sa.endpoints))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool {
		a, b := sa.endpoints[idx[i]], sa.endpoints[idx[j]]
		if a.healthy != b.healthy {
			return a.healthy
		}
		return a.addr < b.addr
	})
	for i, j := range idx {
		out[i] = sa.endpoints[j].addr
	}
	return out
}

// Close stops the switch loop and closes the active connection.
func (sa *ServerAddress) Close() error {
	sa.stopOnce.Do(func() { close(sa.stopCh) })
	sa.mu.Lock()
	active := sa.active
	sa.mu.Unlock()
	if active != nil {
		active.MarkLazyDestroy()
	}
	return nil
}
