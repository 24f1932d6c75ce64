package transport

import (
	"fmt"
	"sync"

	grpcretry "github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/retry"
	"google.golang.org/grpc"

	"github.com/polarismesh/polaris-go/pkg/config"
	"github.com/polarismesh/polaris-go/pkg/logging"
	"github.com/polarismesh/polaris-go/pkg/polerr"
)

// ConnectionManager owns one ServerAddress pool per cluster role
// (discover/config/health_check), all dialed from the single configured
// server connector's address list. It is the object an Engine holds and
// tears down on SDKContext.Destroy.
type ConnectionManager struct {
	mu    sync.RWMutex
	pools map[string]*ServerAddress
	log   *logging.Logger
}

// NewConnectionManager builds pools for "discover", "config" and
// "health_check" roles from cfg's lone server connector entry.
func NewConnectionManager(cfg *config.Configuration, log *logging.Logger) (*ConnectionManager, error) {
	if log == nil {
		log = logging.Global()
	}
	_, sc, ok := cfg.FirstConnector()
	if !ok {
		return nil, polerr.Config("no server connector configured")
	}
	if len(sc.Addresses) == 0 {
		return nil, polerr.Config("server connector has no addresses")
	}

	retryOpts := []grpcretry.CallOption{
		grpcretry.WithMax(uint(cfg.Global.API.MaxRetryTimes)),
		grpcretry.WithBackoff(grpcretry.BackoffExponential(cfg.Global.API.RetryInterval)),
		grpcretry.WithPerRetryTimeout(cfg.Global.API.Timeout),
	}
	dialOpts := []grpc.DialOption{
		grpc.WithUnaryInterceptor(grpcretry.UnaryClientInterceptor(retryOpts...)),
	}

	cm := &ConnectionManager{pools: make(map[string]*ServerAddress), log: log}
	for _, role := range []string{"discover", "config", "health_check"} {
		pool, err := NewServerAddress(ServerAddressConfig{
			Addresses:      sc.Addresses,
			ConnectTimeout: sc.ConnectTimeout,
			SwitchInterval: sc.ServerSwitchInterval,
			DialOptions:    dialOpts,
			Logger:         log,
		})
		if err != nil {
			cm.Close()
			return nil, fmt.Errorf("build %s connection pool: %w", role, err)
		}
		cm.pools[role] = pool
	}
	return cm, nil
}

// Pool returns the ServerAddress pool for a cluster role.
func (cm *ConnectionManager) Pool(role string) (*ServerAddress, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	p, ok := cm.pools[role]
	if !ok {
		return nil, polerr.Internal("no connection pool for role " + role)
	}
	return p, nil
}

// Close tears down every pool.
func (cm *ConnectionManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	var firstErr error
	for _, p := range cm.pools {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
