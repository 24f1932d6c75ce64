// Package transport implements the SDK's connection to the control plane:
// a pooled, failover-capable gRPC connector grounded on
// infrastructure/chain/rpcpool.go's endpoint health tracking and
// infrastructure/resilience/resilience.go's backoff-based retry, adapted
// from NEO N3 RPC nodes to the discover/config-file/health-check gRPC
// services this SDK speaks.
package transport

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"google.golang.org/grpc"

	"github.com/polarismesh/polaris-go/pkg/logging"
	"github.com/polarismesh/polaris-go/pkg/polerr"
)

// ServerConnector is everything the SDK needs from the control plane:
// instance registration, client/contract reporting, resource discovery,
// and the config-file CRUD + watch surface.
type ServerConnector interface {
	RegisterInstance(ctx context.Context, req *RegisterInstanceRequest) (*RegisterInstanceResponse, error)
	DeregisterInstance(ctx context.Context, req *DeregisterInstanceRequest) error
	Heartbeat(ctx context.Context, req *HeartbeatRequest) error
	ReportClient(ctx context.Context, req *ReportClientRequest) error
	ReportServiceContract(ctx context.Context, req *ServiceContractRequest) error
	GetServiceContract(ctx context.Context, req *ServiceContractRequest) (*ServiceContractResponse, error)
	Discover(ctx context.Context, req *DiscoverRequest) (<-chan *DiscoverResponse, error)

	GetConfigFile(ctx context.Context, req *ConfigFileRequest) (*ConfigFileResponse, error)
	CreateConfigFile(ctx context.Context, req *ConfigFileRequest) (*ConfigFileResponse, error)
	UpdateConfigFile(ctx context.Context, req *ConfigFileRequest) (*ConfigFileResponse, error)
	PublishConfigFile(ctx context.Context, req *ConfigFileRequest) error
	WatchConfigFile(ctx context.Context, req *WatchConfigFileRequest) (<-chan *WatchConfigFileResponse, error)

	Close() error
}

// grpcConnector is the production ServerConnector, issuing calls through a
// ConnectionManager so failed RPCs trigger an endpoint switch rather than a
// hard error.
type grpcConnector struct {
	cm  *ConnectionManager
	log *logging.Logger
}

// NewGRPCConnector builds a ServerConnector backed by cm.
func NewGRPCConnector(cm *ConnectionManager, log *logging.Logger) ServerConnector {
	if log == nil {
		log = logging.Global()
	}
	return &grpcConnector{cm: cm, log: log}
}

// invoke performs one unary RPC against role's active connection, retrying
// up to two more times (three attempts in all) with exponential backoff via
// cenkalti/backoff and
// switching to the next endpoint on each failure, matching the discover
// protocol's switch_client_on_fail behavior.
func (g *grpcConnector) invoke(ctx context.Context, role, method string, req, resp interface{}) error {
	pool, err := g.cm.Pool(role)
	if err != nil {
		return err
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)

	return backoff.Retry(func() error {
		conn, err := pool.Acquire()
		if err != nil {
			return err
		}
		cc, err := conn.Acquire()
		if err != nil {
			return err
		}
		defer conn.Release()

		callErr := cc.Invoke(ctx, method, req, resp, grpc.CallContentSubtype(codecName))
		if callErr != nil {
			if switchErr := pool.SwitchOnFailure(); switchErr != nil {
				g.log.WithError(switchErr).Warn("failed to switch server on RPC failure")
			}
			return polerr.ServerError(fmt.Errorf("%s: %w", method, callErr))
		}
		return nil
	}, bo)
}

func (g *grpcConnector) RegisterInstance(ctx context.Context, req *RegisterInstanceRequest) (*RegisterInstanceResponse, error) {
	resp := &RegisterInstanceResponse{}
	if err := g.invoke(ctx, "discover", methodRegisterInstance, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (g *grpcConnector) DeregisterInstance(ctx context.Context, req *DeregisterInstanceRequest) error {
	var resp struct{}
	return g.invoke(ctx, "discover", methodDeregisterInstance, req, &resp)
}

func (g *grpcConnector) Heartbeat(ctx context.Context, req *HeartbeatRequest) error {
	var resp struct{}
	return g.invoke(ctx, "health_check", methodHeartbeat, req, &resp)
}

func (g *grpcConnector) ReportClient(ctx context.Context, req *ReportClientRequest) error {
	var resp struct{}
	return g.invoke(ctx, "discover", methodReportClient, req, &resp)
}

func (g *grpcConnector) ReportServiceContract(ctx context.Context, req *ServiceContractRequest) error {
	var resp struct{}
	return g.invoke(ctx, "discover", methodReportServiceContract, req, &resp)
}

func (g *grpcConnector) GetServiceContract(ctx context.Context, req *ServiceContractRequest) (*ServiceContractResponse, error) {
	resp := &ServiceContractResponse{}
	if err := g.invoke(ctx, "discover", methodGetServiceContract, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Discover opens a server-streaming subscription and fans incoming events
// into the returned channel. The channel is closed when the stream ends or
// ctx is cancelled; a cancelled stream is not itself an error the caller
// needs to act on, since the cache layer simply falls back to pull-on-miss.
func (g *grpcConnector) Discover(ctx context.Context, req *DiscoverRequest) (<-chan *DiscoverResponse, error) {
	pool, err := g.cm.Pool("discover")
	if err != nil {
		return nil, err
	}
	conn, err := pool.Acquire()
	if err != nil {
		return nil, err
	}
	cc, err := conn.Acquire()
	if err != nil {
		conn.Release()
		return nil, err
	}

	stream, err := cc.NewStream(ctx, &grpc.StreamDesc{ServerStreams: true}, methodDiscover, grpc.CallContentSubtype(codecName))
	if err != nil {
		conn.Release()
		return nil, polerr.Network(fmt.Errorf("open discover stream: %w", err))
	}
	if err := stream.SendMsg(req); err != nil {
		conn.Release()
		return nil, polerr.Network(fmt.Errorf("send discover request: %w", err))
	}

	out := make(chan *DiscoverResponse, 16)
	go func() {
		defer conn.Release()
		defer close(out)
		for {
			ev := &DiscoverResponse{}
			if err := stream.RecvMsg(ev); err != nil {
				if err != context.Canceled {
					g.log.WithError(err).Debug("discover stream ended")
					_ = pool.SwitchOnFailure()
				}
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (g *grpcConnector) GetConfigFile(ctx context.Context, req *ConfigFileRequest) (*ConfigFileResponse, error) {
	resp := &ConfigFileResponse{}
	if err := g.invoke(ctx, "config", methodGetConfigFile, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (g *grpcConnector) CreateConfigFile(ctx context.Context, req *ConfigFileRequest) (*ConfigFileResponse, error) {
	resp := &ConfigFileResponse{}
	if err := g.invoke(ctx, "config", methodCreateConfigFile, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (g *grpcConnector) UpdateConfigFile(ctx context.Context, req *ConfigFileRequest) (*ConfigFileResponse, error) {
	resp := &ConfigFileResponse{}
	if err := g.invoke(ctx, "config", methodUpdateConfigFile, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (g *grpcConnector) PublishConfigFile(ctx context.Context, req *ConfigFileRequest) error {
	var resp struct{}
	return g.invoke(ctx, "config", methodPublishConfigFile, req, &resp)
}

func (g *grpcConnector) WatchConfigFile(ctx context.Context, req *WatchConfigFileRequest) (<-chan *WatchConfigFileResponse, error) {
	pool, err := g.cm.Pool("config")
	if err != nil {
		return nil, err
	}
	conn, err := pool.Acquire()
	if err != nil {
		return nil, err
	}
	cc, err := conn.Acquire()
	if err != nil {
		conn.Release()
		return nil, err
	}

	stream, err := cc.NewStream(ctx, &grpc.StreamDesc{ServerStreams: true}, methodWatchConfigFile, grpc.CallContentSubtype(codecName))
	if err != nil {
		conn.Release()
		return nil, polerr.Network(fmt.Errorf("open config watch stream: %w", err))
	}
	if err := stream.SendMsg(req); err != nil {
		conn.Release()
		return nil, polerr.Network(fmt.Errorf("send config watch request: %w", err))
	}

	out := make(chan *WatchConfigFileResponse, 16)
	go func() {
		defer conn.Release()
		defer close(out)
		for {
			ev := &WatchConfigFileResponse{}
			if err := stream.RecvMsg(ev); err != nil {
				if err != context.Canceled {
					g.log.WithError(err).Debug("config watch stream ended")
					_ = pool.SwitchOnFailure()
				}
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (g *grpcConnector) Close() error {
	return g.cm.Close()
}
