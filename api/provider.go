package api

import (
	"context"

	"github.com/polarismesh/polaris-go/internal/transport"
	"github.com/polarismesh/polaris-go/pkg/config"
	"github.com/polarismesh/polaris-go/pkg/logging"
	"github.com/polarismesh/polaris-go/pkg/model"
	"github.com/polarismesh/polaris-go/pkg/polerr"
)

// Provider is the façade a service instance uses to register itself,
// report liveness, and publish or fetch its API contract.
type Provider struct {
	sdk *SDKContext
}

// NewProviderAPIBySDKContext builds a Provider sharing sdk's Engine.
func NewProviderAPIBySDKContext(sdk *SDKContext) *Provider {
	return &Provider{sdk: sdk}
}

// NewProviderAPI builds a dedicated SDKContext from cfg and wraps it.
func NewProviderAPI(cfg *config.Configuration) (*Provider, error) {
	sdk, err := NewSDKContext(cfg, logging.Global())
	if err != nil {
		return nil, err
	}
	return NewProviderAPIBySDKContext(sdk), nil
}

// Register publishes a service instance. When req.AutoHeartbeat is set the
// Engine keeps it alive with a periodic heartbeat task until Deregister.
func (p *Provider) Register(ctx context.Context, req model.InstanceRegisterRequest) (*model.InstanceRegisterResponse, error) {
	if !req.Service.Valid() {
		return nil, polerr.Argument("service key %s is invalid", req.Service.String())
	}
	return p.sdk.Engine().RegisterInstance(ctx, req)
}

// Deregister removes a previously registered instance.
func (p *Provider) Deregister(ctx context.Context, req model.InstanceDeregisterRequest) error {
	if !req.Service.Valid() {
		return polerr.Argument("service key %s is invalid", req.Service.String())
	}
	return p.sdk.Engine().DeregisterInstance(ctx, req)
}

// Heartbeat issues one explicit liveness report outside of auto_heartbeat.
func (p *Provider) Heartbeat(ctx context.Context, req model.InstanceHeartbeatRequest) error {
	if !req.Service.Valid() {
		return polerr.Argument("service key %s is invalid", req.Service.String())
	}
	return p.sdk.Engine().Heartbeat(ctx, req)
}

// ReportServiceContract publishes or updates the API contract this
// instance implements, recovered from original_source/src/discovery/api.rs.
func (p *Provider) ReportServiceContract(ctx context.Context, req *transport.ServiceContractRequest) error {
	return p.sdk.Engine().ReportServiceContract(ctx, req)
}

// GetServiceContract fetches a previously reported API contract.
func (p *Provider) GetServiceContract(ctx context.Context, req *transport.ServiceContractRequest) (*transport.ServiceContractResponse, error) {
	return p.sdk.Engine().GetServiceContract(ctx, req)
}

// SDKContext exposes the underlying shared context, for callers that build
// more than one façade off the same SDKContext.
func (p *Provider) SDKContext() *SDKContext { return p.sdk }

// Destroy tears down the SDKContext, including for every other façade
// built on it: there is no reference count, so the first Destroy from any
// façade ends the shared context. Later calls are no-ops because
// SDKContext.Destroy is idempotent.
func (p *Provider) Destroy() error { return p.sdk.Destroy() }
