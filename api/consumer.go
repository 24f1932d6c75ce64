package api

import (
	"context"

	"github.com/polarismesh/polaris-go/internal/cache"
	"github.com/polarismesh/polaris-go/pkg/config"
	"github.com/polarismesh/polaris-go/pkg/logging"
	"github.com/polarismesh/polaris-go/pkg/model"
	"github.com/polarismesh/polaris-go/pkg/polerr"
)

// Consumer is the façade a calling service uses to discover, route to,
// and watch peer instances.
type Consumer struct {
	sdk *SDKContext
}

// NewConsumerAPIBySDKContext builds a Consumer sharing sdk's Engine.
func NewConsumerAPIBySDKContext(sdk *SDKContext) *Consumer {
	return &Consumer{sdk: sdk}
}

// NewConsumerAPI builds a dedicated SDKContext from cfg and wraps it.
func NewConsumerAPI(cfg *config.Configuration) (*Consumer, error) {
	sdk, err := NewSDKContext(cfg, logging.Global())
	if err != nil {
		return nil, err
	}
	return NewConsumerAPIBySDKContext(sdk), nil
}

// GetInstances returns the routed instance set for req.Service.
func (c *Consumer) GetInstances(ctx context.Context, req model.GetInstancesRequest) (*model.ServiceInstances, error) {
	if !req.Service.Valid() {
		return nil, polerr.Argument("service key %s is invalid", req.Service.String())
	}
	return c.sdk.Engine().GetInstances(ctx, req)
}

// GetAllInstances returns the full, unrouted instance set for req.Service.
func (c *Consumer) GetAllInstances(ctx context.Context, req model.GetInstancesRequest) (*model.ServiceInstances, error) {
	req.SkipRouteFilter = true
	return c.GetInstances(ctx, req)
}

// ChooseInstance runs GetInstances then load-balances across the result.
func (c *Consumer) ChooseInstance(ctx context.Context, req model.GetInstancesRequest) (*model.Instance, error) {
	if !req.Service.Valid() {
		return nil, polerr.Argument("service key %s is invalid", req.Service.String())
	}
	return c.sdk.Engine().ChooseInstance(ctx, req)
}

// WatchInstances registers l for future changes to svc's instance set.
func (c *Consumer) WatchInstances(svc model.ServiceKey, l cache.ResourceListener) error {
	if !svc.Valid() {
		return polerr.Argument("service key %s is invalid", svc.String())
	}
	c.sdk.Engine().WatchInstances(svc, l)
	return nil
}

// SDKContext exposes the underlying shared context.
func (c *Consumer) SDKContext() *SDKContext { return c.sdk }

// Destroy tears down the owned SDKContext.
func (c *Consumer) Destroy() error { return c.sdk.Destroy() }
