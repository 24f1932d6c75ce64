package api

import (
	"context"

	"github.com/polarismesh/polaris-go/pkg/config"
	"github.com/polarismesh/polaris-go/pkg/logging"
	"github.com/polarismesh/polaris-go/pkg/model"
	"github.com/polarismesh/polaris-go/pkg/polerr"
)

// RateLimitAPI is the façade around the quota-acquisition decision point
// of spec §4.7.
type RateLimitAPI struct {
	sdk *SDKContext
}

// NewRateLimitAPIBySDKContext builds a RateLimitAPI sharing sdk's Engine.
func NewRateLimitAPIBySDKContext(sdk *SDKContext) *RateLimitAPI {
	return &RateLimitAPI{sdk: sdk}
}

// NewRateLimitAPI builds a dedicated SDKContext from cfg and wraps it.
func NewRateLimitAPI(cfg *config.Configuration) (*RateLimitAPI, error) {
	sdk, err := NewSDKContext(cfg, logging.Global())
	if err != nil {
		return nil, err
	}
	return NewRateLimitAPIBySDKContext(sdk), nil
}

// GetQuota asks for permission to proceed, returning the matched rule
// (nil if none matched) alongside the verdict.
func (r *RateLimitAPI) GetQuota(ctx context.Context, req model.QuotaRequest) (model.QuotaResponse, *model.RateLimitRule, error) {
	if !req.Service.Valid() {
		return model.QuotaResponse{}, nil, polerr.Argument("service key %s is invalid", req.Service.String())
	}
	return r.sdk.Engine().GetQuota(ctx, req)
}

// ReturnQuota releases a concurrency-mode quota acquired by GetQuota.
func (r *RateLimitAPI) ReturnQuota(rule *model.RateLimitRule) {
	r.sdk.Engine().ReturnQuota(rule)
}

// SDKContext exposes the underlying shared context.
func (r *RateLimitAPI) SDKContext() *SDKContext { return r.sdk }

// Destroy tears down the owned SDKContext.
func (r *RateLimitAPI) Destroy() error { return r.sdk.Destroy() }
