package api

import (
	"time"

	"github.com/polarismesh/polaris-go/internal/breaker"
	"github.com/polarismesh/polaris-go/pkg/config"
	"github.com/polarismesh/polaris-go/pkg/logging"
	"github.com/polarismesh/polaris-go/pkg/model"
)

// CircuitBreakerAPI is the façade around the synchronous check/report
// decision point of spec §4.6.
type CircuitBreakerAPI struct {
	sdk *SDKContext
}

// NewCircuitBreakerAPIBySDKContext builds a CircuitBreakerAPI sharing
// sdk's Engine.
func NewCircuitBreakerAPIBySDKContext(sdk *SDKContext) *CircuitBreakerAPI {
	return &CircuitBreakerAPI{sdk: sdk}
}

// NewCircuitBreakerAPI builds a dedicated SDKContext from cfg and wraps it.
func NewCircuitBreakerAPI(cfg *config.Configuration) (*CircuitBreakerAPI, error) {
	sdk, err := NewSDKContext(cfg, logging.Global())
	if err != nil {
		return nil, err
	}
	return NewCircuitBreakerAPIBySDKContext(sdk), nil
}

// CheckResource returns the synchronous circuit-breaker decision for
// resource without recording a call outcome.
func (c *CircuitBreakerAPI) CheckResource(resource model.Resource) model.CheckResult {
	return c.sdk.Engine().CheckResource(resource)
}

// AcquirePermission is CheckResource translated into the PolarisError a
// caller would return from its own RPC method on rejection.
func (c *CircuitBreakerAPI) AcquirePermission(resource model.Resource) error {
	return c.sdk.Engine().AcquirePermission(resource)
}

// ReportInvokeResult records one call outcome, deriving its return code
// and status from resp/err via toCode.
func (c *CircuitBreakerAPI) ReportInvokeResult(resource model.Resource, resp interface{}, callErr error, delay time.Duration, toCode breaker.ResultToCode) {
	c.sdk.Engine().ReportInvokeResult(resource, resp, callErr, delay, toCode)
}

// ReportStat records a raw ResourceStat directly, for callers that
// already have a RetStatus in hand.
func (c *CircuitBreakerAPI) ReportStat(stat model.ResourceStat) {
	c.sdk.Engine().ReportStat(stat)
}

// SDKContext exposes the underlying shared context.
func (c *CircuitBreakerAPI) SDKContext() *SDKContext { return c.sdk }

// Destroy tears down the owned SDKContext.
func (c *CircuitBreakerAPI) Destroy() error { return c.sdk.Destroy() }
