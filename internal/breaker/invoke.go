package breaker

import (
	"time"

	"github.com/polarismesh/polaris-go/pkg/logging"
	"github.com/polarismesh/polaris-go/pkg/model"
	"github.com/polarismesh/polaris-go/pkg/polerr"
)

// ResultToCode translates a caller's response/error into a numeric return
// code and a RetStatus, the same hook shape user code supplies per spec
// §4.6.
type ResultToCode func(resp interface{}, err error) (code int, status model.RetStatus)

// InvokeHandler ties CheckResource/ReportStat together for one logical
// call: acquire permission before dialing, report the outcome after.
type InvokeHandler struct {
	registry *Registry
	log      *logging.Logger
}

// NewInvokeHandler builds an InvokeHandler over registry.
func NewInvokeHandler(registry *Registry, log *logging.Logger) *InvokeHandler {
	return &InvokeHandler{registry: registry, log: log}
}

// AcquirePermission checks the resource's breaker state, returning
// polerr.CircuitBreak when the rule-driven state is Open.
func (h *InvokeHandler) AcquirePermission(resource model.Resource) error {
	result := h.registry.CheckResource(resource)
	if !result.Pass {
		return polerr.CircuitBreak(result.RuleName, result.FallbackInfo)
	}
	return nil
}

// OnSuccess reports a successful call outcome for resource and, when
// resource.Path is set, additionally reports a method-level ResourceStat.
func (h *InvokeHandler) OnSuccess(resource model.Resource, resp interface{}, delay time.Duration, toCode ResultToCode) {
	code, status := toCode(resp, nil)
	h.report(resource, code, delay, status)
}

// OnError reports a failed call outcome for resource and, when
// resource.Path is set, additionally reports a method-level ResourceStat.
func (h *InvokeHandler) OnError(resource model.Resource, callErr error, delay time.Duration, toCode ResultToCode) {
	code, status := toCode(nil, callErr)
	h.report(resource, code, delay, status)
}

func (h *InvokeHandler) report(resource model.Resource, code int, delay time.Duration, status model.RetStatus) {
	defer func() {
		if rec := recover(); rec != nil && h.log != nil {
			h.log.WithField("resource", resource.Key()).Errorf("circuit breaker report panicked: %v", rec)
		}
	}()

	serviceResource := resource
	serviceResource.Level = model.ResourceService
	h.registry.ReportStat(model.ResourceStat{Resource: serviceResource, RetCode: code, Delay: delay, Status: status})

	if resource.Path != "" {
		methodResource := resource
		methodResource.Level = model.ResourceMethod
		h.registry.ReportStat(model.ResourceStat{Resource: methodResource, RetCode: code, Delay: delay, Status: status})
	}
}
