// Package ratelimit implements local quota allocation (concurrency and
// QPS windows) plus a remote-sync path for quota modes that require exact
// server-side accounting.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/polarismesh/polaris-go/pkg/matchrule"
	"github.com/polarismesh/polaris-go/pkg/model"
)

// RuleSource supplies the configured RateLimitRule set for a service,
// keyed by (namespace, service) per spec §4.7.
type RuleSource func(svc model.ServiceKey) ([]*model.RateLimitRule, bool)

// RemoteSync consults the control plane for quota modes that need exact
// accounting. The local Registry calls this synchronously with a
// caller-supplied timeout; a nil RemoteSync makes "global" rules behave
// like "local" ones (best-effort, logged as a config gap by the caller).
type RemoteSync func(ctx context.Context, rule *model.RateLimitRule, req model.QuotaRequest) (model.QuotaResponse, error)

// Registry evaluates quota requests against the configured rule set,
// selecting and caching one limiter per matching rule.
type Registry struct {
	mu     sync.RWMutex
	source RuleSource
	remote RemoteSync
	states map[string]*ruleState
}

type ruleState struct {
	revision    string
	concurrency *concurrencyLimiter
	windows     []*rate.Limiter
}

// NewRegistry builds a Registry. source and remote may be nil.
func NewRegistry(source RuleSource, remote RemoteSync) *Registry {
	if source == nil {
		source = func(model.ServiceKey) ([]*model.RateLimitRule, bool) { return nil, false }
	}
	return &Registry{source: source, remote: remote, states: make(map[string]*ruleState)}
}

// GetQuota selects the first enabled rule whose labels match req.Labels
// and asks it to allocate amount units of quota. No matching rule allows
// the call unconditionally (no governance configured).
func (r *Registry) GetQuota(ctx context.Context, req model.QuotaRequest) (model.QuotaResponse, *model.RateLimitRule, error) {
	rules, ok := r.source(req.Service)
	if !ok {
		return model.QuotaResponse{Allowed: true}, nil, nil
	}

	for _, rule := range rules {
		if rule.Disable {
			continue
		}
		if !labelsMatch(rule.Labels, req.Labels) {
			continue
		}
		resp, err := r.allocate(ctx, rule, req)
		return resp, rule, err
	}
	return model.QuotaResponse{Allowed: true}, nil, nil
}

// ReturnQuota releases one unit of locally-accounted concurrency quota for
// rule. A nil rule or a non-concurrency rule is a no-op.
func (r *Registry) ReturnQuota(rule *model.RateLimitRule) {
	if rule == nil {
		return
	}
	r.mu.RLock()
	st, ok := r.states[rule.ID]
	r.mu.RUnlock()
	if !ok || st.concurrency == nil {
		return
	}
	st.concurrency.release()
}

func (r *Registry) allocate(ctx context.Context, rule *model.RateLimitRule, req model.QuotaRequest) (model.QuotaResponse, error) {
	if rule.Mode == "global" && r.remote != nil {
		syncCtx := ctx
		var cancel context.CancelFunc
		if req.MaxQueueTime > 0 {
			syncCtx, cancel = context.WithTimeout(ctx, req.MaxQueueTime)
			defer cancel()
		}
		return r.remote(syncCtx, rule, req)
	}

	st := r.stateFor(rule)
	if len(rule.Amounts) == 0 {
		return st.concurrency.acquire(req)
	}
	return allocateWindows(st.windows, req)
}

// stateFor returns the cached limiter state for rule, rebuilding it
// whenever rule's revision advances.
func (r *Registry) stateFor(rule *model.RateLimitRule) *ruleState {
	r.mu.RLock()
	st, ok := r.states[rule.ID]
	r.mu.RUnlock()
	if ok && st.revision == rule.Revision {
		return st
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.states[rule.ID]; ok && st.revision == rule.Revision {
		return st
	}
	st = newRuleState(rule)
	r.states[rule.ID] = st
	return st
}

func newRuleState(rule *model.RateLimitRule) *ruleState {
	st := &ruleState{revision: rule.Revision}
	if len(rule.Amounts) == 0 {
		maxConcurrency := int64(100)
		st.concurrency = newConcurrencyLimiter(maxConcurrency)
		return st
	}
	st.windows = make([]*rate.Limiter, len(rule.Amounts))
	for i, amount := range rule.Amounts {
		window := time.Duration(amount.ValidDur)
		if window <= 0 {
			window = time.Second
		}
		qps := float64(amount.MaxAmount) / window.Seconds()
		st.windows[i] = rate.NewLimiter(rate.Limit(qps), int(amount.MaxAmount))
	}
	return st
}

// allocateWindows reports allowed only if every configured window has
// capacity; a rule with multiple amounts (e.g. 100/sec and 5000/min) must
// satisfy all of them simultaneously.
func allocateWindows(windows []*rate.Limiter, req model.QuotaRequest) (model.QuotaResponse, error) {
	n := req.Amount
	if n <= 0 {
		n = 1
	}
	reserved := make([]*rate.Reservation, 0, len(windows))
	for _, w := range windows {
		res := w.ReserveN(time.Now(), int(n))
		if !res.OK() || res.Delay() > 0 {
			for _, r := range reserved {
				r.Cancel()
			}
			if res.OK() {
				res.Cancel()
			}
			return model.QuotaResponse{Allowed: false, Message: "rate limit exceeded"}, nil
		}
		reserved = append(reserved, res)
	}
	return model.QuotaResponse{Allowed: true}, nil
}

func labelsMatch(want map[string]model.MatchString, have map[string]string) bool {
	for key, match := range want {
		actual, ok := have[key]
		if !ok || !matchrule.Eval(match, actual) {
			return false
		}
	}
	return true
}
