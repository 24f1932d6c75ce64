// Package breaker implements the per-resource circuit breaker registry and
// the InvokeHandler caller-facing API built on top of it.
package breaker

import (
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/polarismesh/polaris-go/pkg/model"
)

// RuleSource supplies the current CircuitBreakerRule for a resource's
// owning service, backed by the resource cache in production.
type RuleSource func(svc model.ServiceKey) (*model.CircuitBreakerRule, bool)

// Registry is a keyed circuit breaker state machine: one gobreaker instance
// per distinct Resource.Key(), created lazily on first use and rebuilt
// whenever the governing rule's revision changes.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	source  RuleSource
}

type entry struct {
	cb       *gobreaker.CircuitBreaker[struct{}]
	revision string
	rule     model.CircuitBreakerRule
}

// NewRegistry builds a Registry backed by source. A nil source means no
// rules are ever found, in which case CheckResource always passes (the
// breaker plugin is effectively absent).
func NewRegistry(source RuleSource) *Registry {
	if source == nil {
		source = func(model.ServiceKey) (*model.CircuitBreakerRule, bool) { return nil, false }
	}
	return &Registry{entries: make(map[string]*entry), source: source}
}

// CheckResource is the synchronous decision point: it reads the current
// breaker state for resource without recording a call against it. It is
// not lock-free: the entry lookup takes the registry's read lock, and the
// first check of a resource (or the first after a rule revision change)
// creates its entry under the write lock. Absent rule or internal panic recovery both fail open; an Open state
// driven by a matched rule never does.
func (r *Registry) CheckResource(resource model.Resource) (result model.CheckResult) {
	result = model.CheckResult{Pass: true}
	defer func() {
		if rec := recover(); rec != nil {
			result = model.CheckResult{Pass: true}
		}
	}()

	e := r.entryFor(resource)
	if e == nil {
		return model.CheckResult{Pass: true}
	}

	if e.cb.State() == gobreaker.StateOpen {
		return model.CheckResult{
			Pass:         false,
			RuleName:     e.rule.ID,
			FallbackInfo: fallbackOf(e.rule),
		}
	}
	return model.CheckResult{Pass: true, RuleName: e.rule.ID}
}

// ReportStat records a call outcome against the resource's breaker,
// advancing its gobreaker state machine. Report failures never propagate;
// a resource with no configured rule is a silent no-op.
func (r *Registry) ReportStat(stat model.ResourceStat) {
	e := r.entryFor(stat.Resource)
	if e == nil {
		return
	}
	success := stat.Status == model.RetSuccess
	_, _ = e.cb.Execute(func() (struct{}, error) {
		if success {
			return struct{}{}, nil
		}
		return struct{}{}, errReported
	})
}

// entryFor returns the registry entry for resource, creating or rebuilding
// it if the governing rule is newer than the cached one. Returns nil when
// no rule governs the resource.
func (r *Registry) entryFor(resource model.Resource) *entry {
	rule, ok := r.source(resource.Service)
	if !ok {
		return nil
	}
	key := resource.Key()

	r.mu.RLock()
	e, exists := r.entries[key]
	r.mu.RUnlock()
	if exists && e.revision == rule.Revision {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, exists := r.entries[key]; exists && e.revision == rule.Revision {
		return e
	}
	e = newEntry(key, *rule)
	r.entries[key] = e
	return e
}

func newEntry(key string, rule model.CircuitBreakerRule) *entry {
	th := rule.Threshold
	minCount := th.MinRequestCount
	if minCount <= 0 {
		minCount = 1
	}
	successToClose := uint32(th.SuccessCountToClose)
	if successToClose == 0 {
		successToClose = 1
	}
	sleep := time.Duration(th.SleepWindowSec) * time.Second
	if sleep <= 0 {
		sleep = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        key,
		MaxRequests: successToClose,
		Timeout:     sleep,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if th.ConsecutiveErrs > 0 && int(counts.ConsecutiveFailures) >= th.ConsecutiveErrs {
				return true
			}
			if int(counts.Requests) < minCount {
				return false
			}
			if th.ErrorRate <= 0 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= th.ErrorRate
		},
	}

	return &entry{
		cb:       gobreaker.NewCircuitBreaker[struct{}](settings),
		revision: rule.Revision,
		rule:     rule,
	}
}

func fallbackOf(rule model.CircuitBreakerRule) *model.FallbackInfo {
	if rule.FallbackCode == 0 && rule.FallbackBody == "" {
		return nil
	}
	return &model.FallbackInfo{Code: rule.FallbackCode, Body: rule.FallbackBody}
}

var errReported = errReportedErr{}

// errReportedErr is a distinct error value used only to push a failure
// result through gobreaker.Execute; it is never surfaced to callers.
type errReportedErr struct{}

func (errReportedErr) Error() string { return "reported failure" }
