package engine

import (
	"context"
	"time"

	"github.com/polarismesh/polaris-go/internal/cache"
	"github.com/polarismesh/polaris-go/pkg/model"
)

// routingRuleSet fetches the cached RoutingRuleSet for svc, used as the
// ruleBasedRouter's RuleSetSource. A cache miss or type mismatch reports
// "no rule configured" rather than an error: routing rules are optional.
func routingRuleSet(c *cache.ResourceCache, timeout time.Duration, svc model.ServiceKey) (*model.RoutingRuleSet, bool) {
	value, err := c.Get(context.Background(), model.ResourceEventKey{
		Namespace:  svc.Namespace,
		EventType:  model.EventRouting,
		GroupOrSvc: svc.Service,
	}, timeout)
	if err != nil {
		return nil, false
	}
	rs, ok := value.(*model.RoutingRuleSet)
	return rs, ok
}

// firstCircuitBreakerRule fetches the cached CircuitBreakerRule for svc, used
// as the breaker.Registry's RuleSource.
func firstCircuitBreakerRule(c *cache.ResourceCache, timeout time.Duration, svc model.ServiceKey) (*model.CircuitBreakerRule, bool) {
	value, err := c.Get(context.Background(), model.ResourceEventKey{
		Namespace:  svc.Namespace,
		EventType:  model.EventCircuitBreaker,
		GroupOrSvc: svc.Service,
	}, timeout)
	if err != nil {
		return nil, false
	}
	rules, ok := value.(*[]*model.CircuitBreakerRule)
	if !ok || rules == nil || len(*rules) == 0 {
		return nil, false
	}
	return (*rules)[0], true
}

// rateLimitRules fetches the cached RateLimitRule set for svc, used as the
// ratelimit.Registry's RuleSource.
func rateLimitRules(c *cache.ResourceCache, timeout time.Duration, svc model.ServiceKey) ([]*model.RateLimitRule, bool) {
	value, err := c.Get(context.Background(), model.ResourceEventKey{
		Namespace:  svc.Namespace,
		EventType:  model.EventRateLimiting,
		GroupOrSvc: svc.Service,
	}, timeout)
	if err != nil {
		return nil, false
	}
	rules, ok := value.(*[]*model.RateLimitRule)
	if !ok || rules == nil {
		return nil, false
	}
	return *rules, true
}
