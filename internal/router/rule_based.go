package router

import (
	"os"
	"sync"

	"github.com/polarismesh/polaris-go/pkg/matchrule"
	"github.com/polarismesh/polaris-go/pkg/model"
)

// RuleSetSource supplies the current RoutingRuleSet for a service, backed
// by the resource cache in production and a fixed value in tests.
type RuleSetSource func(svc model.ServiceKey) (*model.RoutingRuleSet, bool)

// RuleBasedRouter evaluates the callee's (then, if unmatched, the
// caller's) configured routing rules against the request's source
// metadata, narrowing the candidate set to the matching destinations.
type RuleBasedRouter struct {
	mu     sync.RWMutex
	source RuleSetSource
}

// NewRuleBasedRouter builds a RuleBasedRouter backed by source.
func NewRuleBasedRouter(source RuleSetSource) *RuleBasedRouter {
	return &RuleBasedRouter{source: source}
}

func (r *RuleBasedRouter) Name() string   { return NameRuleBasedRouter }
func (r *RuleBasedRouter) Init() error    { return nil }
func (r *RuleBasedRouter) Destroy() error { return nil }

func (r *RuleBasedRouter) Enable(ctx RouteContext, instances *model.ServiceInstances) bool {
	_, ok := r.source(instances.Info.Service)
	return ok
}

func (r *RuleBasedRouter) Route(ctx RouteContext, instances *model.ServiceInstances) (*model.ServiceInstances, error) {
	ruleSet, ok := r.source(instances.Info.Service)
	if !ok {
		return instances, nil
	}

	caller := model.ServiceKey{}
	if ctx.Route.SourceService != nil {
		caller = *ctx.Route.SourceService
	}

	for _, rule := range ruleSet.CalleeRules {
		if matched, result := r.applyRule(rule, caller, ctx, instances); matched {
			return result, nil
		}
	}
	for _, rule := range ruleSet.CallerRules {
		if matched, result := r.applyRule(rule, caller, ctx, instances); matched {
			return result, nil
		}
	}

	switch ruleSet.Failover {
	case model.FailoverAll:
		return instances, nil
	default:
		return instances.Clone(nil), nil
	}
}

// applyRule reports whether rule's sources match caller/ctx, and if so the
// destination-filtered snapshot.
func (r *RuleBasedRouter) applyRule(rule model.RoutingRule, caller model.ServiceKey, ctx RouteContext, instances *model.ServiceInstances) (bool, *model.ServiceInstances) {
	if len(rule.Sources) > 0 && !anySourceMatches(rule.Sources, caller, ctx) {
		return false, nil
	}

	var candidates []*model.Instance
	for _, dest := range rule.Destinations {
		if dest.Isolate {
			continue
		}
		for _, inst := range instances.Instances {
			if dest.Namespace != "" && dest.Namespace != inst.Service.Namespace {
				continue
			}
			if dest.Service != "" && dest.Service != inst.Service.Service {
				continue
			}
			if !inst.MetadataContains(dest.Metadata) {
				continue
			}
			candidates = append(candidates, inst)
		}
	}
	if candidates == nil {
		return false, nil
	}
	return true, instances.Clone(candidates)
}

func anySourceMatches(sources []model.RouteSource, caller model.ServiceKey, ctx RouteContext) bool {
	for _, src := range sources {
		if src.Namespace != "" && src.Namespace != "*" && src.Namespace != caller.Namespace {
			continue
		}
		if src.Service != "" && src.Service != "*" && src.Service != caller.Service {
			continue
		}
		if matchesMetadata(src.Metadata, ctx) {
			return true
		}
	}
	return false
}

func matchesMetadata(want map[string]model.MatchString, ctx RouteContext) bool {
	reqMetadata := ctx.Route.Metadata
	for key, match := range want {
		actual, ok := resolveValue(key, match, ctx, reqMetadata)
		if !ok {
			return false
		}
		if !matchrule.Eval(match, actual) {
			return false
		}
	}
	return true
}

// resolveValue resolves the left-hand value a MatchString compares
// against, according to its ValueType: a literal request metadata lookup,
// an environment variable (%VAR%) or the caller-supplied parameter
// resolver, falling back to ExternalParameterSupplier when set.
func resolveValue(key string, match model.MatchString, ctx RouteContext, reqMetadata map[string]string) (string, bool) {
	switch match.ValueType {
	case model.ValueVariable:
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		if ctx.Route.ExternalParameterSupplier != nil {
			return ctx.Route.ExternalParameterSupplier(key)
		}
		return "", false
	case model.ValueParameter:
		if ctx.Route.ExternalParameterSupplier != nil {
			return ctx.Route.ExternalParameterSupplier(key)
		}
		return "", false
	default: // ValueText: match against request metadata keyed by `key`
		v, ok := reqMetadata[key]
		return v, ok
	}
}

