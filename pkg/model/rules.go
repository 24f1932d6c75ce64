package model

// MatchStringType enumerates how a MatchString compares against a value.
type MatchStringType int

const (
	MatchExact MatchStringType = iota
	MatchNotEquals
	MatchRegex
	MatchIn
	MatchNotIn
	MatchRange
)

// MatchValueType selects where a MatchString's value is resolved from.
type MatchValueType int

const (
	ValueText MatchValueType = iota
	ValueParameter
	ValueVariable
)

// MatchString is the primitive comparison unit used by ruleBasedRouter and
// its metadata/lane/canary/namespace siblings.
type MatchString struct {
	Type      MatchStringType
	ValueType MatchValueType
	Value     string
}

// RouteSource describes one "from" clause of a routing rule: which caller
// traffic labels must match for the rule's destinations to apply.
type RouteSource struct {
	Namespace string
	Service   string
	Metadata  map[string]MatchString
}

// RouteDestination describes one "to" clause: candidate instances filtered
// by metadata, with a priority and weight for selection among destinations.
type RouteDestination struct {
	Namespace string
	Service   string
	Metadata  map[string]string
	Priority  uint32
	Weight    uint32
	Isolate   bool
}

// FailoverPolicy controls ruleBasedRouter behavior when no rule matches.
type FailoverPolicy int

const (
	FailoverNone FailoverPolicy = iota
	FailoverAll
)

// RoutingRule is one directional (callee or caller) rule entry.
type RoutingRule struct {
	ID           string
	Sources      []RouteSource
	Destinations []RouteDestination
}

// RoutingRuleSet is the cached payload for EventRouting: callee rules
// evaluated before caller rules, per spec §4.4.
type RoutingRuleSet struct {
	Service       ServiceKey
	CalleeRules   []RoutingRule
	CallerRules   []RoutingRule
	Failover      FailoverPolicy
	Revision      string
}

// MetadataFailoverPolicy controls metadataRouter behavior on empty match.
type MetadataFailoverPolicy int

const (
	MetadataFailoverNone MetadataFailoverPolicy = iota
	MetadataFailoverAll
	MetadataFailoverNoKey
)

// RateLimitAmount is one threshold within a RateLimitRule's time window.
type RateLimitAmount struct {
	MaxAmount  int64
	ValidDur   int64 // nanoseconds
	Precision  int32
}

// RateLimitRule is the cached payload for EventRateLimiting.
type RateLimitRule struct {
	ID        string
	Service   ServiceKey
	Labels    map[string]MatchString
	Amounts   []RateLimitAmount
	Mode      string // "local" or "global"
	Disable   bool
	Revision  string
}

// CircuitBreakerThreshold configures when a resource trips open.
type CircuitBreakerThreshold struct {
	ErrorRate       float64
	MinRequestCount int
	ConsecutiveErrs int
	SleepWindowSec  int
	RequestVolume   int
	SuccessCountToClose int
}

// CircuitBreakerRule is the cached payload for EventCircuitBreaker.
type CircuitBreakerRule struct {
	ID        string
	Service   ServiceKey
	Threshold CircuitBreakerThreshold
	FallbackCode int
	FallbackBody string
	Revision  string
}

// LaneRule partitions traffic by lane label, same matching primitives as
// RoutingRule.
type LaneRule struct {
	ID           string
	LaneName     string
	Labels       map[string]MatchString
	Destinations []RouteDestination
	Revision     string
}

// FaultDetectRule configures active health probing; the SDK only caches and
// dispatches it to the breaker plugin, per spec §3.
type FaultDetectRule struct {
	ID       string
	Service  ServiceKey
	Protocol string
	Port     uint32
	Path     string
	Revision string
}
