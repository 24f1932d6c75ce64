package model

import "time"

// RouteInfo carries the caller-supplied routing context for a single
// ProcessRouteRequest call through the router chain.
type RouteInfo struct {
	SourceService   *ServiceKey
	Metadata        map[string]string
	MetadataFailover MetadataFailoverPolicy
	TrafficLabels   map[string]string
	LaneKey         string
	// ExternalParameterSupplier resolves a Variable-kind MatchString value
	// when it is not present as an environment variable (spec §4.4, §6).
	ExternalParameterSupplier func(key string) (string, bool)
}

// Criteria selects the load-balancing policy and hash key for one call.
type Criteria struct {
	Policy  string
	HashKey []byte
}

// GetInstancesRequest is the consumer-facing discovery request.
type GetInstancesRequest struct {
	Service   ServiceKey
	Timeout   time.Duration
	RouteInfo RouteInfo
	Criteria  Criteria
	SkipRouteFilter bool
}

// InstanceRegisterRequest registers a provider instance.
type InstanceRegisterRequest struct {
	Service      ServiceKey
	Host         string
	Port         uint32
	Protocol     string
	VPCID        string
	Weight       uint32
	Priority     uint32
	Metadata     map[string]string
	Version      string
	Location     Location
	TTL          int
	AutoHeartbeat bool
	Timeout      time.Duration
}

// InstanceRegisterResponse reports what register produced.
type InstanceRegisterResponse struct {
	InstanceID string
	Existed    bool
}

// InstanceDeregisterRequest deregisters a provider instance.
type InstanceDeregisterRequest struct {
	Service  ServiceKey
	Host     string
	Port     uint32
	VPCID    string
	Timeout  time.Duration
}

// InstanceHeartbeatRequest reports liveness for a registered instance.
type InstanceHeartbeatRequest struct {
	Service ServiceKey
	Host    string
	Port    uint32
	VPCID   string
	Timeout time.Duration
}

// ResourceLevel distinguishes the three circuit-breaker granularities.
type ResourceLevel int

const (
	ResourceService ResourceLevel = iota
	ResourceMethod
	ResourceInstance
)

// Resource identifies the unit a circuit breaker check/report applies to.
type Resource struct {
	Level    ResourceLevel
	Service  ServiceKey
	Caller   *ServiceKey
	Protocol string
	Method   string
	Path     string
	InstanceID string
}

// Key returns a string uniquely identifying the resource for breaker state
// lookups; each level is keyed independently per spec §4.6.
func (r Resource) Key() string {
	switch r.Level {
	case ResourceMethod:
		return "method:" + r.Service.String() + ":" + r.Protocol + ":" + r.Method + ":" + r.Path
	case ResourceInstance:
		return "instance:" + r.Service.String() + ":" + r.InstanceID
	default:
		return "service:" + r.Service.String()
	}
}

// RetStatus classifies a reported call outcome.
type RetStatus int

const (
	RetSuccess RetStatus = iota
	RetFail
	RetTimeout
	RetReject
	RetFlowControl
	RetUnknown
)

// ResourceStat is one reported call outcome for a Resource.
type ResourceStat struct {
	Resource Resource
	RetCode  int
	Delay    time.Duration
	Status   RetStatus
}

// FallbackInfo is rule-supplied alternative content returned when a
// circuit breaker short-circuits a call.
type FallbackInfo struct {
	Code    int
	Headers map[string]string
	Body    string
}

// CheckResult is the synchronous circuit-breaker decision.
type CheckResult struct {
	Pass         bool
	RuleName     string
	FallbackInfo *FallbackInfo
}

// QuotaRequest asks the rate limiter for permission to proceed.
type QuotaRequest struct {
	Service      ServiceKey
	Labels       map[string]string
	Amount       int64
	MaxQueueTime time.Duration
}

// QuotaResponse is the rate limiter's verdict.
type QuotaResponse struct {
	Allowed bool
	Message string
	// WaitTime is non-zero when the caller was made to queue before being
	// allowed (or before being finally rejected).
	WaitTime time.Duration
}
