package model

import "fmt"

// EventType discriminates the CacheItem sum type (spec §3).
type EventType int

const (
	EventInstance EventType = iota
	EventRouting
	EventRateLimiting
	EventCircuitBreaker
	EventLaneRule
	EventFaultDetect
	EventServices
	EventConfigFile
	EventConfigGroup
)

func (t EventType) String() string {
	switch t {
	case EventInstance:
		return "instance"
	case EventRouting:
		return "routing"
	case EventRateLimiting:
		return "ratelimit"
	case EventCircuitBreaker:
		return "circuitbreaker"
	case EventLaneRule:
		return "lane"
	case EventFaultDetect:
		return "faultdetect"
	case EventServices:
		return "services"
	case EventConfigFile:
		return "configfile"
	case EventConfigGroup:
		return "configgroup"
	default:
		return "unknown"
	}
}

// ResourceEventKey is the canonical identity of a cached resource
// subscription: "<type>#<namespace>#<group-or-service>#<file?>".
type ResourceEventKey struct {
	Namespace   string
	EventType   EventType
	GroupOrSvc  string
	FileName    string
	FilterLabel string
}

// CacheKey renders the canonical string form used to index the cache and
// the watcher map.
func (k ResourceEventKey) CacheKey() string {
	if k.FileName != "" {
		return fmt.Sprintf("%s#%s#%s#%s", k.EventType, k.Namespace, k.GroupOrSvc, k.FileName)
	}
	return fmt.Sprintf("%s#%s#%s", k.EventType, k.Namespace, k.GroupOrSvc)
}

// Action classifies a watcher notification.
type Action int

const (
	ActionAdd Action = iota
	ActionUpdate
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionAdd:
		return "add"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ServerEvent is the payload delivered to a ResourceListener.
type ServerEvent struct {
	Key      ResourceEventKey
	Action   Action
	Revision string
	// Value holds the refreshed payload: *model.ServiceInstances,
	// *model.ConfigFile, *RoutingRuleSet, etc. depending on EventType.
	Value interface{}
}

// ClientContext identifies this SDK process to the control plane. It is
// created once per SDKContext and never mutated after init.
type ClientContext struct {
	ClientID string
	Host     string
	Version  string
	Location Location
}
