package transport

import "github.com/polarismesh/polaris-go/pkg/model"

// RPC method paths on the control plane's gRPC services. Methods are
// invoked generically through grpc.ClientConn.Invoke/NewStream using the
// json codec registered in codec.go.
const (
	methodRegisterInstance   = "/v1.PolarisGRPC/RegisterInstance"
	methodDeregisterInstance = "/v1.PolarisGRPC/DeregisterInstance"
	methodHeartbeat          = "/v1.PolarisGRPC/Heartbeat"
	methodReportClient       = "/v1.PolarisGRPC/ReportClient"
	methodReportServiceContract = "/v1.PolarisGRPC/ReportServiceContract"
	methodGetServiceContract    = "/v1.PolarisGRPC/GetServiceContract"
	methodDiscover           = "/v1.PolarisGRPC/Discover"
	methodGetConfigFile      = "/v1.ConfigFile/GetConfigFile"
	methodCreateConfigFile   = "/v1.ConfigFile/CreateConfigFile"
	methodUpdateConfigFile   = "/v1.ConfigFile/UpdateConfigFile"
	methodPublishConfigFile  = "/v1.ConfigFile/PublishConfigFile"
	methodWatchConfigFile    = "/v1.ConfigFile/WatchConfigFile"
)

// RegisterInstanceRequest is the wire payload for instance registration.
type RegisterInstanceRequest struct {
	Namespace    string            `json:"namespace"`
	Service      string            `json:"service"`
	Host         string            `json:"host"`
	Port         int               `json:"port"`
	Protocol     string            `json:"protocol,omitempty"`
	VPCID        string            `json:"vpc_id,omitempty"`
	Weight       int               `json:"weight,omitempty"`
	Priority     int               `json:"priority,omitempty"`
	Version      string            `json:"version,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Healthy      bool              `json:"healthy"`
	Isolated     bool              `json:"isolated"`
	TTL          int               `json:"ttl,omitempty"`
	ServiceToken string            `json:"service_token,omitempty"`
}

// RegisterInstanceResponse reports the assigned instance id.
type RegisterInstanceResponse struct {
	InstanceID string `json:"instance_id"`
	Existed    bool   `json:"existed"`
}

// DeregisterInstanceRequest identifies an instance by its natural key.
type DeregisterInstanceRequest struct {
	Namespace string `json:"namespace"`
	Service   string `json:"service"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	VPCID     string `json:"vpc_id,omitempty"`
}

// HeartbeatRequest reports liveness for one instance.
type HeartbeatRequest struct {
	Namespace string `json:"namespace"`
	Service   string `json:"service"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	VPCID     string `json:"vpc_id,omitempty"`
}

// ReportClientRequest is the periodic client-identity heartbeat described
// in the control plane's client reporting flow.
type ReportClientRequest struct {
	ClientID string          `json:"client_id"`
	Host     string          `json:"host"`
	Version  string          `json:"version"`
	Location model.Location  `json:"location"`
}

// ServiceContractRequest/Response carry the optional API-contract facade.
type ServiceContractRequest struct {
	Namespace   string `json:"namespace"`
	Service     string `json:"service"`
	ContractID  string `json:"contract_id,omitempty"`
	ContractVer string `json:"version,omitempty"`
}

type ServiceContractResponse struct {
	ContractID  string `json:"contract_id"`
	ContractVer string `json:"version"`
	Content     string `json:"content"`
	Revision    string `json:"revision"`
}

// DiscoverRequest subscribes to change notifications for one resource.
type DiscoverRequest struct {
	Key      model.ResourceEventKey `json:"key"`
	Revision string                 `json:"revision,omitempty"`
}

// DiscoverResponse carries one server-pushed event. Payload is re-decoded
// by the cache layer according to Key.EventType.
type DiscoverResponse struct {
	Key      model.ResourceEventKey `json:"key"`
	Action   model.Action           `json:"action"`
	Revision string                 `json:"revision"`
	Payload  []byte                 `json:"payload"`
}

// ConfigFileRequest/Response cover the get/create/update/publish flows.
type ConfigFileRequest struct {
	Namespace string `json:"namespace"`
	Group     string `json:"group"`
	Name      string `json:"name"`
	Content   string `json:"content,omitempty"`
	ReleaseName string `json:"release_name,omitempty"`
}

type ConfigFileResponse struct {
	Namespace string `json:"namespace"`
	Group     string `json:"group"`
	Name      string `json:"name"`
	Content   string `json:"content"`
	Version   uint64 `json:"version"`
	MD5       string `json:"md5"`
}

// WatchConfigFileRequest subscribes to publish events for a set of files.
type WatchConfigFileRequest struct {
	Namespace string   `json:"namespace"`
	Group     string   `json:"group"`
	Names     []string `json:"names"`
}

// WatchConfigFileResponse is one publish notification.
type WatchConfigFileResponse struct {
	Namespace string `json:"namespace"`
	Group     string `json:"group"`
	Name      string `json:"name"`
	Version   uint64 `json:"version"`
	Content   string `json:"content"`
	MD5       string `json:"md5"`
}
