// Package config loads and validates the SDK's configuration file, whose
// shape is defined in spec §6 (global/consumer/provider/config top-level
// groups). Loading is grounded on the layered koanf loader used by
// Hola-to-network_logistics_problem's pkg/config/loader.go: defaults <
// YAML file < environment variables, all decoded through github.com/
// knadh/koanf/v2.
package config

import (
	"time"
)

// ClusterConfig names the buildin service backing one SDK cluster role
// (discover / config / health-check).
type ClusterConfig struct {
	Namespace       string        `koanf:"namespace"`
	Service         string        `koanf:"service"`
	RefreshInterval time.Duration `koanf:"refresh_interval"`
	Routers         []string      `koanf:"routers"`
	LBPolicy        string        `koanf:"lb_policy"`
}

// SystemConfig names the three buildin clusters.
type SystemConfig struct {
	DiscoverCluster   ClusterConfig `koanf:"discover_cluster"`
	ConfigCluster     ClusterConfig `koanf:"config_cluster"`
	HealthCheckCluster ClusterConfig `koanf:"health_check_cluster"`
}

// APIConfig controls default SDK-wide RPC behavior.
type APIConfig struct {
	Timeout        time.Duration `koanf:"timeout"`
	MaxRetryTimes  int           `koanf:"max_retry_times"`
	RetryInterval  time.Duration `koanf:"retry_interval"`
	BindIF         string        `koanf:"bind_if"`
	BindIP         string        `koanf:"bind_ip"`
	ReportInterval time.Duration `koanf:"report_interval"`
}

// TLSConfig configures a server connector's transport security.
type TLSConfig struct {
	TrustedCAFile string `koanf:"trusted_ca_file"`
	CertFile      string `koanf:"cert_file"`
	KeyFile       string `koanf:"key_file"`
}

// ServerConnectorConfig is one entry of global.server_connectors.
type ServerConnectorConfig struct {
	Addresses             []string          `koanf:"addresses"`
	Protocol              string            `koanf:"protocol"`
	ConnectTimeout        time.Duration     `koanf:"connect_timeout"`
	ServerSwitchInterval  time.Duration     `koanf:"server_switch_interval"`
	MessageTimeout        time.Duration     `koanf:"message_timeout"`
	ConnectionIdleTimeout time.Duration     `koanf:"connection_idle_timeout"`
	ReconnectInterval     time.Duration     `koanf:"reconnect_interval"`
	Metadata              map[string]string `koanf:"metadata"`
	SSL                   TLSConfig         `koanf:"ssl"`
	Token                 string            `koanf:"token"`
}

// StatReporterPluginConfig is one entry of global.stat_reporter.chain.
type StatReporterPluginConfig struct {
	Name    string                 `koanf:"name"`
	Options map[string]interface{} `koanf:"options"`
}

// StatReporterConfig configures the async stats pipeline.
type StatReporterConfig struct {
	Chain []StatReporterPluginConfig `koanf:"chain"`
}

// LocationProviderConfig is one entry of global.location.providers.
type LocationProviderConfig struct {
	Name    string                 `koanf:"name"`
	Options map[string]interface{} `koanf:"options"`
}

// LocationConfig configures the location-supplier plugin chain.
type LocationConfig struct {
	Providers []LocationProviderConfig `koanf:"providers"`
}

// LocalCacheConfig configures the resource cache and its disk failover.
type LocalCacheConfig struct {
	Name                      string        `koanf:"name"`
	ServiceExpireEnable       bool          `koanf:"service_expire_enable"`
	ServiceExpireTime         time.Duration `koanf:"service_expire_time"`
	ServiceRefreshInterval    time.Duration `koanf:"service_refresh_interval"`
	ServiceListRefreshInterval time.Duration `koanf:"service_list_refresh_interval"`
	PersistEnable             bool          `koanf:"persist_enable"`
	PersistDir                string        `koanf:"persist_dir"`
	PersistMaxReadRetry       int           `koanf:"persist_max_read_retry"`
	PersistMaxWriteRetry      int           `koanf:"persist_max_write_retry"`
	PersistRetryInterval      time.Duration `koanf:"persist_retry_interval"`
}

// GlobalConfig is the top-level "global" group.
type GlobalConfig struct {
	System          SystemConfig                     `koanf:"system"`
	API             APIConfig                        `koanf:"api"`
	ServerConnectors map[string]ServerConnectorConfig `koanf:"server_connectors"`
	StatReporter    StatReporterConfig                `koanf:"stat_reporter"`
	Location        LocationConfig                    `koanf:"location"`
	LocalCache      LocalCacheConfig                  `koanf:"local_cache"`
}

// ServiceRouterConfig configures the before/core/after router chain.
type ServiceRouterConfig struct {
	BeforeChain []string           `koanf:"before_chain"`
	CoreChain   []string           `koanf:"core_chain"`
	AfterChain  []string           `koanf:"after_chain"`
	Nearby      NearbyRouterConfig `koanf:"nearby"`
}

// NearbyRouterConfig configures nearbyBasedRouter's geographic fallback.
type NearbyRouterConfig struct {
	StrictNearby                    bool   `koanf:"strict_nearby"`
	EnableDegradeByUnhealthyPercent bool   `koanf:"enable_degrade_by_unhealthy_percent"`
	UnhealthyPercentToDegrade       int    `koanf:"unhealthy_percent_to_degrade"`
	MatchLevel                      string `koanf:"match_level"`
	MaxMatchLevel                   string `koanf:"max_match_level"`
}

// LoadBalancerConfig configures the default LB policy and which plugins load.
type LoadBalancerConfig struct {
	DefaultPolicy string   `koanf:"default_policy"`
	Plugins       []string `koanf:"plugins"`
}

// CircuitBreakerConsumerConfig toggles breaker behavior on the consumer side.
type CircuitBreakerConsumerConfig struct {
	Enable           bool `koanf:"enable"`
	EnableRemotePull bool `koanf:"enable_remote_pull"`
}

// ConsumerConfig is the top-level "consumer" group.
type ConsumerConfig struct {
	ServiceRouter  ServiceRouterConfig          `koanf:"service_router"`
	LoadBalancer   LoadBalancerConfig           `koanf:"load_balancer"`
	CircuitBreaker CircuitBreakerConsumerConfig `koanf:"circuit_breaker"`
}

// RateLimitProviderConfig configures the provider-side quota client.
type RateLimitProviderConfig struct {
	Enable                     bool          `koanf:"enable"`
	Service                    string        `koanf:"service"`
	Namespace                  string        `koanf:"namespace"`
	Addresses                  []string      `koanf:"addresses"`
	MaxWindowCount             int           `koanf:"max_window_count"`
	FallbackOnExceedWindowCount bool         `koanf:"fallback_on_exceed_window_count"`
	RemoteSyncTimeout          time.Duration `koanf:"remote_sync_timeout"`
	MaxQueuingTime             time.Duration `koanf:"max_queuing_time"`
	ReportMetrics              bool          `koanf:"report_metrics"`
}

// LosslessConfig configures lossless register/deregister.
type LosslessConfig struct {
	Enable                 bool          `koanf:"enable"`
	Host                   string        `koanf:"host"`
	Port                   int           `koanf:"port"`
	DelayRegisterInterval  time.Duration `koanf:"delay_register_interval"`
	HealthCheckInterval    time.Duration `koanf:"health_check_interval"`
}

// ProviderConfig is the top-level "provider" group.
type ProviderConfig struct {
	RateLimit           RateLimitProviderConfig `koanf:"rate_limit"`
	Lossless            LosslessConfig          `koanf:"lossless"`
	MinRegisterInterval time.Duration           `koanf:"min_register_interval"`
	HeartbeatWorkerSize int                     `koanf:"heartbeat_worker_size"`
}

// ConfigFileConfig is the top-level "config" group (config-file subsystem).
type ConfigFileConfig struct {
	DefaultTimeout time.Duration `koanf:"default_timeout"`
}

// Configuration is the fully parsed configuration file.
type Configuration struct {
	Global   GlobalConfig     `koanf:"global"`
	Consumer ConsumerConfig   `koanf:"consumer"`
	Provider ProviderConfig   `koanf:"provider"`
	Config   ConfigFileConfig `koanf:"config"`
}

// Default returns a Configuration populated with the SDK's built-in
// defaults, applied before the file and environment layers in Loader.Load.
func Default() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			System: SystemConfig{
				DiscoverCluster: ClusterConfig{
					Namespace: "Polaris",
					Service:   "polaris.discover",
					RefreshInterval: 10 * time.Minute,
				},
				ConfigCluster: ClusterConfig{
					Namespace: "Polaris",
					Service:   "polaris.config",
					RefreshInterval: 10 * time.Minute,
				},
				HealthCheckCluster: ClusterConfig{
					Namespace: "Polaris",
					Service:   "polaris.healthcheck",
					RefreshInterval: 10 * time.Minute,
				},
			},
			API: APIConfig{
				Timeout:        time.Second,
				MaxRetryTimes:  3,
				RetryInterval:  500 * time.Millisecond,
				ReportInterval: time.Minute,
			},
			ServerConnectors: map[string]ServerConnectorConfig{
				"grpc": {
					Protocol:              "grpc",
					ConnectTimeout:        200 * time.Millisecond,
					ServerSwitchInterval:  10 * time.Minute,
					MessageTimeout:        time.Second,
					ConnectionIdleTimeout: time.Minute,
					ReconnectInterval:     500 * time.Millisecond,
				},
			},
			LocalCache: LocalCacheConfig{
				Name:                       "memory",
				ServiceExpireEnable:        true,
				ServiceExpireTime:          24 * time.Hour,
				ServiceRefreshInterval:     2 * time.Second,
				ServiceListRefreshInterval: time.Minute,
				PersistEnable:              true,
				PersistDir:                 "./polaris/backup",
				PersistMaxReadRetry:        1,
				PersistMaxWriteRetry:       1,
				PersistRetryInterval:       time.Second,
			},
		},
		Consumer: ConsumerConfig{
			ServiceRouter: ServiceRouterConfig{
				BeforeChain: []string{"isolatedRouter"},
				CoreChain:   []string{"recoverRouter", "ruleBasedRouter", "nearbyBasedRouter", "metadataRouter"},
				AfterChain:  []string{},
				Nearby: NearbyRouterConfig{
					EnableDegradeByUnhealthyPercent: true,
					UnhealthyPercentToDegrade:       50,
					MatchLevel:                      "campus",
					MaxMatchLevel:                   "all",
				},
			},
			LoadBalancer: LoadBalancerConfig{
				DefaultPolicy: "weightedRandom",
				Plugins:       []string{"weightedRandom", "weightedRoundRobin", "ringHash"},
			},
			CircuitBreaker: CircuitBreakerConsumerConfig{Enable: true},
		},
		Provider: ProviderConfig{
			MinRegisterInterval: 30 * time.Second,
			HeartbeatWorkerSize: 8,
			RateLimit: RateLimitProviderConfig{
				MaxWindowCount:    6000,
				RemoteSyncTimeout: 100 * time.Millisecond,
			},
			Lossless: LosslessConfig{
				DelayRegisterInterval: 5 * time.Second,
				HealthCheckInterval:   5 * time.Second,
			},
		},
		Config: ConfigFileConfig{
			DefaultTimeout: time.Second,
		},
	}
}
