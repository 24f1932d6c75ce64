package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/mitchellh/mapstructure"

	"github.com/polarismesh/polaris-go/pkg/polerr"
)

const envPrefix = "POLARIS_"

// Loader loads a Configuration from defaults, an optional YAML file, and
// environment variables, in that priority order — the same layering as
// Hola-to-network_logistics_problem/pkg/config/loader.go.
type Loader struct {
	k          *koanf.Koanf
	configPath string
	envPrefix  string
	dotenvPath string
}

// Option configures a Loader.
type Option func(*Loader)

// WithConfigPath sets the YAML file to load; empty skips the file layer.
func WithConfigPath(path string) Option {
	return func(l *Loader) { l.configPath = path }
}

// WithEnvPrefix overrides the default "POLARIS_" environment prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) { l.envPrefix = prefix }
}

// WithDotenv loads a .env file (via godotenv) into the process environment
// before the env layer is read. Intended for example binaries, matching
// the teacher's pkg/config.go use of godotenv.
func WithDotenv(path string) Option {
	return func(l *Loader) { l.dotenvPath = path }
}

// NewLoader builds a Loader with the given options.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: envPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load runs the defaults -> file -> env layering and returns a validated
// Configuration. Unknown top-level keys in the YAML file are rejected per
// spec §6.
func (l *Loader) Load() (*Configuration, error) {
	if l.dotenvPath != "" {
		if err := godotenv.Load(l.dotenvPath); err != nil && !os.IsNotExist(err) {
			return nil, polerr.Config("load dotenv %q: %v", l.dotenvPath, err)
		}
	}

	defaults := structToMap(Default())
	if err := l.k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, polerr.Config("load defaults: %v", err)
	}

	if l.configPath != "" {
		if err := l.k.Load(file.Provider(l.configPath), yaml.Parser()); err != nil {
			return nil, polerr.Config("load config file %q: %v", l.configPath, err)
		}
	}

	if err := l.k.Load(env.Provider(l.envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, l.envPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil); err != nil {
		return nil, polerr.Config("load environment: %v", err)
	}

	var cfg Configuration
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := l.k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook:       decodeHook,
			WeaklyTypedInput: true,
			Result:           &cfg,
			ErrorUnused:      true,
			TagName:          "koanf",
		},
	}); err != nil {
		return nil, polerr.Config("decode configuration: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// structToMap round-trips a *Configuration through mapstructure so its field
// defaults seed the koanf tree using the same "koanf" tags as the file/env
// layers.
func structToMap(cfg *Configuration) map[string]interface{} {
	out := map[string]interface{}{}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "koanf",
		Result:  &out,
	})
	if err != nil {
		return out
	}
	_ = dec.Decode(cfg)
	return out
}

// Validate performs structural checks beyond what decoding already
// guarantees, aggregating every violation via hashicorp/go-multierror so
// callers see the whole picture at once rather than fixing one field at a
// time.
func (c *Configuration) Validate() error {
	var result *multierror.Error

	if c.Global.System.DiscoverCluster.Service == "" {
		result = multierror.Append(result, fmt.Errorf("global.system.discover_cluster.service must not be empty"))
	}
	if len(c.Global.ServerConnectors) == 0 {
		result = multierror.Append(result, fmt.Errorf("global.server_connectors must define at least one connector"))
	}
	for name, sc := range c.Global.ServerConnectors {
		if len(sc.Addresses) == 0 {
			result = multierror.Append(result, fmt.Errorf("global.server_connectors.%s.addresses must not be empty", name))
		}
	}
	if c.Global.API.Timeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("global.api.timeout must be positive"))
	}
	if c.Global.LocalCache.PersistEnable && c.Global.LocalCache.PersistDir == "" {
		result = multierror.Append(result, fmt.Errorf("global.local_cache.persist_dir must be set when persist_enable is true"))
	}
	if c.Consumer.LoadBalancer.DefaultPolicy == "" {
		result = multierror.Append(result, fmt.Errorf("consumer.load_balancer.default_policy must not be empty"))
	}
	if c.Provider.MinRegisterInterval <= 0 {
		result = multierror.Append(result, fmt.Errorf("provider.min_register_interval must be positive"))
	}

	if result == nil {
		return nil
	}
	return polerr.Wrap(polerr.CodeConfig, "invalid configuration", result.ErrorOrNil())
}

// ClusterFor returns the ClusterConfig for the given connector role.
func (c *Configuration) ClusterFor(role string) ClusterConfig {
	switch role {
	case "config":
		return c.Global.System.ConfigCluster
	case "health_check":
		return c.Global.System.HealthCheckCluster
	default:
		return c.Global.System.DiscoverCluster
	}
}

// FirstConnector returns the name and config of a configured server
// connector, and false when none is configured. With more than one
// configured, which one it returns follows map iteration order.
func (c *Configuration) FirstConnector() (string, ServerConnectorConfig, bool) {
	for name, sc := range c.Global.ServerConnectors {
		return name, sc, true
	}
	return "", ServerConnectorConfig{}, false
}
