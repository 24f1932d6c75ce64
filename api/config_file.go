package api

import (
	"context"

	"github.com/polarismesh/polaris-go/pkg/config"
	"github.com/polarismesh/polaris-go/pkg/logging"
	"github.com/polarismesh/polaris-go/pkg/model"
)

// ConfigAPI is the façade for the config-file get/create/update/publish/
// watch surface, per spec §4.8's analog and §8 scenario 6.
type ConfigAPI struct {
	sdk *SDKContext
}

// NewConfigFileAPIBySDKContext builds a ConfigAPI sharing sdk's Engine.
func NewConfigFileAPIBySDKContext(sdk *SDKContext) *ConfigAPI {
	return &ConfigAPI{sdk: sdk}
}

// NewConfigFileAPI builds a dedicated SDKContext from cfg and wraps it.
func NewConfigFileAPI(cfg *config.Configuration) (*ConfigAPI, error) {
	sdk, err := NewSDKContext(cfg, logging.Global())
	if err != nil {
		return nil, err
	}
	return NewConfigFileAPIBySDKContext(sdk), nil
}

// GetConfigFile fetches the current published version of a config file,
// decrypted through the wired ConfigFilter when it carries an encrypt_algo.
func (a *ConfigAPI) GetConfigFile(ctx context.Context, namespace, group, name string) (*model.ConfigFile, error) {
	return a.sdk.Engine().GetConfigFile(ctx, namespace, group, name)
}

// CreateConfigFile creates a new, unpublished config file.
func (a *ConfigAPI) CreateConfigFile(ctx context.Context, file *model.ConfigFile) (*model.ConfigFile, error) {
	return a.sdk.Engine().CreateConfigFile(ctx, file)
}

// UpdateConfigFile overwrites the content of an existing config file.
func (a *ConfigAPI) UpdateConfigFile(ctx context.Context, file *model.ConfigFile) (*model.ConfigFile, error) {
	return a.sdk.Engine().UpdateConfigFile(ctx, file)
}

// PublishConfigFile releases a config file's current content under
// releaseName.
func (a *ConfigAPI) PublishConfigFile(ctx context.Context, namespace, group, name, releaseName string) error {
	return a.sdk.Engine().PublishConfigFile(ctx, namespace, group, name, releaseName)
}

// WatchConfigFile subscribes to publish events for names, returning the
// refreshed, decrypted content on each one.
func (a *ConfigAPI) WatchConfigFile(ctx context.Context, namespace, group string, names []string) (<-chan *model.ConfigFile, error) {
	return a.sdk.Engine().WatchConfigFile(ctx, namespace, group, names)
}

// SDKContext exposes the underlying shared context.
func (a *ConfigAPI) SDKContext() *SDKContext { return a.sdk }

// Destroy tears down the owned SDKContext.
func (a *ConfigAPI) Destroy() error { return a.sdk.Destroy() }
