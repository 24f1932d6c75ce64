package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polarismesh/polaris-go/pkg/config"
	"github.com/polarismesh/polaris-go/pkg/model"
)

func testConfig() *config.Configuration {
	cfg := config.Default()
	cfg.Global.ServerConnectors = map[string]config.ServerConnectorConfig{
		"grpc": {Addresses: []string{"127.0.0.1:8091"}, Protocol: "grpc", ConnectTimeout: time.Second},
	}
	cfg.Global.LocalCache.PersistEnable = false
	cfg.Global.API.Timeout = 50 * time.Millisecond
	cfg.Global.API.ReportInterval = 0
	return cfg
}

func TestNewSDKContextAssignsClientIdentity(t *testing.T) {
	sdk, err := NewSDKContext(testConfig(), nil)
	require.NoError(t, err)
	defer sdk.Destroy()

	client := sdk.ClientContext()
	assert.NotEmpty(t, client.ClientID)
}

func TestProviderRejectsInvalidServiceKey(t *testing.T) {
	sdk, err := NewSDKContext(testConfig(), nil)
	require.NoError(t, err)
	defer sdk.Destroy()

	p := NewProviderAPIBySDKContext(sdk)
	_, err = p.Register(context.Background(), model.InstanceRegisterRequest{})
	assert.Error(t, err)
}

func TestConsumerRejectsInvalidServiceKey(t *testing.T) {
	sdk, err := NewSDKContext(testConfig(), nil)
	require.NoError(t, err)
	defer sdk.Destroy()

	c := NewConsumerAPIBySDKContext(sdk)
	_, err = c.GetInstances(context.Background(), model.GetInstancesRequest{})
	assert.Error(t, err)

	err = c.WatchInstances(model.ServiceKey{}, func(model.ResourceEventKey, interface{}, string) {})
	assert.Error(t, err)
}

func TestFacadesShareOneSDKContext(t *testing.T) {
	sdk, err := NewSDKContext(testConfig(), nil)
	require.NoError(t, err)

	provider := NewProviderAPIBySDKContext(sdk)
	consumer := NewConsumerAPIBySDKContext(sdk)
	assert.Same(t, provider.SDKContext(), consumer.SDKContext())

	require.NoError(t, provider.Destroy())
	require.NoError(t, consumer.Destroy())
}

func TestRateLimitAPIRejectsInvalidServiceKey(t *testing.T) {
	sdk, err := NewSDKContext(testConfig(), nil)
	require.NoError(t, err)
	defer sdk.Destroy()

	r := NewRateLimitAPIBySDKContext(sdk)
	_, _, err = r.GetQuota(context.Background(), model.QuotaRequest{})
	assert.Error(t, err)
}
