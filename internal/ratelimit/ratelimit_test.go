package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polarismesh/polaris-go/pkg/model"
)

func TestGetQuotaAllowsWhenNoRuleConfigured(t *testing.T) {
	reg := NewRegistry(nil, nil)
	resp, rule, err := reg.GetQuota(context.Background(), model.QuotaRequest{Service: model.ServiceKey{Namespace: "ns", Service: "svc"}})
	require.NoError(t, err)
	assert.True(t, resp.Allowed)
	assert.Nil(t, rule)
}

func TestConcurrencyLimiterRejectsBeyondMax(t *testing.T) {
	svc := model.ServiceKey{Namespace: "ns", Service: "svc"}
	rule := &model.RateLimitRule{ID: "r1", Service: svc, Revision: "1"}
	source := func(model.ServiceKey) ([]*model.RateLimitRule, bool) { return []*model.RateLimitRule{rule}, true }
	reg := NewRegistry(source, nil)

	st := reg.stateFor(rule)
	st.concurrency.max = 2

	req := model.QuotaRequest{Service: svc}
	resp1, _, err := reg.GetQuota(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp1.Allowed)

	resp2, _, err := reg.GetQuota(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp2.Allowed)

	resp3, _, err := reg.GetQuota(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, resp3.Allowed)
}

func TestReturnQuotaFreesConcurrencySlot(t *testing.T) {
	svc := model.ServiceKey{Namespace: "ns", Service: "svc"}
	rule := &model.RateLimitRule{ID: "r1", Service: svc, Revision: "1"}
	source := func(model.ServiceKey) ([]*model.RateLimitRule, bool) { return []*model.RateLimitRule{rule}, true }
	reg := NewRegistry(source, nil)
	reg.stateFor(rule).concurrency.max = 1

	req := model.QuotaRequest{Service: svc}
	_, gotRule, err := reg.GetQuota(context.Background(), req)
	require.NoError(t, err)

	resp, _, err := reg.GetQuota(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, resp.Allowed)

	reg.ReturnQuota(gotRule)

	resp2, _, err := reg.GetQuota(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp2.Allowed)
}

func TestGetQuotaSkipsDisabledRules(t *testing.T) {
	svc := model.ServiceKey{Namespace: "ns", Service: "svc"}
	rules := []*model.RateLimitRule{
		{ID: "disabled", Service: svc, Disable: true, Revision: "1"},
	}
	source := func(model.ServiceKey) ([]*model.RateLimitRule, bool) { return rules, true }
	reg := NewRegistry(source, nil)

	resp, rule, err := reg.GetQuota(context.Background(), model.QuotaRequest{Service: svc})
	require.NoError(t, err)
	assert.True(t, resp.Allowed)
	assert.Nil(t, rule)
}

func TestGetQuotaMatchesLabelBeforeAllocating(t *testing.T) {
	svc := model.ServiceKey{Namespace: "ns", Service: "svc"}
	rule := &model.RateLimitRule{
		ID:      "r1",
		Service: svc,
		Labels: map[string]model.MatchString{
			"method": {Type: model.MatchExact, Value: "GetUser"},
		},
		Revision: "1",
	}
	source := func(model.ServiceKey) ([]*model.RateLimitRule, bool) { return []*model.RateLimitRule{rule}, true }
	reg := NewRegistry(source, nil)

	resp, matched, err := reg.GetQuota(context.Background(), model.QuotaRequest{
		Service: svc,
		Labels:  map[string]string{"method": "ListUsers"},
	})
	require.NoError(t, err)
	assert.True(t, resp.Allowed)
	assert.Nil(t, matched)
}

func TestGetQuotaUsesRemoteSyncForGlobalMode(t *testing.T) {
	svc := model.ServiceKey{Namespace: "ns", Service: "svc"}
	rule := &model.RateLimitRule{ID: "r1", Service: svc, Mode: "global", Revision: "1"}
	source := func(model.ServiceKey) ([]*model.RateLimitRule, bool) { return []*model.RateLimitRule{rule}, true }
	called := false
	remote := func(ctx context.Context, rule *model.RateLimitRule, req model.QuotaRequest) (model.QuotaResponse, error) {
		called = true
		return model.QuotaResponse{Allowed: false, Message: "server says no"}, nil
	}
	reg := NewRegistry(source, remote)

	resp, _, err := reg.GetQuota(context.Background(), model.QuotaRequest{Service: svc})
	require.NoError(t, err)
	assert.True(t, called)
	assert.False(t, resp.Allowed)
}
