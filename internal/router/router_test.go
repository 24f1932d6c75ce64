package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polarismesh/polaris-go/pkg/model"
	"github.com/polarismesh/polaris-go/pkg/polerr"
)

func instances(svc model.ServiceKey, revision string, insts ...*model.Instance) *model.ServiceInstances {
	return model.NewServiceInstances(model.ServiceInfo{Service: svc}, insts, revision)
}

func inst(id string, healthy, isolated bool, meta map[string]string, loc model.Location) *model.Instance {
	return &model.Instance{
		ID:       id,
		Healthy:  healthy,
		Isolated: isolated,
		Weight:   100,
		Metadata: meta,
		Location: loc,
	}
}

func TestIsolatedRouterDropsIsolatedInstances(t *testing.T) {
	svc := model.ServiceKey{Namespace: "ns", Service: "svc"}
	in := instances(svc, "1",
		inst("a", true, false, nil, model.Location{}),
		inst("b", true, true, nil, model.Location{}),
	)
	r := NewIsolatedRouter()
	out, err := r.Route(RouteContext{}, in)
	require.NoError(t, err)
	require.Len(t, out.Instances, 1)
	assert.Equal(t, "a", out.Instances[0].ID)
}

func TestRecoverRouterFallsBackWhenAllUnhealthy(t *testing.T) {
	svc := model.ServiceKey{Namespace: "ns", Service: "svc"}
	in := instances(svc, "1",
		inst("a", false, false, nil, model.Location{}),
		inst("b", false, false, nil, model.Location{}),
	)
	r := NewRecoverRouter()
	out, err := r.Route(RouteContext{}, in)
	require.NoError(t, err)
	assert.Len(t, out.Instances, 2)
}

func TestRecoverRouterNarrowsToHealthyWhenSomeAlive(t *testing.T) {
	svc := model.ServiceKey{Namespace: "ns", Service: "svc"}
	in := instances(svc, "1",
		inst("a", true, false, nil, model.Location{}),
		inst("b", false, false, nil, model.Location{}),
	)
	r := NewRecoverRouter()
	out, err := r.Route(RouteContext{}, in)
	require.NoError(t, err)
	require.Len(t, out.Instances, 1)
	assert.Equal(t, "a", out.Instances[0].ID)
}

func TestMetadataRouterNoneFailoverReturnsMetadataMismatch(t *testing.T) {
	svc := model.ServiceKey{Namespace: "ns", Service: "svc"}
	in := instances(svc, "1",
		inst("a", true, false, map[string]string{"env": "prod"}, model.Location{}),
	)
	ctx := RouteContext{Route: model.RouteInfo{
		Metadata:         map[string]string{"env": "staging"},
		MetadataFailover: model.MetadataFailoverNone,
	}}
	r := NewMetadataRouter()
	require.True(t, r.Enable(ctx, in))
	out, err := r.Route(ctx, in)
	require.Error(t, err)
	assert.Nil(t, out)
	var polErr *polerr.PolarisError
	require.ErrorAs(t, err, &polErr)
	assert.Equal(t, polerr.CodeMetadataMismatch, polErr.Code)
}

func TestMetadataRouterAllFailoverReturnsFullSet(t *testing.T) {
	svc := model.ServiceKey{Namespace: "ns", Service: "svc"}
	in := instances(svc, "1",
		inst("a", true, false, map[string]string{"env": "prod"}, model.Location{}),
	)
	ctx := RouteContext{Route: model.RouteInfo{
		Metadata:         map[string]string{"env": "staging"},
		MetadataFailover: model.MetadataFailoverAll,
	}}
	r := NewMetadataRouter()
	out, err := r.Route(ctx, in)
	require.NoError(t, err)
	assert.Len(t, out.Instances, 1)
}

func TestMetadataRouterNoKeyFailoverReturnsKeyless(t *testing.T) {
	svc := model.ServiceKey{Namespace: "ns", Service: "svc"}
	in := instances(svc, "1",
		inst("a", true, false, map[string]string{"env": "prod"}, model.Location{}),
		inst("b", true, false, nil, model.Location{}),
	)
	ctx := RouteContext{Route: model.RouteInfo{
		Metadata:         map[string]string{"env": "staging"},
		MetadataFailover: model.MetadataFailoverNoKey,
	}}
	r := NewMetadataRouter()
	out, err := r.Route(ctx, in)
	require.NoError(t, err)
	require.Len(t, out.Instances, 1)
	assert.Equal(t, "b", out.Instances[0].ID)
}

func TestMetadataRouterExactMatchTakesPriority(t *testing.T) {
	svc := model.ServiceKey{Namespace: "ns", Service: "svc"}
	in := instances(svc, "1",
		inst("a", true, false, map[string]string{"env": "prod"}, model.Location{}),
	)
	ctx := RouteContext{Route: model.RouteInfo{Metadata: map[string]string{"env": "prod"}}}
	r := NewMetadataRouter()
	out, err := r.Route(ctx, in)
	require.NoError(t, err)
	require.Len(t, out.Instances, 1)
}

func TestNearbyRouterStrictFailsClosedWhenNoCampusMatch(t *testing.T) {
	svc := model.ServiceKey{Namespace: "ns", Service: "svc"}
	caller := model.Location{Region: "rA", Zone: "zA", Campus: "cA"}
	in := instances(svc, "1",
		inst("a", true, false, nil, model.Location{Region: "rA", Zone: "zA", Campus: "cz"}),
	)
	ctx := RouteContext{Location: caller}
	r, err := NewNearbyBasedRouter(true, false, 0, "campus", "all")
	require.NoError(t, err)
	out, err := r.Route(ctx, in)
	require.NoError(t, err)
	assert.Len(t, out.Instances, 0)
}

func TestNearbyRouterDegradesToWiderScope(t *testing.T) {
	svc := model.ServiceKey{Namespace: "ns", Service: "svc"}
	caller := model.Location{Region: "rA", Zone: "zA", Campus: "cA"}
	in := instances(svc, "1",
		inst("a", true, false, nil, model.Location{Region: "rA", Zone: "zB", Campus: "cB"}),
	)
	ctx := RouteContext{Location: caller}
	r, err := NewNearbyBasedRouter(false, false, 0, "campus", "all")
	require.NoError(t, err)
	out, err := r.Route(ctx, in)
	require.NoError(t, err)
	require.Len(t, out.Instances, 1)
	assert.Equal(t, "a", out.Instances[0].ID)
}

func TestNearbyRouterDegradeByUnhealthyPercentSkipsLevel(t *testing.T) {
	svc := model.ServiceKey{Namespace: "ns", Service: "svc"}
	caller := model.Location{Region: "rA", Zone: "zA", Campus: "cA"}
	in := instances(svc, "1",
		inst("campus-dead", false, false, nil, model.Location{Region: "rA", Zone: "zA", Campus: "cA"}),
		inst("zone-alive", true, false, nil, model.Location{Region: "rA", Zone: "zA", Campus: "cB"}),
	)
	ctx := RouteContext{Location: caller}
	r, err := NewNearbyBasedRouter(false, true, 50, "campus", "all")
	require.NoError(t, err)
	out, err := r.Route(ctx, in)
	require.NoError(t, err)
	require.Len(t, out.Instances, 1)
	assert.Equal(t, "zone-alive", out.Instances[0].ID)
}

func TestNearbyRouterInvertedMatchLevelsIsImmediateLocationMismatch(t *testing.T) {
	_, err := NewNearbyBasedRouter(false, false, 0, "region", "campus")
	require.Error(t, err)
	var polErr *polerr.PolarisError
	require.ErrorAs(t, err, &polErr)
	assert.Equal(t, polerr.CodeLocationMismatch, polErr.Code)
}

func TestRuleBasedRouterCalleeRuleBeforeCallerRule(t *testing.T) {
	svc := model.ServiceKey{Namespace: "ns", Service: "svc"}
	in := instances(svc, "1",
		inst("a", true, false, map[string]string{"group": "a"}, model.Location{}),
		inst("b", true, false, map[string]string{"group": "b"}, model.Location{}),
	)
	ruleSet := &model.RoutingRuleSet{
		Service: svc,
		CalleeRules: []model.RoutingRule{
			{
				Destinations: []model.RouteDestination{
					{Metadata: map[string]string{"group": "a"}},
				},
			},
		},
		CallerRules: []model.RoutingRule{
			{
				Destinations: []model.RouteDestination{
					{Metadata: map[string]string{"group": "b"}},
				},
			},
		},
	}
	r := NewRuleBasedRouter(func(model.ServiceKey) (*model.RoutingRuleSet, bool) { return ruleSet, true })
	out, err := r.Route(RouteContext{}, in)
	require.NoError(t, err)
	require.Len(t, out.Instances, 1)
	assert.Equal(t, "a", out.Instances[0].ID)
}

func TestRuleBasedRouterMatchesSourceByParameter(t *testing.T) {
	svc := model.ServiceKey{Namespace: "ns", Service: "svc"}
	in := instances(svc, "1",
		inst("a", true, false, map[string]string{"group": "canary"}, model.Location{}),
	)
	ruleSet := &model.RoutingRuleSet{
		Service: svc,
		CalleeRules: []model.RoutingRule{
			{
				Sources: []model.RouteSource{
					{
						Metadata: map[string]model.MatchString{
							"user": {Type: model.MatchExact, ValueType: model.ValueParameter, Value: "alice"},
						},
					},
				},
				Destinations: []model.RouteDestination{
					{Metadata: map[string]string{"group": "canary"}},
				},
			},
		},
		Failover: model.FailoverNone,
	}
	ctx := RouteContext{Route: model.RouteInfo{
		ExternalParameterSupplier: func(key string) (string, bool) {
			if key == "user" {
				return "alice", true
			}
			return "", false
		},
	}}
	r := NewRuleBasedRouter(func(model.ServiceKey) (*model.RoutingRuleSet, bool) { return ruleSet, true })
	out, err := r.Route(ctx, in)
	require.NoError(t, err)
	require.Len(t, out.Instances, 1)
}

func TestRuleBasedRouterFailoverAllWhenNoRuleMatches(t *testing.T) {
	svc := model.ServiceKey{Namespace: "ns", Service: "svc"}
	in := instances(svc, "1",
		inst("a", true, false, nil, model.Location{}),
	)
	ruleSet := &model.RoutingRuleSet{Service: svc, Failover: model.FailoverAll}
	r := NewRuleBasedRouter(func(model.ServiceKey) (*model.RoutingRuleSet, bool) { return ruleSet, true })
	out, err := r.Route(RouteContext{}, in)
	require.NoError(t, err)
	assert.Len(t, out.Instances, 1)
}

func TestRuleBasedRouterRegexMatch(t *testing.T) {
	svc := model.ServiceKey{Namespace: "ns", Service: "svc"}
	in := instances(svc, "1",
		inst("a", true, false, map[string]string{"group": "a"}, model.Location{}),
	)
	ruleSet := &model.RoutingRuleSet{
		Service: svc,
		CalleeRules: []model.RoutingRule{
			{
				Sources: []model.RouteSource{
					{Metadata: map[string]model.MatchString{
						"version": {Type: model.MatchRegex, Value: "^1\\.[0-9]+$"},
					}},
				},
				Destinations: []model.RouteDestination{
					{Metadata: map[string]string{"group": "a"}},
				},
			},
		},
	}
	ctx := RouteContext{Route: model.RouteInfo{Metadata: map[string]string{"version": "1.5"}}}
	r := NewRuleBasedRouter(func(model.ServiceKey) (*model.RoutingRuleSet, bool) { return ruleSet, true })
	out, err := r.Route(ctx, in)
	require.NoError(t, err)
	assert.Len(t, out.Instances, 1)
}

func TestSetRouterPartitionsByMetadataLabel(t *testing.T) {
	svc := model.ServiceKey{Namespace: "ns", Service: "svc"}
	in := instances(svc, "1",
		inst("a", true, false, map[string]string{"internal-set-name": "setA"}, model.Location{}),
		inst("b", true, false, map[string]string{"internal-set-name": "setB"}, model.Location{}),
	)
	ctx := RouteContext{Route: model.RouteInfo{Metadata: map[string]string{"internal-set-name": "setA"}}}
	r := NewSetRouter()
	require.True(t, r.Enable(ctx, in))
	out, err := r.Route(ctx, in)
	require.NoError(t, err)
	require.Len(t, out.Instances, 1)
	assert.Equal(t, "a", out.Instances[0].ID)
}

func TestSetRouterFallsBackWhenNoInstanceTagged(t *testing.T) {
	svc := model.ServiceKey{Namespace: "ns", Service: "svc"}
	in := instances(svc, "1",
		inst("a", true, false, nil, model.Location{}),
	)
	ctx := RouteContext{Route: model.RouteInfo{Metadata: map[string]string{"internal-set-name": "setA"}}}
	r := NewSetRouter()
	out, err := r.Route(ctx, in)
	require.NoError(t, err)
	assert.Len(t, out.Instances, 1)
}

func TestCanaryRouterDisabledWithoutCanaryLabel(t *testing.T) {
	svc := model.ServiceKey{Namespace: "ns", Service: "svc"}
	in := instances(svc, "1", inst("a", true, false, nil, model.Location{}))
	r := NewCanaryRouter()
	assert.False(t, r.Enable(RouteContext{}, in))
}

func TestLaneRouterPartitionsByLaneKey(t *testing.T) {
	svc := model.ServiceKey{Namespace: "ns", Service: "svc"}
	in := instances(svc, "1",
		inst("a", true, false, map[string]string{"lane": "gray"}, model.Location{}),
		inst("b", true, false, map[string]string{"lane": "base"}, model.Location{}),
	)
	ctx := RouteContext{Route: model.RouteInfo{LaneKey: "gray"}}
	r := NewLaneRouter()
	require.True(t, r.Enable(ctx, in))
	out, err := r.Route(ctx, in)
	require.NoError(t, err)
	require.Len(t, out.Instances, 1)
	assert.Equal(t, "a", out.Instances[0].ID)
}

func TestNamespaceRouterPrefersCallerNamespace(t *testing.T) {
	svc := model.ServiceKey{Namespace: "ns", Service: "svc"}
	in := instances(svc, "1",
		&model.Instance{ID: "a", Healthy: true, Weight: 100, Service: model.ServiceKey{Namespace: "ns1", Service: "svc"}},
		&model.Instance{ID: "b", Healthy: true, Weight: 100, Service: model.ServiceKey{Namespace: "ns2", Service: "svc"}},
	)
	caller := model.ServiceKey{Namespace: "ns1", Service: "caller"}
	ctx := RouteContext{Route: model.RouteInfo{SourceService: &caller}}
	r := NewNamespaceRouter()
	require.True(t, r.Enable(ctx, in))
	out, err := r.Route(ctx, in)
	require.NoError(t, err)
	require.Len(t, out.Instances, 1)
	assert.Equal(t, "a", out.Instances[0].ID)
}

func TestChainStopsWithRouteRuleNotMatchWhenStageEmptiesSet(t *testing.T) {
	svc := model.ServiceKey{Namespace: "ns", Service: "svc"}
	in := instances(svc, "1",
		inst("a", true, true, nil, model.Location{}),
	)
	chain := NewChain([]ServiceRouter{NewIsolatedRouter()}, nil, nil)
	_, err := chain.Route(RouteContext{}, in)
	require.Error(t, err)
	var polErr *polerr.PolarisError
	require.ErrorAs(t, err, &polErr)
	assert.Equal(t, polerr.CodeRouteRuleNotMatch, polErr.Code)
}

func TestChainRunsBeforeCoreAfterInOrder(t *testing.T) {
	svc := model.ServiceKey{Namespace: "ns", Service: "svc"}
	in := instances(svc, "1",
		inst("a", true, false, map[string]string{"env": "prod"}, model.Location{}),
		inst("b", false, false, map[string]string{"env": "prod"}, model.Location{}),
	)
	ctx := RouteContext{Route: model.RouteInfo{Metadata: map[string]string{"env": "prod"}}}
	chain := NewChain(
		[]ServiceRouter{NewIsolatedRouter()},
		[]ServiceRouter{NewRecoverRouter()},
		[]ServiceRouter{NewMetadataRouter()},
	)
	out, err := chain.Route(ctx, in)
	require.NoError(t, err)
	require.Len(t, out.Instances, 1)
	assert.Equal(t, "a", out.Instances[0].ID)
}
