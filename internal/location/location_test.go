package location

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polarismesh/polaris-go/pkg/model"
)

func TestLocalSupplierReturnsConfiguredLocation(t *testing.T) {
	s := NewLocalSupplier(map[string]interface{}{"region": "us", "zone": "us-1a", "campus": "dc1"})
	loc, err := s.GetLocation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.Location{Region: "us", Zone: "us-1a", Campus: "dc1"}, loc)
}

func TestHTTPSupplierFetchesLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(httpLocation{Region: "eu", Zone: "eu-1a", Campus: "dc2"})
	}))
	defer srv.Close()

	s := NewHTTPSupplier(map[string]interface{}{"url": srv.URL})
	loc, err := s.GetLocation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.Location{Region: "eu", Zone: "eu-1a", Campus: "dc2"}, loc)
}

func TestHTTPSupplierRequiresURL(t *testing.T) {
	s := NewHTTPSupplier(nil)
	_, err := s.GetLocation(context.Background())
	assert.Error(t, err)
}

func TestServiceSupplierReturnsFirstHealthyInstanceLocation(t *testing.T) {
	svc := model.ServiceKey{Namespace: "Polaris", Service: "location-service"}
	want := model.Location{Region: "ap", Zone: "ap-1a", Campus: "dc3"}
	resolve := func(ctx context.Context, key model.ServiceKey, timeout time.Duration) (*model.ServiceInstances, error) {
		return model.NewServiceInstances(model.ServiceInfo{Service: key}, []*model.Instance{
			{ID: "i1", Healthy: false, Location: model.Location{Region: "wrong"}},
			{ID: "i2", Healthy: true, Location: want},
		}, "rev-1"), nil
	}
	s := NewServiceSupplier(map[string]interface{}{"namespace": svc.Namespace, "service": svc.Service}, resolve)
	loc, err := s.GetLocation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, loc)
}

func TestChainResolvesFirstNonEmptyResult(t *testing.T) {
	empty := NewLocalSupplier(nil)
	filled := NewLocalSupplier(map[string]interface{}{"region": "us"})
	chain := NewChain([]Supplier{empty, filled})
	loc := chain.Resolve(context.Background())
	assert.Equal(t, "us", loc.Region)
}

func TestChainWithNoSuppliersResolvesEmpty(t *testing.T) {
	chain := NewChain(nil)
	assert.True(t, chain.Resolve(context.Background()).Empty())
}
