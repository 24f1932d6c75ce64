// Package location implements the location-supplier plugin chain from
// spec §6's global.location.providers, resolving the process's nearby-
// router coordinates (region/zone/campus) via original_source/src/plugins/
// location's three provider kinds: local (static config), http (fetch a
// configured URL), and service (discover a location service through the
// same discover cluster). Each is a plugin.Plugin so it gets a container
// entry under plugin.KindLocationSupplier, matching every other extension
// point's wiring in internal/engine.
package location

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/polarismesh/polaris-go/pkg/model"
	"github.com/polarismesh/polaris-go/pkg/polerr"
)

// Supplier resolves this process's Location. A provider may fail (e.g. an
// unreachable location service); the caller decides whether that is fatal
// or whether to fall back to an empty Location.
type Supplier interface {
	Name() string
	Init() error
	Destroy() error
	GetLocation(ctx context.Context) (model.Location, error)
}

// localSupplier returns a fixed Location read once from config.
type localSupplier struct {
	loc model.Location
}

// NewLocalSupplier builds the "local" provider from its Options map
// (region/zone/campus keys).
func NewLocalSupplier(options map[string]interface{}) Supplier {
	return &localSupplier{loc: model.Location{
		Region: stringOpt(options, "region"),
		Zone:   stringOpt(options, "zone"),
		Campus: stringOpt(options, "campus"),
	}}
}

func (s *localSupplier) Name() string   { return "local" }
func (s *localSupplier) Init() error    { return nil }
func (s *localSupplier) Destroy() error { return nil }
func (s *localSupplier) GetLocation(context.Context) (model.Location, error) {
	return s.loc, nil
}

// httpLocation is the wire shape a location HTTP endpoint is expected to
// return.
type httpLocation struct {
	Region string `json:"region"`
	Zone   string `json:"zone"`
	Campus string `json:"campus"`
}

// httpSupplier GETs a configured URL returning {region,zone,campus} JSON.
type httpSupplier struct {
	url    string
	client *http.Client
}

// NewHTTPSupplier builds the "http" provider from its Options map (a "url"
// key).
func NewHTTPSupplier(options map[string]interface{}) Supplier {
	return &httpSupplier{
		url:    stringOpt(options, "url"),
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (s *httpSupplier) Name() string   { return "http" }
func (s *httpSupplier) Init() error    { return nil }
func (s *httpSupplier) Destroy() error { return nil }

func (s *httpSupplier) GetLocation(ctx context.Context) (model.Location, error) {
	if s.url == "" {
		return model.Location{}, polerr.Config("http location provider requires options.url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return model.Location{}, polerr.Network(err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return model.Location{}, polerr.Network(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return model.Location{}, polerr.ServerError(polerr.New(polerr.CodeNetwork, "location endpoint returned non-200"))
	}
	var body httpLocation
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return model.Location{}, polerr.InvalidResponse("decode location response: " + err.Error())
	}
	return model.Location{Region: body.Region, Zone: body.Zone, Campus: body.Campus}, nil
}

// InstanceResolver discovers the configured location service's instances,
// satisfied by internal/cache.ResourceCache's Get method through a thin
// adapter in internal/engine.
type InstanceResolver func(ctx context.Context, svc model.ServiceKey, timeout time.Duration) (*model.ServiceInstances, error)

// serviceSupplier discovers a special location service through the same
// discover cluster and returns the Location recorded on the first healthy,
// non-isolated instance it finds; it makes no HTTP request.
type serviceSupplier struct {
	svc      model.ServiceKey
	timeout  time.Duration
	resolve  InstanceResolver
	client   *http.Client
}

// NewServiceSupplier builds the "service" provider from its Options map
// (namespace/service keys) and resolve, the cache lookup used to find the
// location service's instances.
func NewServiceSupplier(options map[string]interface{}, resolve InstanceResolver) Supplier {
	return &serviceSupplier{
		svc: model.ServiceKey{
			Namespace: stringOpt(options, "namespace"),
			Service:   stringOpt(options, "service"),
		},
		timeout: 5 * time.Second,
		resolve: resolve,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (s *serviceSupplier) Name() string   { return "service" }
func (s *serviceSupplier) Init() error    { return nil }
func (s *serviceSupplier) Destroy() error { return nil }

func (s *serviceSupplier) GetLocation(ctx context.Context) (model.Location, error) {
	instances, err := s.resolve(ctx, s.svc, s.timeout)
	if err != nil {
		return model.Location{}, err
	}
	for _, inst := range instances.Instances {
		if !inst.Healthy || inst.Isolated {
			continue
		}
		return inst.Location, nil
	}
	return model.Location{}, polerr.InstanceNotFound("no healthy location-service instance for " + s.svc.String())
}

func stringOpt(options map[string]interface{}, key string) string {
	v, ok := options[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Chain resolves Location by trying each configured provider in order,
// returning the first successful, non-empty result, per the "providers[]" list shape
// in spec §6.
type Chain struct {
	suppliers []Supplier
}

// NewChain builds a Chain from an ordered provider list.
func NewChain(suppliers []Supplier) *Chain {
	return &Chain{suppliers: suppliers}
}

// Resolve tries each supplier in order, returning the first non-error,
// non-empty result. An empty chain, or one where no supplier yields a
// location, resolves to the zero Location.
func (c *Chain) Resolve(ctx context.Context) model.Location {
	for _, s := range c.suppliers {
		loc, err := s.GetLocation(ctx)
		if err == nil && !loc.Empty() {
			return loc
		}
	}
	return model.Location{}
}
