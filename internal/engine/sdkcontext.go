package engine

import (
	"sync"

	"github.com/polarismesh/polaris-go/pkg/config"
	"github.com/polarismesh/polaris-go/pkg/logging"
)

// SDKContext is the top-level owner every api façade holds a reference to.
// It owns the Engine (and, through it, every Extensions resource) for the
// lifetime of the process and guarantees Destroy tears everything down
// exactly once even if called from more than one façade.
type SDKContext struct {
	engine *Engine
	log    *logging.Logger

	destroyOnce sync.Once
	destroyErr  error
}

// NewSDKContext builds an SDKContext from a fully loaded Configuration.
func NewSDKContext(cfg *config.Configuration, log *logging.Logger) (*SDKContext, error) {
	if log == nil {
		log = logging.Global()
	}
	eng, err := New(cfg, log)
	if err != nil {
		return nil, err
	}
	return &SDKContext{engine: eng, log: log}, nil
}

// Engine returns the context's dispatch point.
func (s *SDKContext) Engine() *Engine { return s.engine }

// Destroy tears down the owned Engine. Calling it more than once is a
// no-op: the first call's result is cached and replayed.
func (s *SDKContext) Destroy() error {
	s.destroyOnce.Do(func() {
		s.destroyErr = s.engine.Destroy()
	})
	return s.destroyErr
}
