package ratelimit

import (
	"sync"

	"github.com/polarismesh/polaris-go/pkg/model"
)

// concurrencyLimiter caps the number of in-flight calls, the default quota
// mode per spec §4.7. Unlike the QPS windows, concurrency quota is
// returned explicitly by the caller once its call completes.
type concurrencyLimiter struct {
	mu      sync.Mutex
	max     int64
	current int64
}

func newConcurrencyLimiter(max int64) *concurrencyLimiter {
	if max <= 0 {
		max = 1
	}
	return &concurrencyLimiter{max: max}
}

func (c *concurrencyLimiter) acquire(req model.QuotaRequest) (model.QuotaResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current >= c.max {
		return model.QuotaResponse{Allowed: false, Message: "concurrency limit exceeded"}, nil
	}
	c.current++
	return model.QuotaResponse{Allowed: true}, nil
}

func (c *concurrencyLimiter) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current > 0 {
		c.current--
	}
}
