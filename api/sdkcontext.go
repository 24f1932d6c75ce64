// Package api exposes the six public façades a caller embeds: Provider,
// Consumer, ConfigAPI, RouterAPI, RateLimitAPI and CircuitBreakerAPI, each a
// thin wrapper holding a shared SDKContext, per spec §2 ("control flow
// originates in the five public façades... each routed through the engine
// which owns one SDKContext per process-logical client").
package api

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/polarismesh/polaris-go/internal/engine"
	"github.com/polarismesh/polaris-go/pkg/config"
	"github.com/polarismesh/polaris-go/pkg/logging"
	"github.com/polarismesh/polaris-go/pkg/model"
)

// SDKContext is the shared handle every façade in this package is built
// from. It wraps engine.SDKContext with the ClientContext identity (client
// id, host, location) described in spec §3, created once and never
// mutated after init.
type SDKContext struct {
	*engine.SDKContext
	client model.ClientContext
}

// NewSDKContext builds the process-wide context from cfg, assigns this
// process a random client id, and - when global.api.report_interval is
// positive - starts the best-effort report_client background loop
// recovered from original_source/src/core/flow.rs.
func NewSDKContext(cfg *config.Configuration, log *logging.Logger) (*SDKContext, error) {
	eng, err := engine.NewSDKContext(cfg, log)
	if err != nil {
		return nil, err
	}
	host, _ := os.Hostname()
	sdk := &SDKContext{
		SDKContext: eng,
		client: model.ClientContext{
			ClientID: uuid.NewString(),
			Host:     host,
		},
	}
	if cfg.Global.API.ReportInterval > 0 {
		sdk.startClientReport(cfg.Global.API.ReportInterval)
	}
	return sdk, nil
}

// ClientContext returns this process's identity.
func (s *SDKContext) ClientContext() model.ClientContext { return s.client }

func (s *SDKContext) startClientReport(interval time.Duration) {
	ext := s.Engine().Extensions()
	ext.Spawn(func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := s.Engine().ReportClient(ctx, s.client.ClientID, s.client.Host, s.client.Version, s.client.Location)
				if err != nil {
					ext.Log.WithError(err).Warn("report_client failed")
				}
			}
		}
	})
}
