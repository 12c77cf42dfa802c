package storefront

import (
	"context"
	"time"

	"github.com/xraph/puzzle/internal/logger"
	"github.com/xraph/puzzle/internal/metrics"
	"github.com/xraph/puzzle/internal/resilience"
)

// GroupConfig configures a Group.
type GroupConfig struct {
	Gateways  []GatewayConfig
	Interval  time.Duration
	AuthToken string
	// Retry applies when MaxAttempts is above zero.
	Retry resilience.RetryConfig
}

// Group polls every configured gateway with one Instance each.
type Group struct {
	instances []*Instance
}

// NewGroup creates one instance per gateway. opts are applied to every
// instance after the group settings.
func NewGroup(cfg GroupConfig, integrator Integrator, log logger.Logger, collector *metrics.Collector, opts ...Option) *Group {
	g := &Group{}

	for _, gw := range cfg.Gateways {
		all := []Option{
			WithInterval(cfg.Interval),
			WithAuthToken(cfg.AuthToken),
			WithIntegrator(integrator),
			WithLogger(log),
			WithMetrics(collector),
		}
		if cfg.Retry.MaxAttempts > 0 {
			all = append(all, WithRetry(cfg.Retry))
		}
		all = append(all, opts...)

		g.instances = append(g.instances, NewInstance(gw, all...))
	}

	return g
}

// Instances returns the group members in configuration order.
func (g *Group) Instances() []*Instance {
	return g.instances
}

// Instance returns the member polling the named gateway.
func (g *Group) Instance(name string) (*Instance, bool) {
	for _, i := range g.instances {
		if i.Name() == name {
			return i, true
		}
	}

	return nil, false
}

// Start starts every instance.
func (g *Group) Start(ctx context.Context) error {
	for _, i := range g.instances {
		if err := i.Start(ctx); err != nil {
			return err
		}
	}

	return nil
}

// Stop stops every instance.
func (g *Group) Stop() {
	for _, i := range g.instances {
		i.Stop()
	}
}
