package gateway

import (
	"context"
	"fmt"

	"github.com/xraph/puzzle/errors"
	"github.com/xraph/puzzle/internal/di"
	"github.com/xraph/puzzle/internal/logger"
	"github.com/xraph/puzzle/internal/metrics"
	"github.com/xraph/puzzle/internal/route"
	"github.com/xraph/puzzle/internal/server"
)

// ServerFactory creates the server for the named gateway.
type ServerFactory func(unit string) Server

type startOptions struct {
	factory ServerFactory
	logger  logger.Logger
	metrics *metrics.Collector
}

// StartOption configures Start.
type StartOption func(*startOptions)

// WithServerFactory sets how servers are created for gateways that have
// none yet.
func WithServerFactory(f ServerFactory) StartOption {
	return func(o *startOptions) {
		if f != nil {
			o.factory = f
		}
	}
}

// WithLogger sets the start logger.
func WithLogger(l logger.Logger) StartOption {
	return func(o *startOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics reports route counts to c.
func WithMetrics(c *metrics.Collector) StartOption {
	return func(o *startOptions) {
		o.metrics = c
	}
}

func newStartOptions(opts []StartOption) *startOptions {
	o := &startOptions{logger: logger.NewNoopLogger()}
	o.factory = func(string) Server {
		return server.New(server.WithLogger(o.logger))
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Resolve resolves tok and returns the instance with its configured base.
func Resolve(reg *di.Registry, tok *di.Token) (any, *Gateway, error) {
	instance, err := reg.Resolve(tok)
	if err != nil {
		return nil, nil, err
	}

	unit, ok := instance.(Unit)
	if !ok {
		return nil, nil, errors.NewServiceError(tok.Name(), "resolve",
			fmt.Errorf("%w: got %T", errors.ErrNotAGateway, instance))
	}

	base := unit.Base()
	if base.Config() == nil {
		return nil, nil, &errors.MissingConfigurationError{Unit: tok.Name()}
	}

	return instance, base, nil
}

// Plan computes every registration of the gateway stored under tok: the
// health check, the gateway's own routes, then the API tree.
func Plan(reg *di.Registry, tok *di.Token) ([]Registration, error) {
	instance, base, err := Resolve(reg, tok)
	if err != nil {
		return nil, err
	}

	health, own, apis, err := plan(reg, tok, instance, base.Config())
	if err != nil {
		return nil, err
	}

	return concat(health, own, apis), nil
}

func plan(reg *di.Registry, tok *di.Token, instance any, cfg *Config) (health, own, apis []Registration, err error) {
	if cfg.HealthCheck != nil {
		health = append(health, healthRegistration(tok.Name(), cfg.HealthCheck))
	}

	for _, entry := range Routes(reg, tok) {
		handler, err := entry.Bind(instance)
		if err != nil {
			return nil, nil, nil, errors.NewServiceError(tok.Name(), "bind", err)
		}

		for _, p := range entry.Paths {
			own = append(own, Registration{
				Path:    p,
				Method:  entry.Method,
				Handler: handler,
				Schema:  entry.Schema,
				Unit:    tok.Name(),
			})
		}
	}

	apis, err = Flatten(reg, cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	return health, own, apis, nil
}

// Start wires the gateway stored under tok and starts listening:
// health check, own routes, API routes, OnBeforeStart, Listen, OnListen.
func Start(ctx context.Context, reg *di.Registry, tok *di.Token, opts ...StartOption) error {
	o := newStartOptions(opts)

	instance, base, err := Resolve(reg, tok)
	if err != nil {
		return err
	}

	if err := base.claim(); err != nil {
		return errors.ErrLifecycleError("start", err)
	}

	cfg := base.Config()
	log := o.logger.With(logger.String("gateway", tok.Name()))

	srv := base.Server()
	if srv == nil {
		srv = o.factory(tok.Name())
		base.SetServer(srv)
	}

	health, own, apis, err := plan(reg, tok, instance, cfg)
	if err != nil {
		return err
	}

	steps := []struct {
		regs  []Registration
		state State
	}{
		{health, StateHealthCheckWired},
		{own, StateOwnRoutesWired},
		{apis, StateApiRoutesWired},
	}

	for _, step := range steps {
		for _, r := range step.regs {
			if err := srv.AddRoute([]*route.Path{r.Path}, r.Method, r.Handler, r.Schema); err != nil {
				return errors.NewServiceError(tok.Name(), "start", err)
			}
		}

		base.setState(step.state)
	}

	total := len(health) + len(own) + len(apis)
	o.metrics.RoutesRegistered(tok.Name(), total)
	log.Debug("routes wired", logger.Int("routes", total))

	base.setState(StateStarting)

	if h, ok := instance.(BeforeStarter); ok {
		if err := h.OnBeforeStart(ctx); err != nil {
			return errors.NewServiceError(tok.Name(), "OnBeforeStart", err)
		}
	}

	if err := srv.Listen(ctx, cfg.Port); err != nil {
		return errors.ErrServiceStartFailed(tok.Name(), err)
	}

	base.setState(StateListening)
	log.Info("gateway listening", logger.Int("port", cfg.Port))

	if l, ok := instance.(Listener); ok {
		l.OnListen()
	}

	return nil
}

func concat(parts ...[]Registration) []Registration {
	var out []Registration
	for _, part := range parts {
		out = append(out, part...)
	}

	return out
}
