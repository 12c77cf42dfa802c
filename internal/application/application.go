package application

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/puzzle/errors"
	"github.com/xraph/puzzle/internal/di"
	"github.com/xraph/puzzle/internal/gateway"
	"github.com/xraph/puzzle/internal/logger"
	"github.com/xraph/puzzle/internal/metrics"
)

// Phase names a point in the application lifecycle.
type Phase string

const (
	PhaseBeforeStart Phase = "before_start"
	PhaseAfterStart  Phase = "after_start"
	PhaseBeforeStop  Phase = "before_stop"
	PhaseAfterStop   Phase = "after_stop"
)

// Hook runs during a lifecycle phase.
type Hook func(ctx context.Context, app *Application) error

type namedHook struct {
	name string
	hook Hook
}

// Runner is a background service started after the gateways, such as a
// storefront poller.
type Runner interface {
	Start(ctx context.Context) error
	Stop()
}

// Config lists the gateways an application starts.
type Config struct {
	Gateways        []*di.Token
	ShutdownTimeout time.Duration
	ShutdownSignals []os.Signal
}

// DefaultShutdownTimeout bounds Shutdown when Run stops.
const DefaultShutdownTimeout = 30 * time.Second

// Application starts gateway units from a registry and stops them again.
type Application struct {
	registry  *di.Registry
	config    Config
	logger    logger.Logger
	metrics   *metrics.Collector
	factory   gateway.ServerFactory
	hooks     map[Phase][]namedHook
	runners   []Runner
	started   []*gateway.Gateway
	running   []Runner
	startedMu sync.Mutex
}

// Option configures an Application.
type Option func(*Application)

// WithLogger sets the application logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Application) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithMetrics reports gateway route counts to c.
func WithMetrics(c *metrics.Collector) Option {
	return func(a *Application) {
		a.metrics = c
	}
}

// WithServerFactory sets how gateway servers are created.
func WithServerFactory(f gateway.ServerFactory) Option {
	return func(a *Application) {
		a.factory = f
	}
}

// WithHook registers hook for phase.
func WithHook(phase Phase, name string, hook Hook) Option {
	return func(a *Application) {
		a.hooks[phase] = append(a.hooks[phase], namedHook{name: name, hook: hook})
	}
}

// WithBeforeStart runs hook before any gateway starts.
func WithBeforeStart(name string, hook Hook) Option {
	return WithHook(PhaseBeforeStart, name, hook)
}

// WithAfterStart runs hook once every gateway listens.
func WithAfterStart(name string, hook Hook) Option {
	return WithHook(PhaseAfterStart, name, hook)
}

// WithRunner adds a background service.
func WithRunner(r Runner) Option {
	return func(a *Application) {
		if r != nil {
			a.runners = append(a.runners, r)
		}
	}
}

// New creates an application over reg.
func New(reg *di.Registry, config Config, opts ...Option) *Application {
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultShutdownTimeout
	}

	if len(config.ShutdownSignals) == 0 {
		config.ShutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}

	a := &Application{
		registry: reg,
		config:   config,
		logger:   logger.NewNoopLogger(),
		hooks:    make(map[Phase][]namedHook),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Registry returns the registry gateways are resolved from.
func (a *Application) Registry() *di.Registry {
	return a.registry
}

// Gateways returns the configured gateway tokens.
func (a *Application) Gateways() []*di.Token {
	return append([]*di.Token(nil), a.config.Gateways...)
}

// Start runs the before-start hooks, starts every gateway concurrently and
// waits for all of them. The first gateway error is returned.
func (a *Application) Start(ctx context.Context) error {
	if err := a.runHooks(ctx, PhaseBeforeStart); err != nil {
		return err
	}

	a.logger.Info("starting gateways", logger.Int("count", len(a.config.Gateways)))

	startOpts := []gateway.StartOption{
		gateway.WithLogger(a.logger),
		gateway.WithMetrics(a.metrics),
	}
	if a.factory != nil {
		startOpts = append(startOpts, gateway.WithServerFactory(a.factory))
	}

	var g errgroup.Group

	for _, tok := range a.config.Gateways {
		g.Go(func() error {
			if err := gateway.Start(ctx, a.registry, tok, startOpts...); err != nil {
				a.logger.Error("gateway failed to start",
					logger.String("gateway", tok.Name()),
					logger.Error(err),
				)

				return err
			}

			_, base, err := gateway.Resolve(a.registry, tok)
			if err != nil {
				return err
			}

			a.startedMu.Lock()
			a.started = append(a.started, base)
			a.startedMu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	for _, r := range a.runners {
		if err := r.Start(ctx); err != nil {
			return errors.ErrLifecycleError("start runner", err)
		}

		a.startedMu.Lock()
		a.running = append(a.running, r)
		a.startedMu.Unlock()
	}

	return a.runHooks(ctx, PhaseAfterStart)
}

// Run starts the application, waits for a shutdown signal or for ctx to be
// done, then shuts down within the configured timeout.
func (a *Application) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
		defer cancel()

		return errors.Join(fmt.Errorf("failed to start application: %w", err), a.Shutdown(shutdownCtx))
	}

	sigCtx, stop := signal.NotifyContext(ctx, a.config.ShutdownSignals...)
	defer stop()

	<-sigCtx.Done()
	a.logger.Info("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
	defer cancel()

	return a.Shutdown(shutdownCtx)
}

// Shutdown stops started runners and every started gateway.
func (a *Application) Shutdown(ctx context.Context) error {
	var errs []error

	if err := a.runHooks(ctx, PhaseBeforeStop); err != nil {
		errs = append(errs, err)
	}

	a.startedMu.Lock()
	running, started := a.running, a.started
	a.running, a.started = nil, nil
	a.startedMu.Unlock()

	for _, r := range running {
		r.Stop()
	}

	for _, g := range started {
		if err := g.Shutdown(ctx); err != nil {
			a.logger.Error("gateway shutdown failed",
				logger.String("gateway", g.Name()),
				logger.Error(err),
			)
			errs = append(errs, errors.NewServiceError(g.Name(), "shutdown", err))
		}
	}

	if err := a.runHooks(ctx, PhaseAfterStop); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application stopped")

	return errors.Join(errs...)
}

func (a *Application) runHooks(ctx context.Context, phase Phase) error {
	for _, h := range a.hooks[phase] {
		a.logger.Debug("executing lifecycle hook",
			logger.String("phase", string(phase)),
			logger.String("name", h.name),
		)

		if err := h.hook(ctx, a); err != nil {
			return errors.ErrLifecycleError(string(phase)+" "+h.name, err)
		}
	}

	return nil
}
