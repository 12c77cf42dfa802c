package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/xraph/puzzle"
	"github.com/xraph/puzzle/internal/application"
	"github.com/xraph/puzzle/internal/config"
	"github.com/xraph/puzzle/internal/gateway"
	"github.com/xraph/puzzle/internal/logger"
	"github.com/xraph/puzzle/internal/metrics"
	"github.com/xraph/puzzle/internal/server"
	"github.com/xraph/puzzle/internal/storefront"
	"github.com/xraph/puzzle/internal/tracing"
)

// Version information (set by ldflags during build).
var version = "dev"

type options struct {
	configPath   string
	envFile      string
	router       string
	logLevel     string
	browsingPort int
	searchPort   int
	routesOnly   bool
}

func parseFlags(args []string) (options, error) {
	var o options

	fs := pflag.NewFlagSet("puzzle", pflag.ContinueOnError)
	fs.StringVarP(&o.configPath, "config", "c", "", "path to a YAML configuration file")
	fs.StringVar(&o.envFile, "env-file", ".env", "dotenv file loaded before the configuration")
	fs.StringVar(&o.router, "router", "", "router backend: bunrouter, chi, httprouter or mux")
	fs.StringVar(&o.logLevel, "log-level", "", "log level: debug, info, warn or error")
	fs.IntVar(&o.browsingPort, "browsing-port", 8080, "port of the Browsing gateway")
	fs.IntVar(&o.searchPort, "search-port", 8079, "port of the Search gateway")
	fs.BoolVar(&o.routesOnly, "routes", false, "print the route table and exit")

	return o, fs.Parse(args)
}

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", red("error:"), err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	if err := godotenv.Load(opts.envFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load %s: %w", opts.envFile, err)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	if opts.router != "" {
		cfg.Server.Router = opts.router
	}

	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logger.NewLogger(cfg.Logging)
	defer func() { _ = log.Sync() }()

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.New(cfg.Metrics.Config)
	}

	tp, err := tracing.New(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	tp.SetGlobal()

	reg := puzzle.NewRegistry(puzzle.RegistryWithLogger(log.Named("di")), puzzle.RegistryWithMetrics(collector))
	units := declareUnits(reg, Ports{Browsing: opts.browsingPort, Search: opts.searchPort})

	if err := reg.Validate(); err != nil {
		return err
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		color.NoColor = true
	}

	if err := printRoutes(os.Stdout, reg, units.Gateways()); err != nil {
		return err
	}

	if opts.routesOnly {
		return nil
	}

	appOpts := []application.Option{
		application.WithLogger(log.Named("app")),
		application.WithMetrics(collector),
		application.WithServerFactory(serverFactory(cfg, log, collector, tp)),
		application.WithHook(application.PhaseAfterStop, "tracing", func(ctx context.Context, _ *application.Application) error {
			return tp.Shutdown(ctx)
		}),
	}

	if len(cfg.Storefront.Gateways) > 0 {
		integrator, closeIntegrator := newIntegrator(cfg.Storefront.Redis)
		defer closeIntegrator()

		group := storefront.NewGroup(storefront.GroupConfig{
			Gateways:  cfg.Storefront.Gateways,
			Interval:  cfg.Storefront.PollingInterval,
			AuthToken: cfg.Storefront.AuthToken,
			Retry:     cfg.Storefront.Retry,
		}, integrator, log.Named("storefront"), collector, storefront.OnEvent(func(e storefront.Event) {
			log.Info("storefront configuration changed",
				logger.String("gateway", e.Gateway),
				logger.String("event", string(e.Type)),
				logger.Int("fragments", len(e.Config.Fragments)),
			)
		}))

		appOpts = append(appOpts, application.WithRunner(group))
	}

	app := application.New(reg, application.Config{
		Gateways:        units.Gateways(),
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, appOpts...)

	return app.Run(ctx)
}

func serverFactory(cfg config.Config, log logger.Logger, collector *metrics.Collector, tp *tracing.Provider) gateway.ServerFactory {
	return func(unit string) gateway.Server {
		// the router name was validated with the configuration
		adapter, _ := server.NewAdapter(cfg.Server.Router)

		opts := []server.Option{
			server.WithAdapter(adapter),
			server.WithLogger(log.Named(unit)),
			server.WithTracerProvider(tp.TracerProvider()),
			server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		}

		if collector != nil {
			opts = append(opts, server.WithMetrics(collector, cfg.Metrics.Path))
		}

		return server.New(opts...)
	}
}

func newIntegrator(cfg config.RedisConfig) (storefront.Integrator, func()) {
	if cfg.Addr == "" {
		return storefront.NewMemoryIntegrator(), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return storefront.NewRedisIntegrator(client, cfg.Prefix), func() { _ = client.Close() }
}
