package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/okian/broutes/internal/catalog"
	"github.com/okian/broutes/internal/config"
	"github.com/okian/broutes/internal/telemetry"
	"github.com/okian/broutes/pkg/logger"
	"github.com/okian/broutes/pkg/route"
	"github.com/okian/broutes/pkg/transport"
	"github.com/okian/broutes/pkg/version"
)

var errUsage = errors.New("usage")

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	file       string
	logLevel   string
	baseURL    string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:   "broutes",
		Short: "Declarative HTTP routes",
		Long: `broutes defines HTTP routes in a catalog file and invokes them.

Routes layer request arguments per method and per scenario. Plans run
many invocations through a worker pool and write a JSON report.`,
		Version:      version.FullString(),
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "config file (default $"+config.EnvConfig+")")
	pf.StringVarP(&g.file, "file", "f", "", "route catalog, .yaml or .toml (default from config)")
	pf.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&g.baseURL, "base-url", "", "override the catalog base URL")

	cmd.AddCommand(
		newListCmd(g),
		newArgsCmd(g),
		newCallCmd(g),
		newRunCmd(g),
		newVersionCmd(),
	)
	return cmd
}

// env is everything a subcommand needs after loading config and the catalog.
type env struct {
	cfg     *config.Config
	catalog *catalog.Catalog
	routes  map[string]*route.Route
	client  *transport.Client
	tracing *telemetry.Provider
	log     logger.Logger
}

func (g *globalFlags) load(ctx context.Context) (*env, error) {
	cfg, err := config.Load(ctx, g.configPath)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	if g.baseURL != "" {
		cfg.BaseURL = g.baseURL
	}
	if g.file != "" {
		cfg.RoutesFile = g.file
	}

	if err := logger.Init(logger.WithLevel(cfg.LogLevel), logger.WithFormat(cfg.LogFormat)); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	log := logger.Named("cli")

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.TracingEnabled,
		ServiceName:    "broutes",
		ServiceVersion: version.String(),
		Exporter:       cfg.TracingExporter,
		Endpoint:       cfg.TracingEndpoint,
		SamplingRate:   cfg.TracingSampleRate,
	})
	if err != nil {
		return nil, err
	}

	cat, err := catalog.Load(ctx, cfg.RoutesFile)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	client := transport.New(
		transport.WithTimeout(cfg.Timeout()),
		transport.WithUserAgent(cfg.UserAgent),
		transport.WithMaxIdleConns(cfg.MaxIdleConns),
		transport.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		transport.WithCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerReset()),
		transport.WithTracing(tp.Enabled()),
	)

	opts := []route.Option{route.WithSender(client)}
	if cfg.BaseURL != "" {
		opts = append(opts, route.WithBaseURL(cfg.BaseURL))
	}
	routes, err := cat.BuildRoutes(opts...)
	if err != nil {
		client.Close()
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	log.Debug(ctx, "catalog loaded",
		logger.String("source", cat.Source()),
		logger.Int("routes", len(routes)),
		logger.Int("plans", len(cat.Plans)),
	)
	return &env{cfg: cfg, catalog: cat, routes: routes, client: client, tracing: tp, log: log}, nil
}

func (e *env) close(ctx context.Context) {
	e.client.Close()
	if err := e.tracing.Shutdown(context.WithoutCancel(ctx)); err != nil {
		e.log.Warn(ctx, "tracing shutdown failed", logger.Error(err))
	}
}

// route returns the named route bound to scenario and group when given.
func (e *env) route(name, scenario, group string) (*route.Route, error) {
	r, ok := e.routes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s (known: %s)", catalog.ErrRouteNotFound, name,
			strings.Join(e.catalog.RouteNames(), ", "))
	}
	if scenario == "" {
		if group != "" {
			return nil, fmt.Errorf("%w: --group needs --scenario", errUsage)
		}
		return r, nil
	}
	return r.ForScenario(scenario, group)
}
