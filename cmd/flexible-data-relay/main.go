// Package main implements the entry point for Flexible Data Relay, a
// multi-tenant schema-less data relay: tenants push arbitrary JSON
// entities, the relay infers and reconciles their schemas, and exposes
// the data over per-tenant GraphQL APIs and subscription transports.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/Sangrene/flexible-data-relay/auth"
	"github.com/Sangrene/flexible-data-relay/config"
	"github.com/Sangrene/flexible-data-relay/entity"
	"github.com/Sangrene/flexible-data-relay/event"
	"github.com/Sangrene/flexible-data-relay/gateway"
	"github.com/Sangrene/flexible-data-relay/graphql"
	"github.com/Sangrene/flexible-data-relay/health"
	"github.com/Sangrene/flexible-data-relay/metric"
	"github.com/Sangrene/flexible-data-relay/natsclient"
	"github.com/Sangrene/flexible-data-relay/schemacache"
	"github.com/Sangrene/flexible-data-relay/storage/memstore"
	"github.com/Sangrene/flexible-data-relay/storage/natsstore"
	"github.com/Sangrene/flexible-data-relay/subscription"
	"github.com/Sangrene/flexible-data-relay/tenant"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "flexible-data-relay"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)
	slog.Info("Starting Flexible Data Relay",
		"version", Version, "config_path", cliCfg.ConfigPath)

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return compose(ctx, cfg, logger, cliCfg.ShutdownTimeout)
}

// compose wires every core together and serves until the context is
// cancelled.
func compose(ctx context.Context, cfg *config.Config, logger *slog.Logger, shutdownTimeout time.Duration) error {
	bus := event.NewBus(logger)
	defer bus.Close()

	registry := metric.NewRegistry()
	m := registry.Metrics

	cache := schemacache.NewCache(logger, schemacache.WithMetrics(m))

	storage, err := setupStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if storage.natsClient != nil {
		defer storage.natsClient.Close()
	}

	if err := seedCache(ctx, cache, storage); err != nil {
		return fmt.Errorf("seed schema cache: %w", err)
	}
	if err := startCacheStrategy(ctx, cfg, bus, cache, storage, logger); err != nil {
		return fmt.Errorf("start cache strategy: %w", err)
	}

	entities := entity.NewCore(storage.entities, bus, cache, logger, entity.WithMetrics(m))

	plugins, websocketPlugin := setupPlugins(storage, logger)

	tenantOpts := []tenant.CoreOption{}
	for _, p := range plugins {
		tenantOpts = append(tenantOpts, tenant.WithProvisioner(p))
	}
	if storage.natsClient != nil {
		tenantOpts = append(tenantOpts, tenant.WithQueueTransport())
	}
	tenants := tenant.NewCore(storage.tenants, bus, logger, tenantOpts...)

	manager := subscription.NewManager(tenants, logger,
		subscription.WithMetrics(m),
		subscription.WithDeliveryTimeout(cfg.Fanout.DeliveryTimeout),
		subscription.WithPoolSize(cfg.Fanout.Workers, cfg.Fanout.QueueSize))
	for _, p := range plugins {
		manager.Register(p)
	}
	if err := manager.Start(bus); err != nil {
		return fmt.Errorf("start subscription manager: %w", err)
	}
	defer manager.Stop()

	issuer, err := auth.NewHMACIssuer([]byte(cfg.Auth.SigningSecret))
	if err != nil {
		return fmt.Errorf("create token issuer: %w", err)
	}
	authCore := auth.NewCore(tenants, issuer, cfg.Auth.AdminSecret, logger)

	exec := graphql.NewExecutionManager(cache, entities, logger, graphql.WithMetrics(m))

	monitor := health.NewMonitor()
	if storage.natsClient != nil {
		monitor.RegisterCheck("nats", func() error {
			if !storage.natsClient.IsHealthy() {
				return fmt.Errorf("not connected to %s", storage.natsClient.URL())
			}
			return nil
		})
	}

	server := gateway.NewServer(entities, tenants, authCore, exec, cache, logger,
		gateway.WithMetricsRegistry(registry),
		gateway.WithPlayground(cfg.Server.EnablePlayground),
		gateway.WithWebsocket(websocketPlugin),
		gateway.WithHealthMonitor(monitor),
		gateway.WithShutdownTimeout(shutdownTimeout))

	slog.Info("Flexible Data Relay started",
		"addr", cfg.Server.Addr,
		"storage", cfg.Storage.Mode,
		"cache_strategy", cfg.Cache.Strategy,
		"plugins", len(plugins))

	return server.Start(ctx, cfg.Server.Addr)
}

// storageSet bundles the persistence adapters of the selected backend.
// natsClient and feed are nil in memory mode.
type storageSet struct {
	entities   entity.Store
	tenants    tenant.Store
	feed       *natsstore.Feed
	natsClient *natsclient.Client
}

func setupStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storageSet, error) {
	if cfg.Storage.Mode == config.StorageModeMemory {
		return &storageSet{
			entities: memstore.NewEntityStore(),
			tenants:  memstore.NewTenantStore(),
		}, nil
	}

	client := natsclient.NewClient(cfg.NATS.URL, logger, natsclient.WithConnectionName(appName))
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	entityStore, err := natsstore.NewEntityStore(ctx, client, logger)
	if err != nil {
		return nil, fmt.Errorf("create entity store: %w", err)
	}
	tenantStore, err := natsstore.NewTenantStore(ctx, client, logger)
	if err != nil {
		return nil, fmt.Errorf("create tenant store: %w", err)
	}
	feed, err := natsstore.NewFeed(ctx, client, logger)
	if err != nil {
		return nil, fmt.Errorf("create change feed: %w", err)
	}

	return &storageSet{
		entities:   entityStore,
		tenants:    tenantStore,
		feed:       feed,
		natsClient: client,
	}, nil
}

// seedCache loads every tenant's stored schemas so the first query after
// startup already sees the full surface.
func seedCache(ctx context.Context, cache *schemacache.Cache, storage *storageSet) error {
	tenants, err := storage.tenants.GetAllTenants(ctx)
	if err != nil {
		return err
	}
	for _, t := range tenants {
		schemas, err := storage.entities.GetAllSchemas(ctx, t.Name)
		if err != nil {
			return err
		}
		cache.Seed(t.Name, schemas)
	}
	slog.Info("schema cache seeded", "tenants", len(tenants))
	return nil
}

func startCacheStrategy(
	ctx context.Context,
	cfg *config.Config,
	bus *event.Bus,
	cache *schemacache.Cache,
	storage *storageSet,
	logger *slog.Logger,
) error {
	var strategy schemacache.Strategy
	switch cfg.Cache.Strategy {
	case config.CacheStrategyFeed:
		strategy = schemacache.NewFeedStrategy(storage.feed, cache, logger)
	default:
		strategy = schemacache.NewLocalStrategy(bus, cache)
	}
	return strategy.Start(ctx)
}

// setupPlugins builds the transport plugins available in this deployment.
// Webhook and websocket always work; queue needs a broker connection.
func setupPlugins(storage *storageSet, logger *slog.Logger) ([]subscription.Plugin, *subscription.WebsocketPlugin) {
	websocketPlugin := subscription.NewWebsocketPlugin(logger)
	plugins := []subscription.Plugin{
		subscription.NewWebhookPlugin(logger),
		websocketPlugin,
	}
	if storage.natsClient != nil {
		plugins = append(plugins, subscription.NewQueuePlugin(storage.natsClient.JetStream(), logger))
	}
	return plugins, websocketPlugin
}
