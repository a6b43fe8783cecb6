package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/airpulse/airpulse/internal/airquality"
	"github.com/airpulse/airpulse/internal/airquality/epavic"
	"github.com/airpulse/airpulse/internal/api"
	"github.com/airpulse/airpulse/internal/api/handler"
	"github.com/airpulse/airpulse/internal/api/middleware"
	"github.com/airpulse/airpulse/internal/cache"
	"github.com/airpulse/airpulse/internal/config"
	"github.com/airpulse/airpulse/internal/coordinator"
	"github.com/airpulse/airpulse/internal/database"
	"github.com/airpulse/airpulse/internal/history"
	"github.com/airpulse/airpulse/internal/provider/resilience"
	"github.com/airpulse/airpulse/internal/telemetry"
	"github.com/airpulse/airpulse/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the AirPulse daemon",
	Long: `Start the fetch coordinators, the HTTP API, and the background
workers, and run until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	const serviceName = "airpulse-api"

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting AirPulse")

	// Initialize OpenTelemetry
	ctx := context.Background()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Server.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		return fmt.Errorf("initialize metrics: %w", err)
	}

	providerMetrics, err := telemetry.NewProviderMetrics()
	if err != nil {
		return fmt.Errorf("initialize provider metrics: %w", err)
	}

	// Observation history archive: postgres when a database is
	// configured, in-memory otherwise.
	var hist history.Repository
	var db handler.DatabasePinger
	if cfg.History.DatabaseEnabled {
		dbConfig := database.ConfigFromEnv()
		pool, err := database.Connect(ctx, dbConfig)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()

		pg := history.NewPostgresRepository(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure history schema: %w", err)
		}
		hist = pg
		db = pool
		log.Info().
			Str("host", dbConfig.Host).
			Int("port", dbConfig.Port).
			Str("database", dbConfig.Database).
			Msg("history archive on postgres")
	} else {
		hist = history.NewInMemoryRepository()
		log.Info().Msg("history archive in memory")
	}

	// EPA Victoria client with shared circuit breaker
	client := epavic.NewClient(epavic.ClientConfig{
		BaseURL:      cfg.Provider.BaseURL,
		APIKey:       cfg.Provider.APIKey,
		UserAgent:    userAgent(cfg.Provider),
		FetchTimeout: cfg.Provider.FetchTimeout,
		MaxTries:     cfg.Provider.MaxTries,
		BaseBackoff:  cfg.Provider.BaseBackoff,
		JitterMax:    cfg.Provider.JitterMax,
		Metrics:      providerMetrics,
		Logger:       log,
	})

	health := resilience.NewRegistry()
	health.Register(epavic.ProviderName, client)

	// Resolve the monitored sites once, per configuration
	sites, err := resolveSites(ctx, cfg, client, log)
	if err != nil {
		return err
	}

	// One coordinator per site, each with its own cache file
	if err := os.MkdirAll(cfg.Scheduler.CacheDir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	registry := coordinator.NewRegistry()
	for _, site := range sites {
		store := cache.NewStore(filepath.Join(cfg.Scheduler.CacheDir, "site-"+site.ID+".json"))

		c, err := coordinator.New(coordinator.Config{
			Site:             site,
			Fetcher:          client,
			Store:            store,
			History:          hist,
			Health:           health,
			ProviderName:     epavic.ProviderName,
			Timezone:         cfg.Scheduler.Timezone,
			Divisions:        cfg.Scheduler.Divisions,
			CheckInterval:    cfg.Scheduler.CheckInterval,
			MinFetchInterval: cfg.Scheduler.MinFetchInterval,
			Logger:           log,
		})
		if err != nil {
			return fmt.Errorf("coordinator for site %s: %w", site.ID, err)
		}
		if err := c.Start(ctx); err != nil {
			return fmt.Errorf("start coordinator for site %s: %w", site.ID, err)
		}
		if err := registry.Register(c); err != nil {
			c.Stop()
			return fmt.Errorf("register coordinator: %w", err)
		}
	}
	defer registry.StopAll()
	log.Info().Int("sites", registry.Count()).Msg("coordinators started")

	// Background workers
	refreshJob := worker.NewRefreshJob(worker.RefreshJobConfig{
		Registry: registry,
		Logger:   log,
	})
	maintenanceJob := worker.NewMaintenanceJob(worker.MaintenanceJobConfig{
		Config: worker.JobConfig{
			Retention:     cfg.History.Retention,
			PruneInterval: cfg.History.PruneInterval,
		},
		History: hist,
		Logger:  log,
	})

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	go maintenanceJob.Start(workerCtx)

	if cfg.PubSub.Enabled() {
		pubsubHandler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSub.ProjectID,
			SubscriptionName: cfg.PubSub.Subscription,
			RefreshJob:       refreshJob,
			MaintenanceJob:   maintenanceJob,
			Logger:           log,
		})
		if err != nil {
			return fmt.Errorf("create pubsub handler: %w", err)
		}
		defer pubsubHandler.Close()

		go func() {
			if err := pubsubHandler.Start(workerCtx); err != nil {
				log.Error().Err(err).Msg("pubsub receiver stopped")
			}
		}()
		log.Info().
			Str("subscription", cfg.PubSub.Subscription).
			Msg("pubsub refresh trigger listening")
	}

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:      Version,
		BuildTime:    BuildTime,
		Logger:       log,
		ServiceName:  serviceName,
		Metrics:      metrics,
		Coordinators: registry,
		Resolver:     client,
		History:      hist,
		Health:       health,
		DB:           db,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return err
	}

	stopWorkers()
	registry.StopAll()

	log.Info().Msg("server stopped")
	return nil
}

// resolveSites turns the configured site list, or a coordinate pair,
// into concrete sites. Display names for explicitly configured IDs are
// filled in from the site listing when the API allows it.
func resolveSites(ctx context.Context, cfg *config.Config, client *epavic.Client, log zerolog.Logger) ([]airquality.Site, error) {
	if len(cfg.Scheduler.SiteIDs) == 0 {
		site, err := client.FindSite(ctx, cfg.Scheduler.Latitude, cfg.Scheduler.Longitude)
		if err != nil {
			return nil, fmt.Errorf("resolve site from coordinates: %w", err)
		}
		log.Info().
			Str("site_id", site.ID).
			Str("site_name", site.Name).
			Msg("resolved monitoring site")
		return []airquality.Site{site}, nil
	}

	byID := make(map[string]airquality.Site)
	if known, err := client.ListSites(ctx); err == nil {
		for _, s := range known {
			byID[s.ID] = s
		}
	} else {
		log.Warn().Err(err).Msg("site listing unavailable, serving without display names")
	}

	sites := make([]airquality.Site, 0, len(cfg.Scheduler.SiteIDs))
	for _, id := range cfg.Scheduler.SiteIDs {
		if s, ok := byID[id]; ok {
			sites = append(sites, s)
			continue
		}
		sites = append(sites, airquality.Site{ID: id})
	}
	return sites, nil
}
