package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/jenna-jordan/Boston-CityScore-App/internal/api"
	"github.com/jenna-jordan/Boston-CityScore-App/internal/cache"
	"github.com/jenna-jordan/Boston-CityScore-App/internal/database"
	"github.com/jenna-jordan/Boston-CityScore-App/internal/metrics"
	"github.com/jenna-jordan/Boston-CityScore-App/internal/opendata"
	"github.com/jenna-jordan/Boston-CityScore-App/internal/pipeline"
	"github.com/jenna-jordan/Boston-CityScore-App/internal/quality"
	"github.com/jenna-jordan/Boston-CityScore-App/internal/queue"
	"github.com/jenna-jordan/Boston-CityScore-App/internal/refresh"
	"github.com/jenna-jordan/Boston-CityScore-App/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	fmt.Println("Starting CityScore Server...")

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	pipelineMetrics, err := metrics.NewPipeline(reg)
	if err != nil {
		log.Fatalf("Failed to register metrics: %v", err)
	}

	// Cache and quality state
	var (
		resourceCache opendata.Cache
		stateStore    quality.StateStore
	)
	switch cfg.Cache.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		resourceCache = cache.NewRedis(rdb, cfg.Cache.TTL)
		stateStore = quality.NewRedisStore(rdb)
		fmt.Printf("Connected to Redis at %s\n", cfg.Redis.Addr)
	default:
		resourceCache = cache.NewMemory(cfg.Cache.TTL)
		stateStore = quality.NewMemoryStore()
		fmt.Println("Using in-memory cache")
	}

	client := opendata.NewClient(opendata.Config{
		Host:       cfg.Source.Host,
		SearchPath: cfg.Source.SearchPath,
		PageLimit:  cfg.Source.PageLimit,
		Timeout:    cfg.Source.Timeout,
	},
		opendata.WithCache(resourceCache),
		opendata.WithLogger(logger),
		opendata.WithMetrics(pipelineMetrics),
	)

	opts := []pipeline.Option{
		pipeline.WithTracker(quality.NewTracker(stateStore, logger)),
		pipeline.WithMetrics(pipelineMetrics),
		pipeline.WithLogger(logger),
	}

	// Kafka events
	if cfg.Kafka.Enabled {
		if err := queue.CreateTopic(cfg.Kafka.Brokers, cfg.Kafka.TopicSnapshots, cfg.Kafka.NumPartitions, 1); err != nil {
			fmt.Printf("Note: Topic creation failed (may already exist): %v\n", err)
		}
		if err := queue.CreateTopic(cfg.Kafka.Brokers, cfg.Kafka.TopicAlerts, 1, 1); err != nil {
			fmt.Printf("Note: Topic creation failed (may already exist): %v\n", err)
		}
		publisher := queue.NewEventPublisher(cfg.Kafka.Brokers, cfg.Kafka.TopicSnapshots, cfg.Kafka.TopicAlerts)
		defer publisher.Close()
		opts = append(opts, pipeline.WithPublisher(publisher))
		fmt.Printf("Kafka publisher initialized (%s, %s)\n", cfg.Kafka.TopicSnapshots, cfg.Kafka.TopicAlerts)
	}

	// Postgres archive
	if cfg.Database.Enabled {
		db, err := database.Connect(ctx, cfg.Database.ConnectionString(), logger)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		if err := db.RunMigrations(ctx); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		opts = append(opts, pipeline.WithArchiver(database.NewArchive(db, cfg.Database.Keep)))
		fmt.Printf("Archiving snapshots to Postgres (keep %d)\n", cfg.Database.Keep)
	}

	loader := pipeline.NewLoader(client, opts...)
	resourceID := cfg.Source.ResourceID

	// Warm the cache; a failure here is not fatal, requests will retry.
	warmCtx, cancel := context.WithTimeout(ctx, cfg.Server.RequestTimeout)
	snap, err := loader.Load(warmCtx, resourceID)
	cancel()
	if err != nil {
		log.Printf("Initial load failed: %v", err)
	} else {
		fmt.Printf("Loaded %d records (%d pages)\n", snap.Table.Len(), snap.Pages)
	}

	// Background refresh
	scheduler := refresh.NewScheduler(1, logger)
	if cfg.Refresh.Enabled {
		var fetchedAt time.Time
		if snap != nil {
			fetchedAt = snap.FetchedAt
		}
		first := refresh.NextRunTime(time.Now(), fetchedAt, cfg.Cache.TTL, cfg.Refresh.Lead)
		interval := refresh.Interval(cfg.Cache.TTL, cfg.Refresh.Lead)
		err := scheduler.Schedule(resourceID, first, interval, func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, cfg.Server.RequestTimeout)
			defer cancel()
			_, err := loader.Refresh(ctx, resourceID)
			return err
		})
		if err != nil {
			log.Fatalf("Failed to schedule refresh: %v", err)
		}
		scheduler.Start(ctx)
		defer scheduler.Stop()
		fmt.Printf("Refresh scheduled every %s (first at %s)\n", interval, first.Format(time.RFC3339))
	}

	srv := api.NewServer(cfg.Server.Addr, resourceID, loader,
		api.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
		api.WithSchedulerStats(scheduler.Stats),
		api.WithRequestTimeout(cfg.Server.RequestTimeout),
		api.WithLogger(logger),
	)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	fmt.Println("\n✓ CityScore Server is running")
	fmt.Printf("✓ HTTP API listening on %s\n", cfg.Server.Addr)
	fmt.Println("✓ Press Ctrl+C to stop")

	<-ctx.Done()

	fmt.Println("\nShutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown failed: %v", err)
	}
}
