package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/lmittmann/tint"

	"ecolisting_ingest/internal/config"
	"ecolisting_ingest/internal/normalize"
	"ecolisting_ingest/internal/publisher"
	"ecolisting_ingest/internal/scheduler"
	"ecolisting_ingest/internal/service"
	"ecolisting_ingest/internal/source/feed"
	"ecolisting_ingest/internal/source/repliers"
	"ecolisting_ingest/internal/source/simplyrets"
	"ecolisting_ingest/internal/storage/postgres"
	"ecolisting_ingest/internal/storage/rpc"
	"ecolisting_ingest/internal/storage/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ingest failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := setupLogger("info", "json")

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger = setupLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	src, err := newSource(cfg, logger)
	if err != nil {
		return err
	}

	profile, ok := normalize.ProfileFor(src.ID())
	if !ok {
		return fmt.Errorf("no normalizer profile for source %q", src.ID())
	}
	policy, err := cfg.Normalize.Policy()
	if err != nil {
		return err
	}
	normalizer := normalize.New(src.ID(), profile, policy)

	var (
		sinks sinkSet
		pub   service.Publisher
	)
	if cfg.Ingest.DryRun {
		logger.Info("dry run enabled, no sink will be written")
	} else {
		sinks, err = openSinks(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer sinks.close()

		if sinks.lock != nil {
			if err := sinks.lock.Acquire(ctx); err != nil {
				return fmt.Errorf("acquire run lock: %w", err)
			}
			defer func() {
				releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer releaseCancel()
				if err := sinks.lock.Release(releaseCtx); err != nil {
					logger.Warn("release run lock", "error", err)
				}
			}()
		}

		// Initialize RabbitMQ publisher
		if cfg.RabbitMQ.Enabled() {
			rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
				URL:        cfg.RabbitMQ.URL,
				Exchange:   cfg.RabbitMQ.Exchange,
				RoutingKey: cfg.RabbitMQ.RoutingKey,
				QueueName:  cfg.RabbitMQ.QueueName,
			}, logger)
			if err != nil {
				return err
			}
			defer rabbitMQ.Close()
			pub = rabbitMQ
		}
	}

	ingestService := service.NewIngestService(
		src,
		normalizer,
		sinks.listings,
		sinks.photos,
		sinks.runState,
		pub,
		logger,
		cfg.Ingest,
	)

	logger.Info("starting ingester",
		"source", src.Name(),
		"sink", cfg.Sink,
		"dry_run", bool(cfg.Ingest.DryRun),
		"interval", cfg.Ingest.Interval,
	)

	sched := scheduler.NewScheduler(ingestService, cfg.Ingest.Interval, logger)
	return sched.Start(ctx)
}

func newSource(cfg *config.Config, logger *slog.Logger) (service.Source, error) {
	retryPolicy := cfg.Source.Retry.Policy()

	switch cfg.Provider {
	case config.ProviderSimplyRETS:
		return simplyrets.New(simplyrets.Config{
			BaseURL:  cfg.SimplyRETS.BaseURL,
			Username: cfg.SimplyRETS.Username,
			Password: cfg.SimplyRETS.Password,
			Timeout:  cfg.Source.Timeout,
			Retry:    retryPolicy,
		}, logger), nil
	case config.ProviderRepliers:
		return repliers.New(repliers.Config{
			BaseURL: cfg.Repliers.BaseURL,
			APIKey:  cfg.Repliers.APIKey,
			Timeout: cfg.Source.Timeout,
			Retry:   retryPolicy,
		}, logger), nil
	case config.ProviderFeed:
		return feed.New(feed.Config{
			URL:     cfg.Feed.URL,
			Token:   cfg.Feed.Token,
			Timeout: cfg.Source.Timeout,
			Retry:   retryPolicy,
		}, logger), nil
	}
	return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
}

type sinkSet struct {
	listings service.ListingSink
	photos   service.PhotoSink
	runState service.RunStateStore
	lock     *postgres.RunLock
	closers  []func() error
}

func (s sinkSet) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

func openSinks(ctx context.Context, cfg *config.Config, logger *slog.Logger) (sinkSet, error) {
	switch cfg.Sink {
	case config.SinkPostgres:
		db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.DSN())
		if err != nil {
			return sinkSet{}, fmt.Errorf("connect to database: %w", err)
		}
		logger.Info("connected to database")

		set := sinkSet{
			listings: postgres.NewListingStore(db),
			photos:   postgres.NewPhotoStore(db, postgres.NewTransactionManager(db)),
			runState: postgres.NewRunStateStore(db),
			closers:  []func() error{db.Close},
		}
		if cfg.Ingest.RunLock {
			set.lock = postgres.NewRunLock(db, "ecolisting_ingest:"+cfg.Provider)
		}
		return set, nil

	case config.SinkRPC:
		client := rpc.New(rpc.Config{
			URL:         cfg.Supabase.URL,
			ServiceKey:  cfg.Supabase.ServiceRoleKey,
			Function:    cfg.Supabase.RPCFunction,
			PhotosTable: cfg.Supabase.PhotosTable,
			Timeout:     cfg.Supabase.Timeout,
		}, logger)
		return sinkSet{listings: client, photos: client}, nil

	case config.SinkSQLite:
		store, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return sinkSet{}, err
		}
		logger.Info("opened sqlite database", "path", cfg.SQLite.Path)
		return sinkSet{
			listings: store,
			photos:   store,
			runState: store,
			closers:  []func() error{store.Close},
		}, nil
	}
	return sinkSet{}, fmt.Errorf("unknown sink %q", cfg.Sink)
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var handler slog.Handler
	if format == "text" {
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
		})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	return slog.New(handler)
}
