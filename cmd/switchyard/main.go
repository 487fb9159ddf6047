package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/nidhogg/switchyard/internal/api"
	"github.com/nidhogg/switchyard/internal/config"
	"github.com/nidhogg/switchyard/internal/events"
	"github.com/nidhogg/switchyard/internal/experiment"
	"github.com/nidhogg/switchyard/internal/store"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting Switchyard...")

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/switchyard.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// Load experiment definitions
	expsPath := cfg.Experiments.File
	if expsPath == "" {
		expsPath = "configs/experiments.json"
	}
	exps, err := experiment.LoadFile(expsPath)
	if err != nil {
		logger.Fatal("failed to load experiments", zap.String("path", expsPath), zap.Error(err))
	}
	logger.Info("Experiments loaded", zap.String("path", expsPath), zap.Int("count", len(exps)))

	// Assignment store: postgres preferred, then redis, then in-memory.
	// Memory is safe as a fallback because bucketing recomputes
	// deterministically after a restart.
	var assignStore experiment.Store = store.NewMemory()
	var pgStore *store.Postgres
	var redisStore *store.Redis
	if cfg.Database.Postgres.DSN != "" {
		ps, pgErr := store.NewPostgres(cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, falling back", zap.Error(pgErr))
		} else {
			if mErr := ps.Migrate(context.Background(), "migrations"); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			pgStore = ps
			assignStore = ps
		}
	}
	if pgStore == nil && cfg.Database.Redis.URL != "" {
		var ttl time.Duration
		if cfg.Database.Redis.AssignmentTTL != "" {
			ttl, err = time.ParseDuration(cfg.Database.Redis.AssignmentTTL)
			if err != nil {
				logger.Fatal("invalid assignment_ttl", zap.String("value", cfg.Database.Redis.AssignmentTTL), zap.Error(err))
			}
		}
		rs, rErr := store.NewRedis(cfg.Database.Redis.URL, ttl, logger)
		if rErr != nil {
			logger.Warn("Redis unavailable, using in-memory assignments", zap.Error(rErr))
		} else {
			redisStore = rs
			assignStore = rs
		}
	}

	// Event sink
	var sink events.Sink = events.Nop{}
	var httpSink *events.HTTPSink
	var streamSink *events.StreamSink
	switch {
	case cfg.Events.SinkURL != "":
		httpSink = events.NewHTTPSink(cfg.Events.SinkURL, logger)
		sink = httpSink
		logger.Info("Event sink configured", zap.String("url", cfg.Events.SinkURL))
	case cfg.Events.Stream != "" && cfg.Database.Redis.URL != "":
		ss, sErr := events.NewStreamSink(cfg.Database.Redis.URL, cfg.Events.Stream, logger)
		if sErr != nil {
			logger.Warn("event stream unavailable, dropping events", zap.Error(sErr))
		} else {
			streamSink = ss
			sink = ss
			logger.Info("Event stream configured", zap.String("stream", cfg.Events.Stream))
		}
	}

	engine := experiment.NewEngine(exps, assignStore, sink, logger)
	handler := api.NewHandler(engine, logger)

	// Start server
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("Switchyard listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Switchyard...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
	if httpSink != nil {
		httpSink.Flush()
	}
	if streamSink != nil {
		streamSink.Close()
	}
	if redisStore != nil {
		redisStore.Close()
	}
	if pgStore != nil {
		pgStore.Close()
	}
}
