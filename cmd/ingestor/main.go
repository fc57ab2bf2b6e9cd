package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/bademirci/prediction-markets/internal/api"
	"github.com/bademirci/prediction-markets/internal/catalog"
	"github.com/bademirci/prediction-markets/internal/config"
	"github.com/bademirci/prediction-markets/internal/database"
	"github.com/bademirci/prediction-markets/internal/ingest"
	"github.com/bademirci/prediction-markets/internal/retry"
	"github.com/bademirci/prediction-markets/internal/stream"
	"github.com/bademirci/prediction-markets/internal/version"
	"github.com/bademirci/prediction-markets/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/ingestor.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// Optional .env for local development; env values feed ${VAR}
	// substitution in the YAML config.
	godotenv.Load()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting ingestor",
		"version", version.Version,
		"commit", version.Commit,
		"instance_id", cfg.Instance.ID,
		"config", *configPath,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Timescale.Host,
		"port", cfg.Database.Timescale.Port,
		"database", cfg.Database.Timescale.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database.Timescale)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.EnsureSchema(ctx, pool, logger); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}
	if err := database.VerifySchema(ctx, pool); err != nil {
		logger.Error("schema verification failed", "error", err)
		os.Exit(1)
	}
	logger.Info("database ready")

	// Market metadata client
	gamma := api.NewClient(cfg.Gamma.URL,
		api.WithLogger(logger),
		api.WithTimeout(cfg.Gamma.Timeout),
		api.WithRetries(cfg.Gamma.MaxRetries, time.Second),
		api.WithPageSize(cfg.Gamma.PageSize),
	)

	cat := catalog.New(catalog.Config{
		Category:   cfg.Catalog.Category,
		MaxMarkets: cfg.Catalog.MaxMarkets,
	}, gamma, logger)

	// Stream client
	st := stream.New(stream.Config{
		URL:                cfg.Stream.URL,
		PingInterval:       cfg.Stream.PingInterval,
		PingTimeout:        cfg.Stream.PingTimeout,
		WriteTimeout:       cfg.Stream.WriteTimeout,
		ReconnectBaseDelay: cfg.Stream.ReconnectBaseDelay,
		ReconnectMaxDelay:  cfg.Stream.ReconnectMaxDelay,
		StableReset:        cfg.Stream.StableReset,
		SubscribeBatchSize: cfg.Stream.SubscribeBatchSize,
		SubscribeRate:      cfg.Stream.SubscribeRate,
		EventBufferSize:    cfg.Stream.EventBufferSize,
		MaxBookDepth:       cfg.Stream.MaxBookDepth,
	}, logger)

	// Batch writer
	wr := writer.New(writer.Config{
		BatchSize:      cfg.Writers.BatchSize,
		FlushInterval:  cfg.Writers.FlushInterval,
		BufferCapacity: cfg.Writers.BufferCapacity,
		Backpressure:   cfg.Writers.Backpressure,
		BlockTimeout:   cfg.Writers.BlockTimeout,
		Retry: retry.Policy{
			MaxAttempts: cfg.Writers.MaxRetries,
			MinDelay:    cfg.Writers.RetryBaseDelay,
			MaxDelay:    cfg.Writers.RetryMaxDelay,
		},
		OnExhausted: cfg.Writers.OnExhausted,
		SpillDir:    cfg.Writers.SpillDir,
	}, writer.NewTimescaleSink(pool), logger)

	// Orchestrator ties the pipeline together
	orch := ingest.New(ingest.Config{
		PollInterval:  cfg.Catalog.PollInterval,
		StatsInterval: cfg.Stats.Interval,
	}, cat, st, wr, logger)

	if err := orch.Start(ctx); err != nil {
		logger.Error("failed to start pipeline", "error", err)
		os.Exit(1)
	}

	// Health server
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: createHealthHandler(pool, orch, cat),
	}
	go func() {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	logger.Info("ingestor running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Health.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	healthServer.Shutdown(shutdownCtx)

	if err := orch.Stop(shutdownCtx); err != nil {
		logger.Error("pipeline shutdown error", "error", err)
	}

	logger.Info("ingestor stopped")
}

// newLogger builds the process logger. With log.file set, output rotates
// by size; otherwise it goes to stdout.
func newLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var out io.Writer = os.Stdout
	if cfg.File != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
	}

	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(pool *pgxpool.Pool, orch *ingest.Orchestrator, cat *catalog.Catalog) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		if err := pool.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["timescaledb"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["timescaledb"] = "connected"
		}

		st := orch.Stats()
		health.Components["stream"] = map[string]any{
			"state":      st.Stream.State,
			"subscribed": st.Stream.Subscribed,
			"reconnects": st.Stream.Reconnects,
		}
		health.Components["catalog"] = map[string]any{
			"markets": st.ActiveMarkets,
		}
		if st.ActiveMarkets == 0 {
			health.Status = "degraded"
		}
		if st.Stream.State != "streaming" {
			health.Status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(orch.Stats())
	})

	mux.HandleFunc("/debug/markets", func(w http.ResponseWriter, r *http.Request) {
		snap := cat.Snapshot()

		// Limit output for debugging
		limit := 100
		shown := 0
		markets := make([]any, 0, limit)
		for _, m := range snap.Markets {
			if shown >= limit {
				break
			}
			markets = append(markets, m)
			shown++
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"count":   len(snap.Markets),
			"showing": shown,
			"markets": markets,
		})
	})

	return mux
}
