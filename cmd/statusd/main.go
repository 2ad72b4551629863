package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"noren/internal/audit"
	"noren/internal/cms"
	"noren/internal/config"
	"noren/internal/events"
	"noren/internal/kv"
	"noren/internal/metrics"
	"noren/internal/model"
	"noren/internal/notify"
	"noren/internal/override"
	"noren/internal/poller"
	"noren/internal/resolver"
)

func main() {
	_ = godotenv.Load()

	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("NOREN_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	if cfg.ContentService.BaseURL == "" {
		logger.Fatal().Msg("set content_service.base_url in config")
	}

	weekly, err := cfg.WeeklySchedule()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid weekly schedule")
	}

	db, err := kv.OpenSQLite(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	store, err := kv.NewSQLite(db)
	if err != nil {
		logger.Fatal().Err(err).Msg("init kv store error")
	}

	client := cms.NewClient(cfg.ContentService.BaseURL, cfg.ContentService.APIKey, &logger)
	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		client.UseRedisCache(rdb)
	}

	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	overrides := override.NewStore(client, store, &logger, override.Options{
		SnapshotPath:    cfg.Override.SnapshotPath,
		RefreshInterval: cfg.RefreshInterval(),
		Policy:          cfg.FailurePolicy(),
	})
	overrides.Bootstrap(ctx)

	bus := events.NewBus()

	if cfg.Telegram.Enabled && cfg.Telegram.BotToken != "" {
		notifier, err := notify.New(cfg.Telegram.BotToken, cfg.Telegram.ChatIDs, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("create notifier error")
		}
		notifier.Attach(bus)
	}

	var recorder *audit.Recorder
	if cfg.Audit.Enabled {
		recorder, err = audit.NewRecorder(db, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("init audit error")
		}
		recorder.Attach(bus)
		go runAuditCleanup(ctx, recorder, cfg.Audit.RetentionDays, &logger)
	}

	sink := &fileSink{path: cfg.Status.FilePath, logger: &logger}
	res := resolver.New(overrides, weekly, sink, bus, &logger)
	loop := poller.New(cfg.RefreshInterval(), overrides, res, &logger)

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, client, overrides, res, loop, recorder, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	logger.Info().Msg("status daemon started")
	loop.Start(ctx)
}

// fileSink publishes the current status as a JSON document the static
// front end fetches. Written atomically so readers never see a torn file.
type fileSink struct {
	path   string
	logger *zerolog.Logger
}

func (f *fileSink) Show(status model.ResolvedStatus) {
	data, err := json.Marshal(status)
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		f.logger.Warn().Err(err).Msg("status file dir error")
		return
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err == nil {
		err = os.Rename(tmp, f.path)
	}
	if err != nil {
		f.logger.Warn().Err(err).Msg("status file write error")
	}
}

func runAuditCleanup(ctx context.Context, recorder *audit.Recorder, retentionDays int, logger *zerolog.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := recorder.Cleanup(ctx, time.Duration(retentionDays)*24*time.Hour)
			if err != nil {
				logger.Error().Err(err).Msg("audit cleanup error")
			} else if deleted > 0 {
				logger.Info().Int64("deleted", deleted).Msg("audit entries cleaned up")
			}
		}
	}
}

func startHealthServer(
	ctx context.Context,
	port int,
	db *sql.DB,
	rdb *redis.Client,
	client *cms.Client,
	overrides *override.Store,
	res *resolver.Resolver,
	loop *poller.Poller,
	recorder *audit.Recorder,
	logger *zerolog.Logger,
) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		status := res.Last()
		if status == nil {
			current := loop.RunNow(r.Context())
			status = &current
		}
		writeJSON(w, status)
	})

	mux.HandleFunc("GET /news", func(w http.ResponseWriter, r *http.Request) {
		items, err := client.ListNews(r.Context())
		if err != nil {
			http.Error(w, "news unavailable", http.StatusBadGateway)
			return
		}
		writeJSON(w, items)
	})

	// Privileged control surface for manual overrides.
	mux.HandleFunc("POST /override", func(w http.ResponseWriter, r *http.Request) {
		var rec model.OverrideRecord
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if model.NormalizeKind(string(rec.Kind)) == model.OverrideUnknown {
			http.Error(w, "unknown override kind", http.StatusBadRequest)
			return
		}
		id, err := overrides.Set(r.Context(), rec)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		loop.RunNow(r.Context())
		writeJSON(w, map[string]string{"id": id})
	})

	mux.HandleFunc("DELETE /override", func(w http.ResponseWriter, r *http.Request) {
		if err := overrides.Clear(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		loop.RunNow(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	if recorder != nil {
		mux.HandleFunc("GET /audit/export", func(w http.ResponseWriter, r *http.Request) {
			since := time.Now().AddDate(0, -1, 0)
			w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
			w.Header().Set("Content-Disposition", `attachment; filename="status-audit.xlsx"`)
			if err := recorder.Export(r.Context(), since, w); err != nil {
				logger.Error().Err(err).Msg("audit export error")
			}
		})
	}

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
