package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"planner/internal/config"
	"planner/internal/db"
	"planner/internal/handler"
	"planner/internal/logger"
	"planner/internal/middleware"
	"planner/internal/planner"
	"planner/internal/queue"
	"planner/internal/syncer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// Logger
	log, logCloser := logger.New(cfg.Log)
	defer logCloser.Close()
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("planner stopped with error", slog.String("error", err.Error()))
		logCloser.Close()
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting planner", slog.Any("config", cfg))

	// Remote store
	repo, err := db.Open(cfg.DBDriver, cfg.DBDSN, logger.Component(log, "db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer repo.Close()

	// Offline queue
	store, closeStore, err := openQueueStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore.Close()

	q := queue.New(store, logger.Component(log, "queue"), queue.WithRetention(cfg.QueueRetention))
	engine := syncer.New(repo, q, logger.Component(log, "syncer"), syncer.WithWriteTimeout(cfg.WriteTimeout))

	p := planner.New(planner.Config{UserID: cfg.UserID, UndoGrace: cfg.UndoGrace}, repo, engine, logger.Component(log, "planner"))
	if err := p.Load(ctx); err != nil {
		log.Warn("initial load failed, retry with POST /api/v1/tasks/reload", slog.String("error", err.Error()))
	}

	monitor, err := syncer.NewMonitor(engine, repo, cfg.UserID, cfg.ProbeInterval, logger.Component(log, "monitor"))
	if err != nil {
		return err
	}

	// Router with middleware
	router := chi.NewMux()
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(middleware.RequestLogger(log, "/healthz"))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS())
	router.Use(chimw.Timeout(30 * time.Second))

	// Health check (plain chi route, outside huma)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Huma API (OpenAPI 3.1)
	apiCfg := huma.DefaultConfig("Planner API", "1.0.0")
	apiCfg.Info.Description = "Day planner with offline-tolerant sync, undoable deletes, recurring tasks and a weight log."
	api := humachi.New(router, apiCfg)
	handler.NewHandler(p, cfg.Timezone, logger.Component(log, "handler")).RegisterRoutes(api)

	srv := &http.Server{Addr: cfg.Addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server starting", slog.String("addr", cfg.Addr), slog.String("docs", "http://localhost"+cfg.Addr+"/docs"))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		// replay whatever a previous run left queued
		monitor.Check()
		monitor.Start()
		<-gctx.Done()
		monitor.Stop()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if cerr := p.Close(shutdownCtx); cerr != nil {
			log.Warn("sync engine stopped before draining", slog.String("error", cerr.Error()))
		}
		log.Info("server stopped")
		return err
	})

	return g.Wait()
}

func openQueueStorage(ctx context.Context, cfg config.Config) (queue.Storage, io.Closer, error) {
	switch cfg.QueueBackend {
	case config.QueueRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		return queue.NewRedisStorage(client, "planner:"+cfg.UserID+":"), client, nil
	default:
		s, err := queue.OpenSQLiteStorage(cfg.QueuePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open queue storage: %w", err)
		}
		return s, s, nil
	}
}
