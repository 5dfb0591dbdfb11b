// Package main runs the pressbridge sync engine server.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pressbridge/pressbridge/internal/config"
	"github.com/pressbridge/pressbridge/internal/db"
	"github.com/pressbridge/pressbridge/internal/embedding"
	"github.com/pressbridge/pressbridge/internal/metrics"
	"github.com/pressbridge/pressbridge/internal/reindex"
	"github.com/pressbridge/pressbridge/internal/remote"
	"github.com/pressbridge/pressbridge/internal/server"
	"github.com/pressbridge/pressbridge/internal/sync"
	"github.com/pressbridge/pressbridge/internal/throttle"
)

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all data from database on startup (testing only)")
	flag.Parse()

	cfg := config.Load()

	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer func() {
		if err := cleanup(); err != nil {
			slog.Error("failed to close log file", "error", err)
		}
	}()
	slog.SetDefault(logger)

	slog.Info("starting pressbridge-server", "port", cfg.ServerPort)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	database, err := db.NewClient(ctx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
	cancel()
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(context.Background()); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}()

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.InitSchema(ctx); err != nil {
		cancel()
		slog.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}
	cancel()

	if *wipeDB || os.Getenv("PRESSBRIDGE_WIPE_DB") == "true" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := database.WipeData(ctx); err != nil {
			cancel()
			slog.Error("failed to wipe database", "error", err)
			os.Exit(1)
		}
		cancel()
		slog.Warn("database wiped on startup")
	}

	embedder, err := embedding.NewEmbedder(cfg, logger)
	if err != nil {
		slog.Error("failed to create embedder", "error", err)
		os.Exit(1)
	}
	slog.Info("embedder ready", "model", embedder.Model(), "dimension", embedder.Dimension())

	blocklist, err := reindex.LoadBlocklist(cfg.BlocklistFile)
	if err != nil {
		slog.Error("failed to load blocklist", "error", err)
		os.Exit(1)
	}

	// Every site gets its own remote client bound to its credentials.
	remotes := remote.Factory(func(baseURL, credentialRef string) remote.Client {
		return remote.NewHTTPClient(baseURL, credentialRef, cfg.RemoteTimeout)
	})

	limiter := throttle.NewLimiter(cfg.PullPerSiteLimit, cfg.ThrottleWindow)
	limiter.Start(cfg.ThrottleWindow)
	defer limiter.Stop()

	selfWrites := sync.NewSelfWrites(cfg.SelfWriteTTL)
	selfWrites.Start(cfg.SelfWriteTTL)
	defer selfWrites.Stop()

	stats := metrics.NewCollector()

	detector := sync.NewDetector(database, logger)
	queue := reindex.NewQueue(database, blocklist, reindex.QueueConfig{
		BatchLimit: cfg.ReindexBatchLimit,
		TenantCap:  cfg.ReindexTenantCap,
	}, logger)
	worker := reindex.NewWorker(database, embedder, database, stats, logger)

	svc := server.Services{
		Store: database,
		Puller: sync.NewPuller(database, remotes, limiter, detector, queue, sync.PullerConfig{
			MinPullInterval: cfg.MinPullInterval,
			RemoteTimeout:   cfg.RemoteTimeout,
		}, logger),
		Pusher: sync.NewPusher(database, remotes, detector, selfWrites, sync.PusherConfig{
			RemoteTimeout: cfg.RemoteTimeout,
		}, logger),
		Ingestor: sync.NewIngestor(database, detector, selfWrites, queue, logger),
		Detector: detector,
		Health: sync.NewHealth(database, sync.HealthConfig{
			MaxSilence:       cfg.HealthMaxSilence,
			MinSuccessRate:   cfg.HealthMinSuccessRate,
			MaxOpenConflicts: cfg.HealthMaxConflicts,
		}),
		Queue:  queue,
		Worker: worker,
	}

	srv := server.New(svc, stats, server.Config{
		BearerToken:       cfg.BearerToken,
		PullBatchLimit:    cfg.PullBatchLimit,
		ReindexBatchLimit: cfg.ReindexBatchLimit,
	}, logger)

	httpServer := srv.HTTPServer(cfg.ServerPort)

	go func() {
		slog.Info("API listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
