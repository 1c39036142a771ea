package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"nexus-backend/internal/api"
	"nexus-backend/internal/automod"
	"nexus-backend/internal/broadcast"
	"nexus-backend/internal/chat"
	"nexus-backend/internal/config"
	"nexus-backend/internal/db"
	"nexus-backend/internal/identity"
	"nexus-backend/internal/ledger"
	"nexus-backend/internal/logging"
	"nexus-backend/internal/moderation"
	"nexus-backend/internal/profile"
	"nexus-backend/internal/redis"
	"nexus-backend/internal/session"
	"nexus-backend/internal/storage"
	"nexus-backend/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting_api", "service", "nexus-backend", "http_addr", cfg.HTTPAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbConn, err := db.New(ctx, cfg.DBDSN)
	if err != nil {
		logger.Error("db_connect_failed", "error", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	if err := dbConn.Migrate(ctx); err != nil {
		logger.Error("db_migrate_failed", "error", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(cfg.RedisDSN)
	if err != nil {
		logger.Error("redis_connect_failed", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	var storageClient storage.StorageClient
	if cfg.R2Endpoint != "" {
		s3Client, err := storage.NewS3Client(storage.S3Config{
			Endpoint:  cfg.R2Endpoint,
			Bucket:    cfg.R2Bucket,
			PublicURL: cfg.R2PublicURL,
			Region:    "auto",
		})
		if err != nil {
			logger.Error("storage_init_failed", "error", err)
			os.Exit(1)
		}
		storageClient = s3Client
	} else {
		storageClient = storage.NewR2Simulator(cfg.R2Bucket, cfg.R2Endpoint)
		logger.Info("storage_simulator_active")
	}

	pgStore := ledger.NewPGStore(dbConn)
	ledgerSvc := ledger.NewService(logger, pgStore, cfg.OwnerUserID)
	awarder := ledger.NewAwarder(logger, ledgerSvc, redisClient, cfg.MessagePoints)

	resolver := identity.NewResolver(logger, redisClient)
	mods := moderation.NewService(logger, redisClient, cfg.OwnerUserID)
	engine := automod.NewEngine(logger, redisClient, mods, cfg.OwnerUserID)
	profiles := profile.NewManager(logger, redisClient, ledgerSvc)
	storeSvc := store.NewService(logger, redisClient, ledgerSvc, profiles)
	sessions := session.NewManager(logger, redisClient, cfg.SessionEncryptionKey)

	hub := broadcast.NewHub(logger, nil)

	pipeline := chat.NewPipeline(logger, redisClient, resolver, ledgerSvc, awarder, mods, engine, profiles, hub)
	pipeline.StartWorkers(cfg.ChatWorkerCount)

	avatarJob := storage.NewAvatarCacheJob(logger, dbConn, storageClient, cfg.R2PublicURL)
	go avatarJob.Start(ctx)

	srv := api.NewServer(logger, dbConn, redisClient, cfg, api.Deps{
		Sessions: sessions,
		Resolver: resolver,
		Ledger:   ledgerSvc,
		Profiles: profiles,
		Store:    storeSvc,
		Mods:     mods,
		Automod:  engine,
		Pipeline: pipeline,
		Hub:      hub,
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_listen_failed", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("api_started", "addr", cfg.HTTPAddr)

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting_down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_shutdown_failed", "error", err)
	} else {
		logger.Info("http_server_stopped")
	}

	// drain in-flight chat work before closing its backing stores
	pipeline.StopWorkers()
	cancel()

	if err := redisClient.Close(); err != nil {
		logger.Warn("redis_close_error", "error", err)
	} else {
		logger.Info("redis_closed")
	}

	dbConn.Close()
	logger.Info("db_closed")

	logger.Info("api_stopped")
}
