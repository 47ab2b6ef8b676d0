package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"
	"github.com/synaptica-ai/rigcast/pkg/common/config"
	"github.com/synaptica-ai/rigcast/pkg/common/database"
	"github.com/synaptica-ai/rigcast/pkg/common/kafka"
	"github.com/synaptica-ai/rigcast/pkg/common/logger"
	"github.com/synaptica-ai/rigcast/pkg/common/middleware"
	"github.com/synaptica-ai/rigcast/pkg/common/models"
	"github.com/synaptica-ai/rigcast/pkg/ingestion"
	"github.com/synaptica-ai/rigcast/pkg/observability/metrics"
	"github.com/synaptica-ai/rigcast/pkg/pipeline"
	"github.com/synaptica-ai/rigcast/pkg/runs"
	"github.com/synaptica-ai/rigcast/pkg/storage"
)

func main() {
	logger.Init()
	metrics.Init()
	cfg := config.Load()

	defaults, err := config.LoadRunFile(cfg.RunFile)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to load run file")
	}
	order, err := ingestion.ParseOrder(cfg.IngestOrder)
	if err != nil {
		logger.Log.WithError(err).Fatal("Invalid ingest order")
	}

	db, err := database.GetPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to database")
	}
	if err := database.Migrate(db, &runs.RunModel{}, &ingestion.FileRecord{}); err != nil {
		logger.Log.WithError(err).Fatal("Failed to migrate tables")
	}

	store, err := storage.NewArtifactStore(cfg.InterimDataDir, cfg.ArtifactDir)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to prepare artifact directories")
	}
	registry := storage.FallbackRegistry{
		storage.NewRedisRegistry(database.GetRedis(cfg), cfg.RegistryTTL),
		storage.NewFileRegistry(store),
	}

	ing := ingestion.NewIngestor(ingestion.Options{Marker: cfg.RawMarker, Order: order})
	runner := pipeline.NewRunner(ing, store, registry)

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.RunEventsTopic)
	service := runs.NewService(
		runs.NewRepository(db),
		ingestion.NewRepository(db),
		runner,
		producer,
		runs.Options{Defaults: defaults, RawDir: cfg.RawDataDir, MaxWorkers: cfg.TrainingMaxWorkers},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.TrainingRequestTopic, cfg.KafkaGroupID)
	go func() {
		if err := consumer.Consume(ctx, service.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
			logger.Log.WithError(err).Error("Training request consumer stopped")
		}
	}()

	scheduler := cron.New()
	if cfg.TrainingSchedule != "" {
		_, err := scheduler.AddFunc(cfg.TrainingSchedule, func() {
			run, err := service.Submit(ctx, models.RunRequest{Trigger: "schedule"})
			if err != nil {
				logger.Log.WithError(err).Error("Scheduled run not started")
				return
			}
			logger.Log.WithField("run_id", run.ID).Info("Scheduled run enqueued")
		})
		if err != nil {
			logger.Log.WithError(err).Fatal("Invalid training schedule")
		}
		scheduler.Start()
		logger.Log.WithField("schedule", cfg.TrainingSchedule).Info("Training schedule enabled")
	}

	router := mux.NewRouter()
	router.Use(middleware.Recovery, middleware.Logging, middleware.BodyLimit(cfg.MaxRequestBody))
	router.HandleFunc("/health", healthCheck).Methods(http.MethodGet)
	router.HandleFunc("/metrics", metrics.Handler).Methods(http.MethodGet)
	runs.NewHTTPHandler(service, cfg.MaxRequestBody).Register(router)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.TrainingPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.TrainingPort,
		}).Info("Training Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Training Service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}
	<-scheduler.Stop().Done()
	cancel()
	service.Close()

	if err := consumer.Close(); err != nil {
		logger.Log.WithError(err).Warn("Failed to close consumer")
	}
	if err := producer.Close(); err != nil {
		logger.Log.WithError(err).Warn("Failed to close producer")
	}
	if err := database.CloseRedis(); err != nil {
		logger.Log.WithError(err).Warn("Failed to close Redis")
	}
	if err := database.ClosePostgres(); err != nil {
		logger.Log.WithError(err).Warn("Failed to close database")
	}

	logger.Log.Info("Training Service stopped")
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}
