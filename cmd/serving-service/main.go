package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/rigcast/pkg/common/config"
	"github.com/synaptica-ai/rigcast/pkg/common/database"
	"github.com/synaptica-ai/rigcast/pkg/common/logger"
	"github.com/synaptica-ai/rigcast/pkg/common/middleware"
	"github.com/synaptica-ai/rigcast/pkg/observability/metrics"
	"github.com/synaptica-ai/rigcast/pkg/serving"
	"github.com/synaptica-ai/rigcast/pkg/serving/predictor"
	"github.com/synaptica-ai/rigcast/pkg/storage"
)

func main() {
	logger.Init()
	metrics.Init()
	cfg := config.Load()

	store, err := storage.NewArtifactStore(cfg.InterimDataDir, cfg.ArtifactDir)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to open artifact directory")
	}
	registry := storage.FallbackRegistry{
		storage.NewRedisRegistry(database.GetRedis(cfg), cfg.RegistryTTL),
		storage.NewFileRegistry(store),
	}
	forecaster := predictor.NewPredictor(registry, store)

	// the forecast log is optional; serving keeps working without Postgres
	var logs serving.ForecastLogger
	if db, err := database.GetPostgres(cfg); err != nil {
		logger.Log.WithError(err).Warn("Forecast log disabled")
	} else {
		repo := serving.NewRepository(db)
		if err := repo.AutoMigrate(); err != nil {
			logger.Log.WithError(err).Fatal("Failed to migrate forecast log")
		}
		logs = repo
	}

	router := mux.NewRouter()
	router.Use(middleware.Recovery, middleware.Logging, middleware.CORS, middleware.BodyLimit(cfg.MaxRequestBody))
	router.HandleFunc("/health", healthCheck).Methods(http.MethodGet)
	router.HandleFunc("/metrics", metrics.Handler).Methods(http.MethodGet)
	serving.NewHandler(forecaster, logs).Register(router)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServingPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServingPort,
		}).Info("Serving Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Serving Service...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}
	if err := database.CloseRedis(); err != nil {
		logger.Log.WithError(err).Warn("Failed to close Redis")
	}
	if err := database.ClosePostgres(); err != nil {
		logger.Log.WithError(err).Warn("Failed to close database")
	}

	logger.Log.Info("Serving Service stopped")
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}
