// Package serving exposes trained models over HTTP.
package serving

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/synaptica-ai/rigcast/pkg/common/logger"
	"github.com/synaptica-ai/rigcast/pkg/common/models"
	"github.com/synaptica-ai/rigcast/pkg/observability/metrics"
	"github.com/synaptica-ai/rigcast/pkg/serving/predictor"
	"github.com/synaptica-ai/rigcast/pkg/storage"
)

// Forecaster is implemented by *predictor.Predictor.
type Forecaster interface {
	Forecast(ctx context.Context, feature string, recent []float64, horizon int) (*predictor.Forecast, error)
}

// ForecastLogger stores served forecasts. *Repository implements it.
type ForecastLogger interface {
	RecordForecast(ctx context.Context, req models.ForecastRequest, resp models.ForecastResponse) error
	Recent(ctx context.Context, feature string, limit int) ([]ForecastLog, error)
}

type Handler struct {
	forecaster Forecaster
	logs       ForecastLogger
}

// NewHandler builds the serving endpoints. logs may be nil when no database is
// configured.
func NewHandler(forecaster Forecaster, logs ForecastLogger) *Handler {
	return &Handler{forecaster: forecaster, logs: logs}
}

func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/api/v1/forecast", h.handleForecast).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/forecasts", h.handleRecent).Methods(http.MethodGet)
}

func (h *Handler) handleForecast(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req models.ForecastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Feature == "" {
		http.Error(w, "feature is required", http.StatusBadRequest)
		return
	}
	if req.Horizon == 0 {
		req.Horizon = 1
	}

	ctx := r.Context()
	fc, err := h.forecaster.Forecast(ctx, req.Feature, req.Recent, req.Horizon)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNoArtifact):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, predictor.ErrShortHistory),
			errors.Is(err, predictor.ErrInvalidHorizon),
			errors.Is(err, predictor.ErrNonFinite):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			logger.Log.WithError(err).WithField("feature", req.Feature).Error("Forecast failed")
			http.Error(w, "forecast failed", http.StatusInternalServerError)
		}
		return
	}

	resp := models.ForecastResponse{
		ID:        uuid.New().String(),
		Feature:   fc.Feature,
		Values:    fc.Values,
		RunID:     fc.Set.RunID,
		ModelPath: fc.Set.ModelPath,
		Latency:   time.Since(start),
	}
	metrics.ForecastServed()

	if h.logs != nil {
		if err := h.logs.RecordForecast(ctx, req, resp); err != nil {
			logger.Log.WithError(err).Warn("Failed to record forecast")
		}
	}

	logger.Log.WithFields(logrus.Fields{
		"feature":    resp.Feature,
		"horizon":    len(resp.Values),
		"latency_ms": resp.Latency.Milliseconds(),
	}).Info("Forecast completed")

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRecent(w http.ResponseWriter, r *http.Request) {
	if h.logs == nil {
		http.Error(w, "forecast log not configured", http.StatusServiceUnavailable)
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	logs, err := h.logs.Recent(r.Context(), r.URL.Query().Get("feature"), limit)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to list forecasts")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"forecasts": logs, "count": len(logs)})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
