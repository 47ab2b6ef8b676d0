package runs

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/synaptica-ai/rigcast/pkg/common/logger"
	"github.com/synaptica-ai/rigcast/pkg/common/models"
)

type HTTPHandler struct {
	service *Service
	maxBody int64
}

func NewHTTPHandler(service *Service, maxBody int64) *HTTPHandler {
	return &HTTPHandler{service: service, maxBody: maxBody}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/api/v1/runs", h.handleCreate).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/runs", h.handleList).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/runs/{id}", h.handleGet).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/runs/{id}/artifacts", h.handleArtifacts).Methods(http.MethodGet)
}

func (h *HTTPHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}

	var req models.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Log.WithError(err).Warn("invalid run request payload")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.Trigger = "api"

	run, err := h.service.Submit(r.Context(), req)
	if err != nil {
		if IsValidationError(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.Log.WithError(err).Error("failed to create run")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

func (h *HTTPHandler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	list, err := h.service.List(r.Context(), limit)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list runs")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": list, "count": len(list)})
}

func (h *HTTPHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	run, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *HTTPHandler) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	artifacts, err := h.service.Artifacts(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, artifacts)
}

func (h *HTTPHandler) writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrRunNotFound) {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	logger.Log.WithError(err).Error("failed to fetch run")
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid run id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
