package routes

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sentinel-ai/gateway/pkg/common/logger"
	"github.com/sentinel-ai/gateway/pkg/common/models"
	"github.com/sentinel-ai/gateway/pkg/gateway/middleware"
	"github.com/sentinel-ai/gateway/pkg/observability/metrics"
	"github.com/sentinel-ai/gateway/pkg/policy"
	"github.com/sentinel-ai/gateway/pkg/redact"
	"github.com/sentinel-ai/gateway/pkg/suggest"
	"github.com/sentinel-ai/gateway/pkg/verify"
)

type RedactionHandler struct {
	Orchestrator   *redact.Orchestrator
	Policies       *policy.Engine
	Pipeline       *verify.Pipeline
	Recommender    *suggest.Recommender
	DefaultContext string
	AllowOverride  bool
}

func RegisterRedactionRoutes(router *mux.Router, h *RedactionHandler) {
	if h == nil || h.Orchestrator == nil || h.Policies == nil {
		panic("redaction handler requires orchestrator and policy engine")
	}

	router.HandleFunc("/redact", h.handleRedact).Methods(http.MethodPost)
	router.HandleFunc("/policies", h.handleListPolicies).Methods(http.MethodGet)
	router.HandleFunc("/policies", h.handleRegisterPolicy).Methods(http.MethodPost)
	if h.Recommender != nil {
		router.HandleFunc("/policies/recommend", h.handleRecommendPolicy).Methods(http.MethodPost)
	}
}

func (h *RedactionHandler) handleRedact(w http.ResponseWriter, r *http.Request) {
	var req models.RedactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		http.Error(w, "text must not be empty", http.StatusBadRequest)
		return
	}

	contextName := h.DefaultContext
	override := req.Policy
	if !h.AllowOverride {
		override = nil
	}
	if override != nil && override.Context != "" {
		contextName = override.Context
	}

	pol, err := h.Policies.Resolve(contextName, override)
	if err != nil {
		if errors.Is(err, policy.ErrUnknownContext) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "policy resolution failed", http.StatusInternalServerError)
		return
	}

	result, err := h.Orchestrator.Redact(r.Context(), req.Text, pol)
	if err != nil {
		logger.Log.WithError(err).Error("Redaction failed")
		http.Error(w, "redaction failed", http.StatusInternalServerError)
		return
	}

	metrics.RedactionsTotal.Inc()
	for _, scores := range result.Scores {
		for _, score := range scores {
			metrics.ConfidenceScores.Observe(score)
		}
	}

	requestID := middleware.RequestID(r)
	auditStatus := "skipped"
	if h.Pipeline != nil && len(result.Batch) > 0 {
		h.Pipeline.Enqueue(verify.Job{
			RequestID:    requestID,
			RedactedText: result.RedactedText,
			Batch:        result.Batch,
		})
		auditStatus = "queued"
	}

	writeJSON(w, http.StatusOK, models.RedactResponse{
		RequestID:        requestID,
		RedactedText:     result.RedactedText,
		ConfidenceScores: result.Scores,
		AuditStatus:      auditStatus,
		PolicyApplied:    pol.Summary(),
	})
}

func (h *RedactionHandler) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"available_contexts": h.Policies.Contexts(),
		"default_context":    h.DefaultContext,
		"policies":           h.Policies.List(),
	})
}

func (h *RedactionHandler) handleRegisterPolicy(w http.ResponseWriter, r *http.Request) {
	var custom policy.Policy
	if err := json.NewDecoder(r.Body).Decode(&custom); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.Policies.Register(custom); err != nil {
		if errors.Is(err, policy.ErrDuplicateContext) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"context": custom.Context})
}

func (h *RedactionHandler) handleRecommendPolicy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		http.Error(w, "text must not be empty", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, h.Recommender.Suggest(r.Context(), req.Text))
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Log.WithError(err).Error("Failed to encode response")
	}
}
