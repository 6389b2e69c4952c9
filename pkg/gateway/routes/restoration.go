package routes

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sentinel-ai/gateway/pkg/audit"
	"github.com/sentinel-ai/gateway/pkg/common/logger"
	"github.com/sentinel-ai/gateway/pkg/common/models"
	"github.com/sentinel-ai/gateway/pkg/gateway/middleware"
	"github.com/sentinel-ai/gateway/pkg/observability/metrics"
	"github.com/sentinel-ai/gateway/pkg/restore"
)

type RestorationHandler struct {
	Restorer *restore.Service
	Audit    audit.Repository
}

// RegisterRestorationRoutes wires the restore endpoint. The router passed in
// must already run the Authenticate middleware.
func RegisterRestorationRoutes(router *mux.Router, h *RestorationHandler) {
	if h == nil || h.Restorer == nil || h.Audit == nil {
		panic("restoration handler requires restorer and audit sink")
	}

	router.HandleFunc("/restore", h.handleRestore).Methods(http.MethodPost)
}

func (h *RestorationHandler) handleRestore(w http.ResponseWriter, r *http.Request) {
	caller := middleware.Caller(r)
	if caller == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req models.RestoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	requestID := middleware.RequestID(r)
	entry := &audit.Entry{
		RequestID:    requestID,
		APIKeyID:     caller.ID,
		ServiceName:  caller.ServiceName,
		RedactedText: req.RedactedText,
		IPAddress:    middleware.ClientIP(r),
		UserAgent:    r.UserAgent(),
	}

	result, err := h.Restorer.Restore(r.Context(), req.RedactedText)
	if err != nil {
		entry.Status = audit.StatusFailed
		entry.ErrorMessage = err.Error()
		h.record(r, entry)
		metrics.RestorationsTotal.WithLabelValues(audit.StatusFailed).Inc()

		if errors.Is(err, restore.ErrPolicyForbidden) {
			http.Error(w, "Restoration forbidden: "+err.Error(), http.StatusForbidden)
			return
		}
		logger.Log.WithError(err).Error("Restoration failed")
		http.Error(w, "restoration failed", http.StatusInternalServerError)
		return
	}

	entry.Status = result.Status
	entry.RestoredText = &result.RestoredText
	entry.TokenCount = result.Restored + result.Missing
	if len(result.Warnings) > 0 {
		if details, err := json.Marshal(map[string]interface{}{"warnings": result.Warnings}); err == nil {
			entry.Details = details
		}
	}
	h.record(r, entry)
	metrics.RestorationsTotal.WithLabelValues(result.Status).Inc()

	writeJSON(w, http.StatusOK, models.RestoreResponse{
		RequestID:      requestID,
		OriginalText:   result.RestoredText,
		TokensRestored: result.Restored,
		TokensMissing:  result.Missing,
		Warnings:       result.Warnings,
		Status:         result.Status,
		AuditLogged:    true,
	})
}

func (h *RestorationHandler) record(r *http.Request, entry *audit.Entry) {
	if err := h.Audit.Record(r.Context(), entry); err != nil {
		logger.Log.WithError(err).Error("Failed to write audit entry")
	}
}
