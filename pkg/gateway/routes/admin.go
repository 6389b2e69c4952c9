package routes

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sentinel-ai/gateway/pkg/audit"
	"github.com/sentinel-ai/gateway/pkg/auth"
	"github.com/sentinel-ai/gateway/pkg/common/logger"
)

type AdminHandler struct {
	Keys  *auth.Service
	Audit audit.Repository
}

// RegisterKeyIssuanceRoutes wires key creation onto an unauthenticated
// router. Issuance cannot sit behind API-key auth: a fresh deployment holds
// zero keys, so the first one must be mintable through the gateway itself.
func RegisterKeyIssuanceRoutes(router *mux.Router, h *AdminHandler) {
	if h == nil || h.Keys == nil {
		panic("admin handler requires key service")
	}

	router.HandleFunc("/admin/api-keys", h.handleCreateKey).Methods(http.MethodPost)
}

// RegisterAdminRoutes wires key management and audit querying. The router
// passed in must already run the Authenticate middleware.
func RegisterAdminRoutes(router *mux.Router, h *AdminHandler) {
	if h == nil || h.Keys == nil || h.Audit == nil {
		panic("admin handler requires key service and audit repository")
	}

	router.HandleFunc("/admin/api-keys", h.handleListKeys).Methods(http.MethodGet)
	router.HandleFunc("/admin/api-keys/{id}", h.handleRevokeKey).Methods(http.MethodDelete)
	router.HandleFunc("/admin/audit-logs", h.handleQueryAudit).Methods(http.MethodGet)
}

func (h *AdminHandler) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ServiceName string `json:"service_name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ServiceName == "" {
		http.Error(w, "service_name must not be empty", http.StatusBadRequest)
		return
	}

	plaintext, key, err := h.Keys.Issue(r.Context(), req.ServiceName, req.Description)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to issue API key")
		http.Error(w, "key issuance failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"api_key":      plaintext,
		"key_id":       key.ID,
		"service_name": key.ServiceName,
		"created_at":   key.CreatedAt,
		"warning":      "Save this API key now. It will not be shown again.",
	})
}

func (h *AdminHandler) handleListKeys(w http.ResponseWriter, r *http.Request) {
	includeRevoked, _ := strconv.ParseBool(r.URL.Query().Get("include_revoked"))

	keys, err := h.Keys.List(r.Context(), includeRevoked)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to list API keys")
		http.Error(w, "listing failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"keys":  keys,
		"total": len(keys),
	})
}

func (h *AdminHandler) handleRevokeKey(w http.ResponseWriter, r *http.Request) {
	keyID := mux.Vars(r)["id"]

	if err := h.Keys.Revoke(r.Context(), keyID); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "API key " + keyID + " revoked"})
}

func (h *AdminHandler) handleQueryAudit(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := audit.Filter{
		ServiceName: query.Get("service_name"),
	}
	if v := query.Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	if v := query.Get("offset"); v != "" {
		filter.Offset, _ = strconv.Atoi(v)
	}
	if v := query.Get("since"); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			filter.Since = &ts
		}
	}
	if v := query.Get("until"); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			filter.Until = &ts
		}
	}

	entries, err := h.Audit.Query(r.Context(), filter)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to query audit log")
		http.Error(w, "audit query failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs":   entries,
		"total":  len(entries),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}
