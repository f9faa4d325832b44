// internal/handler/message_handler.go
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lumenhq/courier-backend/internal/apperrors"
	"github.com/lumenhq/courier-backend/internal/repository"
	"github.com/lumenhq/courier-backend/internal/service"
)

// Dispatcher is the slice of the dispatch service the HTTP layer needs.
type Dispatcher interface {
	Send(ctx context.Context, req service.SendRequest) (*service.SendResult, error)
}

// MessageHandler exposes the dispatch entry point and the ledger reads.
type MessageHandler struct {
	Dispatch Dispatcher
	Messages repository.MessageRepositoryInterface
	Events   repository.MessageEventRepositoryInterface
	Logger   *zap.Logger
}

// SendMessage handles POST /messages/send. Policy blocks come back as a normal
// 200 with ok=false so calling code can tell "blocked" from "broken".
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req service.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.TenantID == "" || req.ContactID == "" || req.Channel == "" || req.TemplateVersionID == "" {
		http.Error(w, "tenant_id, contact_id, channel, and template_version_id are required", http.StatusBadRequest)
		return
	}

	result, err := h.Dispatch.Send(r.Context(), req)
	if err != nil {
		var validationErr *apperrors.ValidationError
		var notFoundErr *apperrors.NotFoundError
		var providerErr *apperrors.ProviderError
		switch {
		case errors.As(err, &validationErr):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.As(err, &notFoundErr):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.As(err, &providerErr):
			// The failed message is already in the ledger; hand the caller the
			// discriminated result alongside the gateway status.
			writeJSON(w, http.StatusBadGateway, result)
		default:
			h.Logger.Error("send failed", zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetMessage handles GET /messages/{id}.
func (h *MessageHandler) GetMessage(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		http.Error(w, "tenant_id is required", http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "id")

	msg, err := h.Messages.GetByID(r.Context(), tenantID, id)
	if err != nil {
		http.Error(w, "failed to fetch message: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if msg == nil {
		http.Error(w, "message not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// ListMessageEvents handles GET /messages/{id}/events — the audit trail.
func (h *MessageHandler) ListMessageEvents(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		http.Error(w, "tenant_id is required", http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "id")

	eventList, err := h.Events.ListByMessage(r.Context(), tenantID, id)
	if err != nil {
		http.Error(w, "failed to fetch events: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": eventList})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
