// internal/handler/conversation_handler.go
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lumenhq/courier-backend/internal/repository"
)

type ConversationHandler struct {
	Conversations repository.ConversationRepositoryInterface
	Messages      repository.MessageRepositoryInterface
	Logger        *zap.Logger
}

// ListConversations handles GET /conversations?tenant_id=&contact_id=.
func (h *ConversationHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	contactID := r.URL.Query().Get("contact_id")
	if tenantID == "" || contactID == "" {
		http.Error(w, "tenant_id and contact_id are required", http.StatusBadRequest)
		return
	}

	conversations, err := h.Conversations.ListByContact(r.Context(), tenantID, contactID)
	if err != nil {
		http.Error(w, "failed to fetch conversations: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": conversations})
}

// ListConversationMessages handles GET /conversations/{id}/messages.
func (h *ConversationHandler) ListConversationMessages(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		http.Error(w, "tenant_id is required", http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "id")

	conv, err := h.Conversations.GetByID(r.Context(), tenantID, id)
	if err != nil {
		http.Error(w, "failed to fetch conversation: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if conv == nil {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	}

	messages, err := h.Messages.ListByConversation(r.Context(), tenantID, id)
	if err != nil {
		http.Error(w, "failed to fetch messages: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation": conv,
		"data":         messages,
	})
}
