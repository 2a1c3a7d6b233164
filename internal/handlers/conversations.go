package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"finrag/internal/contextutil"
	"finrag/internal/conversation"
)

// ConversationsHandler serves conversation history and clearing.
type ConversationsHandler struct {
	store *conversation.Store
}

// NewConversationsHandler creates a new ConversationsHandler.
func NewConversationsHandler(store *conversation.Store) *ConversationsHandler {
	return &ConversationsHandler{store: store}
}

// HistoryResponse is the JSON shape for a conversation's history.
type HistoryResponse struct {
	ConversationID string              `json:"conversation_id"`
	Messages       []conversation.Turn `json:"messages"`
	MessageCount   int                 `json:"message_count"`
}

// History returns the stored turns for a conversation.
func (h *ConversationsHandler) History(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	turns := h.store.History(id)
	if len(turns) == 0 {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}

	writeJSON(w, http.StatusOK, HistoryResponse{
		ConversationID: id,
		Messages:       turns,
		MessageCount:   len(turns),
	})
}

// Clear discards a conversation's history.
func (h *ConversationsHandler) Clear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)
	id := chi.URLParam(r, "id")

	if !h.store.Clear(id) {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}

	logger.InfoContext(ctx, "conversation cleared", "conversation_id", id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared", "conversation_id": id})
}
