package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"gwi.com/pixel-chat/internal/apperr"
	"gwi.com/pixel-chat/internal/core"
	"gwi.com/pixel-chat/internal/llm"
	"gwi.com/pixel-chat/internal/logger"
	"gwi.com/pixel-chat/internal/store"
)

const defaultRecentCount = 10

type APIHandler struct {
	chatService *core.ChatService
}

func NewAPIHandler(cs *core.ChatService) *APIHandler {
	return &APIHandler{chatService: cs}
}

type errorBody struct {
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
	Code    int         `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

// statusFor maps an error kind to the HTTP status reported to the client.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindPrecondition, apperr.KindParse:
		return http.StatusBadRequest
	case apperr.KindInvalidCredential:
		return http.StatusUnauthorized
	case apperr.KindNetwork, apperr.KindRemoteRejected, apperr.KindMalformed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	body := errorBody{Kind: apperr.KindOf(err), Message: apperr.MessageOf(err)}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		body.Code = ae.Code
	}
	writeJSON(w, statusFor(body.Kind), map[string]errorBody{"error": body})
}

func (h *APIHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.chatService.Status())
}

func (h *APIHandler) ModelsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"models":  llm.KnownModels,
		"current": h.chatService.Status().Model,
	})
}

type messagesResponse struct {
	ID       string          `json:"id,omitempty"`
	Title    string          `json:"title"`
	Messages []store.Message `json:"messages"`
}

func (h *APIHandler) GetMessagesHandler(w http.ResponseWriter, r *http.Request) {
	status := h.chatService.Status()
	writeJSON(w, http.StatusOK, messagesResponse{
		ID:       status.CurrentID,
		Title:    status.Title,
		Messages: h.chatService.CurrentMessages(),
	})
}

type PostMessageRequest struct {
	Content string `json:"content"`
}

type PostMessageResponse struct {
	ID    string        `json:"id"`
	Reply store.Message `json:"reply"`
}

func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Precondition("invalid request body: "+err.Error()))
		return
	}

	reply, err := h.chatService.Submit(r.Context(), req.Content)
	if err != nil {
		logger.Warn("Submit failed", "kind", apperr.KindOf(err), "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, PostMessageResponse{
		ID:    h.chatService.Status().CurrentID,
		Reply: reply,
	})
}

func (h *APIHandler) NewSessionHandler(w http.ResponseWriter, r *http.Request) {
	h.chatService.NewSession()
	w.WriteHeader(http.StatusNoContent)
}

// LoadSessionHandler answers 204 whether or not the id exists; an unknown id
// leaves the session unchanged.
func (h *APIHandler) LoadSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	if !h.chatService.LoadSession(id) {
		logger.Debug("Load requested for unknown conversation", "id", id)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) DeleteCurrentHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.chatService.DeleteCurrent(); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) ListConversationsHandler(w http.ResponseWriter, r *http.Request) {
	n := defaultRecentCount
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, apperr.Precondition("n must be an integer"))
			return
		}
		n = parsed
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversations": h.chatService.ListRecent(n),
	})
}

func (h *APIHandler) GetPreferencesHandler(w http.ResponseWriter, r *http.Request) {
	snapshot := h.chatService.Preferences().Snapshot()
	if credential, ok := snapshot[store.KeyCredential].(string); ok {
		snapshot[store.KeyCredential] = RedactCredential(credential)
	}
	writeJSON(w, http.StatusOK, snapshot)
}

type PutPreferenceRequest struct {
	Value any `json:"value"`
}

func (h *APIHandler) PutPreferenceHandler(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req PutPreferenceRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeError(w, apperr.Precondition("invalid request body: "+err.Error()))
		return
	}

	if err := h.chatService.UpdatePreference(key, req.Value); err != nil {
		logger.Warn("Preference update failed", "key", key, "error", err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RedactCredential keeps only enough of a key to recognize it.
func RedactCredential(credential string) string {
	if credential == "" {
		return ""
	}
	if len(credential) <= 8 {
		return strings.Repeat("*", len(credential))
	}
	return credential[:3] + "..." + credential[len(credential)-4:]
}
