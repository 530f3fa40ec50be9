package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/manuscript-desk-poc/server/internal/agent/model"
	errx "github.com/manuscript-desk-poc/server/internal/core/error"
	logx "github.com/manuscript-desk-poc/server/pkg/logger"
)

const maxBodyBytes = 64 << 10

// Desk is the conversation service behind the HTTP API.
type Desk interface {
	StartConversation(ctx context.Context) (*model.Conversation, error)
	HandleMessage(ctx context.Context, conversationID, text string) (*model.TurnResult, error)
	Ask(ctx context.Context, query string) (*model.TurnResult, error)
	AskBatch(ctx context.Context, queries []string) (*model.BatchSummary, error)
	ReturnToBot(ctx context.Context, conversationID string) (*model.Conversation, error)
	EscalationSummary(ctx context.Context, conversationID string) (model.EscalationSummary, error)
	Conversation(ctx context.Context, conversationID string) (*model.Conversation, error)
	Stats() model.SystemStats
}

// Handler serves the desk over JSON.
type Handler struct {
	desk Desk
}

func NewHandler(desk Desk) *Handler {
	return &Handler{desk: desk}
}

type messageRequest struct {
	Message string `json:"message"`
}

type queryRequest struct {
	Query   string   `json:"query"`
	Queries []string `json:"queries"`
}

type conversationResponse struct {
	ConversationID string                    `json:"conversation_id"`
	State          model.State               `json:"state"`
	Context        model.ConversationContext `json:"context"`
	Messages       []model.Message           `json:"messages"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// CreateConversation handles POST /v1/conversations
func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.desk.StartConversation(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toConversationResponse(conv))
}

// GetConversation handles GET /v1/conversations/{id}
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.desk.Conversation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toConversationResponse(conv))
}

// PostMessage handles POST /v1/conversations/{id}/messages
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, r, errx.InvalidInput("message is required"))
		return
	}
	res, err := h.desk.HandleMessage(r.Context(), chi.URLParam(r, "id"), req.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetEscalation handles GET /v1/conversations/{id}/escalation
func (h *Handler) GetEscalation(w http.ResponseWriter, r *http.Request) {
	summary, err := h.desk.EscalationSummary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ReturnToBot handles POST /v1/conversations/{id}/return-to-bot
func (h *Handler) ReturnToBot(w http.ResponseWriter, r *http.Request) {
	conv, err := h.desk.ReturnToBot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toConversationResponse(conv))
}

// Query handles POST /v1/query. A "queries" array is processed as a batch.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Queries) > 0 {
		summary, err := h.desk.AskBatch(r.Context(), req.Queries)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, r, errx.InvalidInput("query is required"))
		return
	}
	res, err := h.desk.Ask(r.Context(), req.Query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Stats handles GET /v1/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.desk.Stats())
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func toConversationResponse(conv *model.Conversation) conversationResponse {
	msgs := conv.Messages
	if msgs == nil {
		msgs = []model.Message{}
	}
	return conversationResponse{
		ConversationID: conv.ID,
		State:          conv.Context.State(),
		Context:        conv.Context,
		Messages:       msgs,
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		logx.Debug().Err(err).Str("path", r.URL.Path).Msg("failed to decode request")
		writeError(w, r, errx.InvalidInput("invalid request body"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errx.StatusOf(err)
	ev := logx.Warn()
	if status >= http.StatusInternalServerError {
		ev = logx.Error()
	}
	ev.Err(err).Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
	writeJSON(w, status, errorResponse{Error: errx.MessageOf(err)})
}
