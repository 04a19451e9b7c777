package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shankh-ai/shankh/backend/internal/handler/httperr"
	chatmodel "github.com/shankh-ai/shankh/backend/internal/model/chat"
	chatservice "github.com/shankh-ai/shankh/backend/internal/service/chat"
	"github.com/shankh-ai/shankh/backend/internal/service/turn"
	"github.com/shankh-ai/shankh/backend/pkg/utils"
)

// TurnRunner answers text turns; *turn.Orchestrator satisfies it.
type TurnRunner interface {
	HandleTurn(ctx context.Context, sessionID, text, languageHint string) (*turn.Result, error)
}

// Handler 会话与文本对话的HTTP处理器
type Handler struct {
	sessions chatservice.Store
	turns    TurnRunner
}

// New 创建聊天处理器
func New(sessions chatservice.Store, turns TurnRunner) *Handler {
	return &Handler{
		sessions: sessions,
		turns:    turns,
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Get("/session/{sessionID}/history", h.handleHistory)
	r.Delete("/session/{sessionID}", h.handleClear)
	r.Post("/session/{sessionID}/turns", h.handleTurn)
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Create(r.Context())
	if err != nil {
		httperr.Write(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, session)
}

type historyResponse struct {
	SessionID string           `json:"sessionId"`
	Turns     []chatmodel.Turn `json:"turns"`
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := chatservice.ValidateID(sessionID); err != nil {
		httperr.Write(w, err)
		return
	}

	turns, err := h.sessions.History(r.Context(), sessionID)
	if err != nil {
		httperr.Write(w, err)
		return
	}
	if turns == nil {
		turns = []chatmodel.Turn{}
	}
	utils.RespondJSON(w, http.StatusOK, historyResponse{SessionID: sessionID, Turns: turns})
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := chatservice.ValidateID(sessionID); err != nil {
		httperr.Write(w, err)
		return
	}
	if err := h.sessions.Clear(r.Context(), sessionID); err != nil {
		httperr.Write(w, err)
		return
	}
	utils.RespondNoContent(w)
}

// handleTurn 处理一轮文本对话
func (h *Handler) handleTurn(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text     string `json:"text"`
		Language string `json:"language"`
	}

	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.turns.HandleTurn(r.Context(), chi.URLParam(r, "sessionID"), payload.Text, payload.Language)
	if err != nil {
		httperr.Write(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, result)
}
