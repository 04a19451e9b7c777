package stream

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shankh-ai/shankh/backend/internal/handler/httperr"
	chatservice "github.com/shankh-ai/shankh/backend/internal/service/chat"
	"github.com/shankh-ai/shankh/backend/internal/service/delivery"
	"github.com/shankh-ai/shankh/backend/pkg/utils"
)

const defaultHeartbeat = 15 * time.Second

// Joiner registers a live connection for a session; *delivery.Hub satisfies it.
type Joiner interface {
	Join(conn delivery.Conn, sessionID string) (leave func())
}

// Handler subscribes clients to session pushes via Server-Sent Events
type Handler struct {
	hub       Joiner
	heartbeat time.Duration
}

// New creates a new stream handler
func New(hub Joiner, heartbeat time.Duration) *Handler {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &Handler{hub: hub, heartbeat: heartbeat}
}

// RegisterRoutes 注册SSE订阅路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", h.handleSubscribe)
}

// handleSubscribe keeps the response open and writes every envelope pushed to
// the session until the client goes away.
func (h *Handler) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := chatservice.ValidateID(sessionID); err != nil {
		httperr.Write(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)

	conn := delivery.NewSSEConn(8)
	defer conn.Close()
	leave := h.hub.Join(conn, sessionID)
	defer leave()

	ctx := r.Context()
	log.Printf("[sse] opening stream for session=%s", sessionID)

	connected := delivery.NewEnvelope(delivery.TypeConnected, sessionID, map[string]any{"sessionId": sessionID})
	if err := utils.SendSSEEvent(w, flusher, connected.Type, connected); err != nil {
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[sse] closing stream for session=%s", sessionID)
			return
		case env := <-conn.Events():
			if err := utils.SendSSEEvent(w, flusher, env.Type, env); err != nil {
				log.Printf("[sse] write failed session=%s: %v", sessionID, err)
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return
			}
		}
	}
}
