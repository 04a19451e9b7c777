package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/shankh-ai/shankh/backend/internal/handler/httperr"
	chatservice "github.com/shankh-ai/shankh/backend/internal/service/chat"
	"github.com/shankh-ai/shankh/backend/internal/service/delivery"
)

const (
	readWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	// maxBufferedAudio caps the audio a client may stream before isFinal.
	maxBufferedAudio = maxUploadBytes
	// pendingTurns bounds the turns queued behind the one in progress.
	pendingTurns = 4
)

// Joiner registers a live connection for a session; *delivery.Hub satisfies it.
type Joiner interface {
	Join(conn delivery.Conn, sessionID string) (leave func())
}

// WebSocketHandler WebSocket语音处理器。Results are never written directly:
// the orchestrator pushes them through the hub, which reaches this socket too.
type WebSocketHandler struct {
	turns    TurnRunner
	hub      Joiner
	upgrader websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(turns TurnRunner, hub Joiner) *WebSocketHandler {
	return &WebSocketHandler{
		turns: turns,
		hub:   hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterWebSocketRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/speech/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// AudioMessage 音频消息。AudioData is base64 in JSON.
type AudioMessage struct {
	AudioData  []byte `json:"audioData"`
	Format     string `json:"format"`
	Language   string `json:"language"`
	IsFinal    bool   `json:"isFinal"`
	ChunkIndex int    `json:"chunkIndex"`
}

// TextMessage 文本消息
type TextMessage struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// ConfigMessage 配置消息
type ConfigMessage struct {
	Language    string `json:"language"`
	AudioFormat string `json:"audioFormat"`
}

type connectionState struct {
	sessionID   string
	language    string
	audioFormat string
	buffer      bytes.Buffer
}

func newConnectionState(sessionID string) *connectionState {
	return &connectionState{sessionID: sessionID}
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := chatservice.ValidateID(sessionID); err != nil {
		httperr.Write(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[websocket] new connection for session: %s", sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := delivery.NewWSConn(conn)
	leave := h.hub.Join(out, sessionID)
	defer leave()

	conn.SetReadLimit(2 * maxBufferedAudio)
	conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readWait))
		return nil
	})

	go h.pingLoop(ctx, out)

	jobs := make(chan func(), pendingTurns)
	go func() {
		for job := range jobs {
			job()
		}
	}()
	defer close(jobs)

	state := newConnectionState(sessionID)
	h.send(ctx, out, delivery.NewEnvelope(delivery.TypeConnected, sessionID, map[string]any{
		"sessionId": sessionID,
	}))

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}

		conn.SetReadDeadline(time.Now().Add(readWait))

		if msg.SessionID != "" && msg.SessionID != sessionID {
			h.sendError(ctx, out, sessionID, "session mismatch")
			continue
		}

		job := h.handleMessage(ctx, out, state, &msg)
		if job == nil {
			continue
		}
		select {
		case jobs <- job:
		default:
			h.sendError(ctx, out, sessionID, "too many pending turns")
		}
	}
}

// handleMessage updates connection state and returns the turn to run, if any.
func (h *WebSocketHandler) handleMessage(ctx context.Context, out *delivery.WSConn, state *connectionState, msg *inboundMessage) func() {
	switch msg.Type {
	case "audio":
		return h.handleAudioMessage(ctx, out, state, msg.Data)
	case "text":
		return h.handleTextMessage(ctx, out, state, msg.Data)
	case "config":
		h.handleConfigMessage(ctx, out, state, msg.Data)
		return nil
	default:
		h.sendError(ctx, out, state.sessionID, "unsupported message type: "+msg.Type)
		return nil
	}
}

func (h *WebSocketHandler) handleAudioMessage(ctx context.Context, out *delivery.WSConn, state *connectionState, raw json.RawMessage) func() {
	var msg AudioMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.sendError(ctx, out, state.sessionID, "invalid audio payload")
		return nil
	}

	if state.buffer.Len()+len(msg.AudioData) > maxBufferedAudio {
		state.buffer.Reset()
		h.sendError(ctx, out, state.sessionID, "audio too large")
		return nil
	}
	if len(msg.AudioData) > 0 {
		state.buffer.Write(msg.AudioData)
	}
	if msg.Format != "" {
		state.audioFormat = msg.Format
	}
	if msg.Language != "" {
		state.language = msg.Language
	}
	if !msg.IsFinal {
		return nil
	}

	data := bytes.Clone(state.buffer.Bytes())
	state.buffer.Reset()
	if len(data) == 0 {
		return nil
	}

	sessionID, language := state.sessionID, state.language
	format := state.audioFormat
	if format == "" {
		format = inferAudioFormat("", data)
	}
	log.Printf("[websocket] audio turn session=%s format=%s bytes=%d", sessionID, format, len(data))

	return func() {
		// 断开连接不取消已接收的轮次，超时由编排器负责
		if _, err := h.turns.HandleAudioTurn(context.WithoutCancel(ctx), sessionID, data, format, language); err != nil {
			h.sendTurnError(ctx, out, sessionID, err)
		}
	}
}

func (h *WebSocketHandler) handleTextMessage(ctx context.Context, out *delivery.WSConn, state *connectionState, raw json.RawMessage) func() {
	var msg TextMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.sendError(ctx, out, state.sessionID, "invalid text payload")
		return nil
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}

	sessionID, language := state.sessionID, state.language
	if msg.Language != "" {
		language = msg.Language
	}
	return func() {
		if _, err := h.turns.HandleTurn(context.WithoutCancel(ctx), sessionID, text, language); err != nil {
			h.sendTurnError(ctx, out, sessionID, err)
		}
	}
}

func (h *WebSocketHandler) handleConfigMessage(ctx context.Context, out *delivery.WSConn, state *connectionState, raw json.RawMessage) {
	var cfg ConfigMessage
	if err := json.Unmarshal(raw, &cfg); err != nil {
		h.sendError(ctx, out, state.sessionID, "invalid config payload")
		return
	}

	applyConfig(state, cfg)

	log.Printf("[websocket] config applied session=%s language=%s format=%s", state.sessionID, state.language, state.audioFormat)

	h.send(ctx, out, delivery.NewEnvelope(delivery.TypeInfo, state.sessionID, map[string]any{
		"type":        "config",
		"language":    state.language,
		"audioFormat": state.audioFormat,
	}))
}

func applyConfig(state *connectionState, cfg ConfigMessage) {
	if cfg.Language != "" {
		state.language = cfg.Language
	}
	if cfg.AudioFormat != "" {
		state.audioFormat = cfg.AudioFormat
	}
}

func (h *WebSocketHandler) send(ctx context.Context, out *delivery.WSConn, env delivery.Envelope) {
	if err := out.Send(ctx, env); err != nil {
		log.Printf("[websocket] write %s failed: %v", env.Type, err)
	}
}

func (h *WebSocketHandler) sendError(ctx context.Context, out *delivery.WSConn, sessionID, message string) {
	h.send(ctx, out, delivery.NewEnvelope(delivery.TypeError, sessionID, httperr.Body{Error: message}))
}

// sendTurnError reports a failed turn to the submitting socket only.
func (h *WebSocketHandler) sendTurnError(ctx context.Context, out *delivery.WSConn, sessionID string, err error) {
	log.Printf("[websocket] turn failed session=%s: %v", sessionID, err)
	h.send(ctx, out, delivery.NewEnvelope(delivery.TypeError, sessionID, httperr.Describe(err)))
}

// pingLoop 定期发送ping消息
func (h *WebSocketHandler) pingLoop(ctx context.Context, out *delivery.WSConn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := out.Ping(); err != nil {
				return
			}
		}
	}
}
