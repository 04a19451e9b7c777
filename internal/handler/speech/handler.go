package speech

import (
	"context"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/shankh-ai/shankh/backend/internal/handler/httperr"
	speechmodel "github.com/shankh-ai/shankh/backend/internal/model/speech"
	"github.com/shankh-ai/shankh/backend/internal/service/turn"
	"github.com/shankh-ai/shankh/backend/pkg/audio"
	"github.com/shankh-ai/shankh/backend/pkg/utils"
)

const maxUploadBytes = 32 << 20 // 32MB

// TurnRunner 抽象对话编排，便于测试与替换实现。*turn.Orchestrator satisfies it.
type TurnRunner interface {
	HandleTurn(ctx context.Context, sessionID, text, languageHint string) (*turn.Result, error)
	HandleAudioTurn(ctx context.Context, sessionID string, audioData []byte, format, languageHint string) (*turn.Result, error)
}

// ArtifactFetcher reads synthesized audio by handle.
type ArtifactFetcher interface {
	Fetch(ctx context.Context, handle string) (*speechmodel.Artifact, []byte, error)
}

// Handler 语音服务的HTTP处理器
type Handler struct {
	turns     TurnRunner
	artifacts ArtifactFetcher
}

// New 创建语音处理器
func New(turns TurnRunner, artifacts ArtifactFetcher) *Handler {
	return &Handler{
		turns:     turns,
		artifacts: artifacts,
	}
}

// RegisterRoutes 注册语音相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session/{sessionID}/audio", h.handleAudioTurn)
	r.Get("/audio/{handle}", h.handleFetchAudio)
}

// handleAudioTurn 处理一轮语音对话
func (h *Handler) handleAudioTurn(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read audio file")
		return
	}

	format := strings.TrimSpace(r.FormValue("format"))
	if format == "" {
		format = inferAudioFormat(header.Filename, data)
	}

	sessionID := chi.URLParam(r, "sessionID")
	log.Printf("[speech] audio turn session=%s format=%s bytes=%d", sessionID, format, len(data))

	result, err := h.turns.HandleAudioTurn(r.Context(), sessionID, data, format, r.FormValue("language"))
	if err != nil {
		httperr.Write(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, result)
}

// handleFetchAudio 按句柄返回合成音频
func (h *Handler) handleFetchAudio(w http.ResponseWriter, r *http.Request) {
	if h.artifacts == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "audio artifacts unavailable")
		return
	}

	art, data, err := h.artifacts.Fetch(r.Context(), chi.URLParam(r, "handle"))
	if err != nil {
		httperr.Write(w, err)
		return
	}

	contentType := art.ContentType
	if contentType == "" {
		contentType = audio.ContentType(art.Format)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.Printf("[speech] failed to write audio response: %v", err)
	}
}

// inferAudioFormat 从文件名或内容推断音频格式
func inferAudioFormat(filename string, data []byte) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp3":
		return "mp3"
	case ".wav":
		return "wav"
	case ".webm":
		return "webm"
	case ".ogg", ".opus":
		return "ogg"
	case ".m4a":
		return "m4a"
	case ".pcm":
		return "pcm"
	}
	if sniffed := audio.Sniff(data); sniffed != "" {
		return sniffed
	}
	return "wav"
}
