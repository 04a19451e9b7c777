package language

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shankh-ai/shankh/backend/internal/model/language"
	"github.com/shankh-ai/shankh/backend/pkg/utils"
)

// Handler 语言列表的HTTP处理器
type Handler struct {
	languages language.Store
}

// New 创建语言处理器
func New(languages language.Store) *Handler {
	return &Handler{
		languages: languages,
	}
}

// RegisterRoutes 注册语言相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/languages", h.handleListLanguages)
}

func (h *Handler) handleListLanguages(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"default":   language.DefaultCode,
		"languages": h.languages.List(),
	})
}
