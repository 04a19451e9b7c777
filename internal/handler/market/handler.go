package market

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shankh-ai/shankh/backend/internal/model/market"
	"github.com/shankh-ai/shankh/backend/pkg/utils"
)

// IndexSource returns headline index quotes; *market.Client in the service
// package satisfies it.
type IndexSource interface {
	Indices(ctx context.Context) ([]market.Quote, error)
}

// Handler proxies market index lookups.
type Handler struct {
	source IndexSource
}

func New(source IndexSource) *Handler {
	return &Handler{source: source}
}

// RegisterRoutes 注册行情路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/market/indices", h.handleIndices)
}

func (h *Handler) handleIndices(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "market data disabled")
		return
	}

	quotes, err := h.source.Indices(r.Context())
	if err != nil {
		log.Printf("[market] indices lookup failed: %v", err)
		utils.RespondError(w, http.StatusBadGateway, "market data unavailable")
		return
	}
	if quotes == nil {
		quotes = []market.Quote{}
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"indices": quotes})
}
