package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shankh-ai/shankh/backend/internal/handler/chat"
	"github.com/shankh-ai/shankh/backend/internal/handler/language"
	"github.com/shankh-ai/shankh/backend/internal/handler/market"
	"github.com/shankh-ai/shankh/backend/internal/handler/speech"
	"github.com/shankh-ai/shankh/backend/internal/handler/stream"
	middlewarePkg "github.com/shankh-ai/shankh/backend/internal/middleware"
	languageModel "github.com/shankh-ai/shankh/backend/internal/model/language"
	chatService "github.com/shankh-ai/shankh/backend/internal/service/chat"
	"github.com/shankh-ai/shankh/backend/internal/service/delivery"
	"github.com/shankh-ai/shankh/backend/pkg/utils"
)

// Deps are the services exposed over HTTP. Artifacts and Market may be nil.
type Deps struct {
	Sessions  chatService.Store
	Turns     speech.TurnRunner
	Artifacts speech.ArtifactFetcher
	Hub       *delivery.Hub
	Languages languageModel.Store
	Market    market.IndexSource
	// Providers lists the configured provider names per capability, in fallback order.
	Providers map[string][]string
	// Heartbeat is the SSE keep-alive interval.
	Heartbeat time.Duration
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	// Create handlers
	chatHandler := chat.New(deps.Sessions, deps.Turns)
	speechHandler := speech.New(deps.Turns, deps.Artifacts)
	wsHandler := speech.NewWebSocketHandler(deps.Turns, deps.Hub)
	streamHandler := stream.New(deps.Hub, deps.Heartbeat)
	languageHandler := language.New(deps.Languages)
	marketHandler := market.New(deps.Market)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", handleHealth(deps.Providers))

		languageHandler.RegisterRoutes(api)
		marketHandler.RegisterRoutes(api)
		chatHandler.RegisterRoutes(api)
		speechHandler.RegisterRoutes(api)
		wsHandler.RegisterWebSocketRoutes(api)
		streamHandler.RegisterRoutes(api)
	})

	return r
}

// handleHealth 健康检查端点
func handleHealth(providers map[string][]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":    "healthy",
			"service":   "shankh",
			"providers": providers,
		})
	}
}
