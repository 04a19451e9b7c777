// Package ai generates assistant replies through interchangeable model providers.
package ai

import (
	"errors"
	"time"

	"github.com/shankh-ai/shankh/backend/internal/model/chat"
	"github.com/shankh-ai/shankh/backend/internal/model/knowledge"
	"github.com/shankh-ai/shankh/backend/internal/model/language"
	"github.com/shankh-ai/shankh/backend/internal/model/market"
	"github.com/shankh-ai/shankh/backend/internal/service/fallback"
)

var ErrEmptyReply = errors.New("model returned an empty reply")

// Request carries everything a provider needs for one generation.
type Request struct {
	SessionID string
	Query     string
	Language  language.Profile
	Passages  []knowledge.Passage
	Quotes    []market.Quote
	// History holds earlier turns, oldest first, without the current query.
	History []chat.Turn
}

// Reply is the parsed model output.
type Reply struct {
	Text      string
	Citations []knowledge.Citation
	FollowUps []string
	Language  string
	Provider  string
}

// Provider is a generation backend usable by the fallback router.
type Provider = fallback.Provider[*Request, *Reply]

// Router tries generation providers in order.
type Router = fallback.Router[*Request, *Reply]

// NewRouter builds a generation router with a per-attempt timeout.
func NewRouter(timeout time.Duration, providers ...Provider) *Router {
	return fallback.New[*Request, *Reply](fallback.Generation, timeout, providers...)
}
