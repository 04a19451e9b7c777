// Package turn coordinates one chat turn: context gathering, generation,
// session memory, speech synthesis and delivery.
package turn

import (
	"errors"
	"time"

	"github.com/shankh-ai/shankh/backend/internal/model/knowledge"
	"github.com/shankh-ai/shankh/backend/internal/model/market"
	speechmodel "github.com/shankh-ai/shankh/backend/internal/model/speech"
)

var (
	ErrEmptyInput = errors.New("turn: empty input")
	// ErrSessionStore aborts a turn before any external call is made.
	ErrSessionStore = errors.New("turn: session store unavailable")
	// ErrGenerationFailed wraps the aggregate of every generation provider's error.
	ErrGenerationFailed    = errors.New("turn: generation failed")
	ErrTranscriptionFailed = errors.New("turn: transcription failed")
)

const (
	StatusCompleted            = "completed"
	StatusConfirmationRequired = "confirmation_required"
)

// Soft warnings attached to a completed turn.
const (
	WarningRetrieval = "retrieval unavailable"
	WarningMarket    = "market data unavailable"
)

// Result is returned to the caller and mirrored to live listeners.
type Result struct {
	SessionID  string                  `json:"sessionId"`
	TurnID     string                  `json:"turnId,omitempty"`
	Status     string                  `json:"status"`
	Query      string                  `json:"query"`
	Text       string                  `json:"text,omitempty"`
	Citations  []knowledge.Citation    `json:"citations"`
	FollowUps  []string                `json:"followUps,omitempty"`
	Language   string                  `json:"language"`
	Quotes     []market.Quote          `json:"quotes,omitempty"`
	Audio      *speechmodel.Artifact   `json:"audio,omitempty"`
	AudioURL   string                  `json:"audioUrl,omitempty"`
	Transcript *speechmodel.Transcript `json:"transcript,omitempty"`
	Provider   string                  `json:"provider,omitempty"`
	Warnings   []string                `json:"warnings,omitempty"`
	CreatedAt  time.Time               `json:"createdAt"`
}
