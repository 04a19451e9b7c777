// Package chat keeps bounded, expiring conversation history per session.
package chat

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/shankh-ai/shankh/backend/internal/model/chat"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidSession  = errors.New("invalid session id")
	ErrStoreClosed     = errors.New("session store closed")
)

// Store is the only owner of session history. Appends to one session are
// serialized; different sessions never block each other.
type Store interface {
	// Create mints a new session with a random identifier.
	Create(ctx context.Context) (chat.Session, error)
	// Ensure returns the session, creating it when missing, and refreshes its expiry.
	Ensure(ctx context.Context, sessionID string) (chat.Session, error)
	Get(ctx context.Context, sessionID string) (chat.Session, error)
	// Append stores turn and evicts the oldest turns beyond the configured maximum.
	Append(ctx context.Context, sessionID string, turn chat.Turn) (chat.Turn, error)
	History(ctx context.Context, sessionID string) ([]chat.Turn, error)
	Clear(ctx context.Context, sessionID string) error
	// Acquire blocks until the caller holds the session's turn slot. Slots are
	// granted in request order.
	Acquire(ctx context.Context, sessionID string) (release func(), err error)
	Close() error
}

// Options 控制历史长度与过期时间。
type Options struct {
	MaxTurns int
	TTL      time.Duration
}

const (
	defaultMaxTurns = 20
	defaultTTL      = 30 * time.Minute
)

func (o Options) normalized() Options {
	if o.MaxTurns <= 0 {
		o.MaxTurns = defaultMaxTurns
	}
	if o.TTL <= 0 {
		o.TTL = defaultTTL
	}
	return o
}

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:\-]{0,127}$`)

// ValidateID rejects identifiers that are empty, too long or contain path characters.
func ValidateID(sessionID string) error {
	if !sessionIDPattern.MatchString(sessionID) {
		return ErrInvalidSession
	}
	return nil
}

// prepareTurn fills the identifier and timestamp of a new turn.
func prepareTurn(turn chat.Turn, now time.Time) chat.Turn {
	out := turn.Clone()
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = now
	}
	return out
}

// trimHistory keeps the most recent max turns.
func trimHistory(turns []chat.Turn, max int) []chat.Turn {
	if len(turns) <= max {
		return turns
	}
	kept := make([]chat.Turn, max)
	copy(kept, turns[len(turns)-max:])
	return kept
}

func cloneTurns(turns []chat.Turn) []chat.Turn {
	out := make([]chat.Turn, len(turns))
	for i, t := range turns {
		out[i] = t.Clone()
	}
	return out
}
