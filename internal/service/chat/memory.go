package chat

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shankh-ai/shankh/backend/internal/model/chat"
)

type memorySession struct {
	mu      sync.Mutex
	session chat.Session
	turns   []chat.Turn
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	opts Options
	now  func() time.Time
	seq  *sequencer

	mu       sync.RWMutex
	sessions map[string]*memorySession
	closed   bool
}

// NewMemoryStore bootstraps an in-memory store.
func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		opts:     opts.normalized(),
		now:      func() time.Time { return time.Now().UTC() },
		seq:      newSequencer(),
		sessions: make(map[string]*memorySession),
	}
}

// Create provisions an anonymous session.
func (s *MemoryStore) Create(ctx context.Context) (chat.Session, error) {
	return s.Ensure(ctx, uuid.NewString())
}

// Ensure returns the live session for sessionID, creating it if needed.
func (s *MemoryStore) Ensure(_ context.Context, sessionID string) (chat.Session, error) {
	if err := ValidateID(sessionID); err != nil {
		return chat.Session{}, err
	}

	entry, err := s.entry(sessionID, true)
	if err != nil {
		return chat.Session{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	s.touch(entry)
	return entry.session, nil
}

// Get retrieves a session and refreshes its expiry.
func (s *MemoryStore) Get(_ context.Context, sessionID string) (chat.Session, error) {
	entry, err := s.entry(sessionID, false)
	if err != nil {
		return chat.Session{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	s.touch(entry)
	return entry.session, nil
}

// Append adds turn to the session history, creating the session if needed.
func (s *MemoryStore) Append(_ context.Context, sessionID string, turn chat.Turn) (chat.Turn, error) {
	if err := ValidateID(sessionID); err != nil {
		return chat.Turn{}, err
	}

	entry, err := s.entry(sessionID, true)
	if err != nil {
		return chat.Turn{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	stored := prepareTurn(turn, s.now())
	entry.turns = trimHistory(append(entry.turns, stored), s.opts.MaxTurns)
	entry.session.TurnCount = len(entry.turns)
	s.touch(entry)

	return stored.Clone(), nil
}

// History returns a copy of the stored turns, oldest first.
func (s *MemoryStore) History(_ context.Context, sessionID string) ([]chat.Turn, error) {
	entry, err := s.entry(sessionID, false)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	s.touch(entry)
	return cloneTurns(entry.turns), nil
}

// Clear destroys the session.
func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

// Acquire grants the session's turn slot in FIFO order.
func (s *MemoryStore) Acquire(ctx context.Context, sessionID string) (func(), error) {
	if err := ValidateID(sessionID); err != nil {
		return nil, err
	}
	return s.seq.acquire(ctx, sessionID)
}

// Sweep removes expired sessions and reports how many were dropped.
func (s *MemoryStore) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.sessions {
		entry.mu.Lock()
		expired := !entry.session.ExpiresAt.After(now)
		entry.mu.Unlock()
		// sessions with a turn in flight stay until the turn finishes
		if expired && s.seq.pending(id) == 0 {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps expired sessions until ctx is cancelled.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				log.Printf("[session] expired %d session(s)", n)
			}
		}
	}
}

// Close drops every session; later calls fail with ErrStoreClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.sessions = make(map[string]*memorySession)
	return nil
}

func (s *MemoryStore) entry(sessionID string, create bool) (*memorySession, error) {
	now := s.now()

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	entry, ok := s.sessions[sessionID]
	s.mu.RUnlock()

	if ok && !s.expired(entry, now) {
		return entry, nil
	}
	if !create {
		return nil, ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	if existing, ok := s.sessions[sessionID]; ok && !s.expired(existing, now) {
		return existing, nil
	}

	entry = &memorySession{
		session: chat.Session{
			ID:         sessionID,
			CreatedAt:  now,
			LastActive: now,
			ExpiresAt:  now.Add(s.opts.TTL),
		},
		turns: make([]chat.Turn, 0, s.opts.MaxTurns),
	}
	s.sessions[sessionID] = entry
	return entry, nil
}

func (s *MemoryStore) expired(entry *memorySession, now time.Time) bool {
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return !entry.session.ExpiresAt.After(now)
}

// touch refreshes expiry; callers hold entry.mu.
func (s *MemoryStore) touch(entry *memorySession) {
	now := s.now()
	entry.session.LastActive = now
	entry.session.ExpiresAt = now.Add(s.opts.TTL)
}

var _ Store = (*MemoryStore)(nil)
