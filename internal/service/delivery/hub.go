// Package delivery fans finished turns out to every live connection joined to
// a session. Delivery is best-effort: a client that is not connected misses
// the push and relies on the synchronous response.
package delivery

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// Envelope types pushed to clients.
const (
	TypeConnected  = "connected"
	TypeTurnResult = "turn_result"
	TypeTranscript = "transcript"
	TypeInfo       = "info"
	TypeError      = "error"
)

var ErrClosed = errors.New("delivery: connection closed")

// Envelope is the wire shape shared by websocket and SSE clients.
type Envelope struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// NewEnvelope stamps an envelope with the current time.
func NewEnvelope(typ, sessionID string, data any) Envelope {
	return Envelope{Type: typ, SessionID: sessionID, Data: data, Timestamp: time.Now().UnixMilli()}
}

// Conn is one client connection able to receive envelopes.
type Conn interface {
	Send(ctx context.Context, env Envelope) error
}

type member struct {
	conn Conn
}

// Hub 按会话维护在线连接。
type Hub struct {
	mu          sync.RWMutex
	sessions    map[string]map[*member]struct{}
	sendTimeout time.Duration
}

func NewHub(sendTimeout time.Duration) *Hub {
	if sendTimeout <= 0 {
		sendTimeout = 5 * time.Second
	}
	return &Hub{
		sessions:    make(map[string]map[*member]struct{}),
		sendTimeout: sendTimeout,
	}
}

// Join registers conn for sessionID. The same session may have several
// connections, for example after a reconnect. Calling leave more than once
// is safe.
func (h *Hub) Join(conn Conn, sessionID string) (leave func()) {
	m := &member{conn: conn}

	h.mu.Lock()
	set, ok := h.sessions[sessionID]
	if !ok {
		set = make(map[*member]struct{})
		h.sessions[sessionID] = set
	}
	set[m] = struct{}{}
	n := len(set)
	h.mu.Unlock()

	log.Printf("[delivery] joined session=%s connections=%d", sessionID, n)

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(sessionID, m) })
	}
}

func (h *Hub) remove(sessionID string, m *member) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	delete(set, m)
	if len(set) == 0 {
		delete(h.sessions, sessionID)
	}
}

// Count returns the number of connections joined to sessionID.
func (h *Hub) Count(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// Push sends env to every connection joined to sessionID and returns how many
// accepted it. Connections that fail to accept are dropped from the session.
func (h *Hub) Push(ctx context.Context, sessionID string, env Envelope) int {
	h.mu.RLock()
	members := make([]*member, 0, len(h.sessions[sessionID]))
	for m := range h.sessions[sessionID] {
		members = append(members, m)
	}
	h.mu.RUnlock()

	if len(members) == 0 {
		return 0
	}
	if env.SessionID == "" {
		env.SessionID = sessionID
	}
	if env.Timestamp == 0 {
		env.Timestamp = time.Now().UnixMilli()
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered int
	)
	for _, m := range members {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sendCtx, cancel := context.WithTimeout(ctx, h.sendTimeout)
			defer cancel()

			if err := m.conn.Send(sendCtx, env); err != nil {
				log.Printf("[delivery] drop connection session=%s type=%s: %v", sessionID, env.Type, err)
				h.remove(sessionID, m)
				return
			}
			mu.Lock()
			delivered++
			mu.Unlock()
		}()
	}
	wg.Wait()
	return delivered
}
