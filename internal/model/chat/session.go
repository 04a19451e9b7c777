package chat

import "time"

// Session describes a conversation keyed by a client-held identifier.
type Session struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"createdAt"`
	LastActive time.Time `json:"lastActive"`
	ExpiresAt  time.Time `json:"expiresAt"`
	TurnCount  int       `json:"turnCount"`
}
