package chat

import (
	"time"

	"github.com/shankh-ai/shankh/backend/internal/model/knowledge"
)

// Role 标识一条记录的发言方。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one immutable entry in a session history.
type Turn struct {
	ID        string               `json:"id"`
	Role      Role                 `json:"role"`
	Content   string               `json:"content"`
	Language  string               `json:"language,omitempty"`
	Citations []knowledge.Citation `json:"citations,omitempty"`
	// Symbols lists the market symbols detected for this turn; quote values are not kept.
	Symbols   []string  `json:"symbols,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Clone returns a deep copy so callers cannot mutate stored history.
func (t Turn) Clone() Turn {
	out := t
	if t.Citations != nil {
		out.Citations = append([]knowledge.Citation(nil), t.Citations...)
	}
	if t.Symbols != nil {
		out.Symbols = append([]string(nil), t.Symbols...)
	}
	return out
}
