// Package httperr maps service errors to HTTP responses.
package httperr

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/shankh-ai/shankh/backend/internal/service/artifact"
	chatservice "github.com/shankh-ai/shankh/backend/internal/service/chat"
	"github.com/shankh-ai/shankh/backend/internal/service/fallback"
	"github.com/shankh-ai/shankh/backend/internal/service/turn"
	"github.com/shankh-ai/shankh/backend/pkg/utils"
)

// Attempt is one provider failure reported to the client.
type Attempt struct {
	Provider string `json:"provider"`
	Error    string `json:"error"`
}

// Body is the JSON error payload.
type Body struct {
	Error    string    `json:"error"`
	Attempts []Attempt `json:"attempts,omitempty"`
}

// Status returns the HTTP status for err.
func Status(err error) int {
	switch {
	case errors.Is(err, turn.ErrEmptyInput), errors.Is(err, chatservice.ErrInvalidSession):
		return http.StatusBadRequest
	case errors.Is(err, chatservice.ErrSessionNotFound), errors.Is(err, artifact.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, artifact.ErrCorrupt):
		return http.StatusUnprocessableEntity
	case errors.Is(err, turn.ErrSessionStore), errors.Is(err, chatservice.ErrStoreClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, turn.ErrGenerationFailed), errors.Is(err, turn.ErrTranscriptionFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Describe builds the response body, listing every provider attempt when err
// carries a fallback aggregate.
func Describe(err error) Body {
	body := Body{Error: err.Error()}
	var agg *fallback.AggregateError
	if errors.As(err, &agg) {
		for _, a := range agg.Attempts {
			body.Attempts = append(body.Attempts, Attempt{Provider: a.Provider, Error: a.Err.Error()})
		}
	}
	return body
}

// Write responds with the status and body for err.
func Write(w http.ResponseWriter, err error) {
	status := Status(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[http] request failed status=%d: %v", status, err)
	}
	utils.RespondJSON(w, status, Describe(err))
}
