package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shankh-ai/shankh/backend/internal/model/language"
	speechmodel "github.com/shankh-ai/shankh/backend/internal/model/speech"
	"github.com/shankh-ai/shankh/backend/internal/service/fallback"
)

var ErrEmptyTranscript = errors.New("speech: transcript is empty")

// ASRRouter tries transcription providers in order.
type ASRRouter = fallback.Router[*speechmodel.ASRRequest, *speechmodel.ASRResponse]

// ASRProvider is one transcription engine.
type ASRProvider = fallback.Provider[*speechmodel.ASRRequest, *speechmodel.ASRResponse]

// NewASRRouter builds the transcription router.
func NewASRRouter(timeout time.Duration, providers ...ASRProvider) *ASRRouter {
	return fallback.New(fallback.Transcription, timeout, providers...)
}

// Transcriber 在路由结果上做置信度判断与语言补全。
type Transcriber struct {
	router        *ASRRouter
	minConfidence float64
}

func NewTranscriber(router *ASRRouter, minConfidence float64) *Transcriber {
	return &Transcriber{router: router, minConfidence: minConfidence}
}

// MinConfidence returns the floor below which transcripts need confirmation.
func (t *Transcriber) MinConfidence() float64 {
	return t.minConfidence
}

// Transcribe returns the recognized text. Low-confidence results are returned
// with NeedsConfirmation set rather than discarded.
func (t *Transcriber) Transcribe(ctx context.Context, req *speechmodel.ASRRequest) (*speechmodel.Transcript, error) {
	resp, err := t.router.Invoke(ctx, req)
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil, fmt.Errorf("%w (provider %s)", ErrEmptyTranscript, resp.Provider)
	}

	lang := language.Normalize(resp.Language)
	if lang == "" {
		lang = language.Normalize(req.Language)
	}
	if lang == "" {
		lang = language.Detect(text)
	}

	return &speechmodel.Transcript{
		Text:              text,
		Language:          lang,
		Confidence:        resp.Confidence,
		NeedsConfirmation: resp.Confidence < t.minConfidence,
		Provider:          resp.Provider,
	}, nil
}
