package speech

import (
	"context"
	"errors"
	"testing"
	"time"

	speechmodel "github.com/shankh-ai/shankh/backend/internal/model/speech"
	"github.com/shankh-ai/shankh/backend/internal/service/fallback"
)

func fixedASR(name string, resp *speechmodel.ASRResponse, err error) ASRProvider {
	return fallback.Func(name, func(ctx context.Context, req *speechmodel.ASRRequest) (*speechmodel.ASRResponse, error) {
		if err != nil {
			return nil, err
		}
		out := *resp
		out.Provider = name
		return &out, nil
	})
}

func TestTranscribeFlagsLowConfidence(t *testing.T) {
	cases := []struct {
		name       string
		confidence float64
		confirm    bool
	}{
		{name: "confident", confidence: 0.9, confirm: false},
		{name: "at floor", confidence: 0.6, confirm: false},
		{name: "below floor", confidence: 0.4, confirm: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := NewASRRouter(time.Second, fixedASR("rag", &speechmodel.ASRResponse{Text: " what is SIP ", Language: "en", Confidence: tc.confidence}, nil))
			got, err := NewTranscriber(router, 0.6).Transcribe(context.Background(), &speechmodel.ASRRequest{AudioData: []byte{1}})
			if err != nil {
				t.Fatalf("Transcribe err: %v", err)
			}
			if got.Text != "what is SIP" {
				t.Fatalf("text = %q", got.Text)
			}
			if got.NeedsConfirmation != tc.confirm {
				t.Fatalf("NeedsConfirmation = %v, want %v", got.NeedsConfirmation, tc.confirm)
			}
		})
	}
}

func TestTranscribeResolvesLanguage(t *testing.T) {
	cases := []struct {
		name     string
		provider string
		hint     string
		text     string
		want     string
	}{
		{name: "provider locale", provider: "hi-IN", text: "hello", want: "hi"},
		{name: "request hint", hint: "ta-IN", text: "hello", want: "ta"},
		{name: "script detection", text: "एफडी क्या है", want: "hi"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := NewASRRouter(time.Second, fixedASR("rag", &speechmodel.ASRResponse{Text: tc.text, Language: tc.provider, Confidence: 0.9}, nil))
			got, err := NewTranscriber(router, 0.6).Transcribe(context.Background(), &speechmodel.ASRRequest{AudioData: []byte{1}, Language: tc.hint})
			if err != nil {
				t.Fatalf("Transcribe err: %v", err)
			}
			if got.Language != tc.want {
				t.Fatalf("language = %q, want %q", got.Language, tc.want)
			}
		})
	}
}

func TestTranscribeFallsBackAndRejectsEmpty(t *testing.T) {
	router := NewASRRouter(time.Second,
		fixedASR("rag", nil, errors.New("service down")),
		fixedASR("openai", &speechmodel.ASRResponse{Text: "   ", Confidence: 0.9}, nil),
	)
	_, err := NewTranscriber(router, 0.6).Transcribe(context.Background(), &speechmodel.ASRRequest{AudioData: []byte{1}})
	if !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("expected ErrEmptyTranscript, got %v", err)
	}

	router = NewASRRouter(time.Second,
		fixedASR("rag", nil, errors.New("service down")),
		fixedASR("openai", nil, errors.New("bad key")),
	)
	_, err = NewTranscriber(router, 0.6).Transcribe(context.Background(), &speechmodel.ASRRequest{AudioData: []byte{1}})
	var agg *fallback.AggregateError
	if !errors.As(err, &agg) || len(agg.Attempts) != 2 {
		t.Fatalf("expected aggregate error with two attempts, got %v", err)
	}
}
