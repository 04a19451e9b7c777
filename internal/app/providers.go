// Package app assembles provider chains from configuration for the binaries.
package app

import (
	"context"
	"fmt"
	"log"

	"github.com/openai/openai-go"

	"github.com/shankh-ai/shankh/backend/internal/config"
	speechModel "github.com/shankh-ai/shankh/backend/internal/model/speech"
	"github.com/shankh-ai/shankh/backend/internal/service/ai"
	"github.com/shankh-ai/shankh/backend/internal/service/speech"
)

// GenerationProviders builds the configured generation providers in fallback
// order. Providers without credentials are skipped.
func GenerationProviders(ctx context.Context, cfg *config.Config) []ai.Provider {
	var providers []ai.Provider
	for _, name := range cfg.Generation.Providers {
		p, err := newGenerationProvider(ctx, cfg, name)
		if err != nil {
			log.Printf("warning: skipping generation provider %s: %v", name, err)
			continue
		}
		if p != nil {
			providers = append(providers, p)
			log.Printf("generation provider %s enabled", name)
		}
	}
	return providers
}

func newGenerationProvider(ctx context.Context, cfg *config.Config, name string) (ai.Provider, error) {
	gen := cfg.Generation
	switch name {
	case "ark":
		if !gen.Ark.Enabled() {
			return nil, nil
		}
		chatModel, err := gen.Ark.NewChatModel(ctx)
		if err != nil {
			return nil, err
		}
		return ai.NewArkProvider(ctx, chatModel)
	case "openai":
		if !gen.OpenAI.Enabled() {
			return nil, nil
		}
		return ai.NewOpenAIProvider(ai.NewOpenAIClient(gen.OpenAI.APIKey, gen.OpenAI.BaseURL), gen.OpenAI.Model), nil
	case "gemini":
		if !gen.Gemini.Enabled() {
			return nil, nil
		}
		client, err := ai.NewGeminiClient(ctx, gen.Gemini.APIKey, "")
		if err != nil {
			return nil, err
		}
		return ai.NewGeminiProvider(client, gen.Gemini.Model), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", name)
	}
}

// VolcengineConfig converts the speech settings for the Volcengine clients.
func VolcengineConfig(s config.SpeechConfig) *speechModel.SpeechConfig {
	return &speechModel.SpeechConfig{
		AppID:          s.AppID,
		AccessToken:    s.AccessToken,
		APIKey:         s.APIKey,
		Region:         s.Region,
		BaseURL:        s.BaseURL,
		ConcurrentMode: s.ConcurrentMode,
		ASRModel:       s.ASRModel,
		ASRLanguage:    s.ASRLanguage,
		TTSVoice:       s.TTSVoice,
		TTSSpeed:       s.TTSSpeed,
		TTSVolume:      s.TTSVolume,
		TTSLanguage:    s.TTSLanguage,
		Timeout:        s.Timeout,
	}
}

// SynthesisProviders builds the configured synthesis providers in fallback order.
func SynthesisProviders(cfg *config.Config, client openai.Client) []speech.TTSProvider {
	speechCfg := VolcengineConfig(cfg.Speech)
	var providers []speech.TTSProvider
	for _, name := range cfg.Speech.SynthesisProviders {
		switch name {
		case "volcengine":
			if cfg.Speech.Enabled {
				providers = append(providers, speech.NewVolcengineTTS(speechCfg))
			}
		case "openai":
			if cfg.Generation.OpenAI.Enabled() {
				providers = append(providers, speech.NewOpenAITTS(client, cfg.Generation.OpenAI.TTSModel, cfg.Generation.OpenAI.TTSVoice))
			}
		default:
			log.Printf("warning: unknown synthesis provider %q", name)
		}
	}
	return providers
}

// TranscriptionProviders builds the configured transcription providers in fallback order.
func TranscriptionProviders(cfg *config.Config, client openai.Client) []speech.ASRProvider {
	speechCfg := VolcengineConfig(cfg.Speech)
	var providers []speech.ASRProvider
	for _, name := range cfg.Speech.TranscriptionProviders {
		switch name {
		case "rag":
			if cfg.Retrieval.ServiceURL != "" {
				providers = append(providers, speech.NewRAGTranscriber(cfg.Retrieval.ServiceURL, nil))
			}
		case "volcengine":
			if cfg.Speech.Enabled {
				providers = append(providers, speech.NewVolcengineASR(speechCfg))
			}
		case "openai":
			if cfg.Generation.OpenAI.Enabled() {
				providers = append(providers, speech.NewOpenAIASR(client, cfg.Generation.OpenAI.ASRModel))
			}
		default:
			log.Printf("warning: unknown transcription provider %q", name)
		}
	}
	return providers
}
