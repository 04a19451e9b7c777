package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/openai/openai-go"

	"github.com/shankh-ai/shankh/backend/internal/model/language"
	speechmodel "github.com/shankh-ai/shankh/backend/internal/model/speech"
	"github.com/shankh-ai/shankh/backend/pkg/audio"
)

var openAIVoices = map[string]bool{
	"alloy": true, "ash": true, "ballad": true, "coral": true, "echo": true, "fable": true,
	"onyx": true, "nova": true, "sage": true, "shimmer": true, "verse": true,
}

// OpenAITTS synthesizes speech through the OpenAI audio API.
type OpenAITTS struct {
	client       openai.Client
	model        string
	defaultVoice string
}

func NewOpenAITTS(client openai.Client, model, defaultVoice string) *OpenAITTS {
	if defaultVoice == "" {
		defaultVoice = "alloy"
	}
	return &OpenAITTS{client: client, model: model, defaultVoice: defaultVoice}
}

func (p *OpenAITTS) Name() string { return "openai" }

func (p *OpenAITTS) Invoke(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}

	voice := strings.ToLower(strings.TrimSpace(req.VoiceFor(p.Name())))
	if !openAIVoices[voice] {
		voice = p.defaultVoice
	}

	format, responseFormat := audio.FormatMP3, openai.AudioSpeechNewParamsResponseFormatMP3
	switch audio.Normalize(req.Format) {
	case audio.FormatWAV:
		format, responseFormat = audio.FormatWAV, openai.AudioSpeechNewParamsResponseFormatWAV
	case audio.FormatPCM:
		format, responseFormat = audio.FormatPCM, openai.AudioSpeechNewParamsResponseFormatPCM
	}

	params := openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(p.model),
		Input:          req.Text,
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: responseFormat,
	}
	if req.Speed > 0 && req.Speed != 1.0 {
		params.Speed = openai.Float(float64(req.Speed))
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai speech: read body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("openai speech: %w", audio.ErrEmpty)
	}

	return &speechmodel.TTSResponse{
		SessionID: req.SessionID,
		AudioData: data,
		Format:    format,
		Provider:  p.Name(),
		RequestID: resp.Header.Get("X-Request-Id"),
		CreatedAt: time.Now(),
	}, nil
}

// OpenAIASR transcribes audio with the OpenAI transcription API.
type OpenAIASR struct {
	client openai.Client
	model  string
}

func NewOpenAIASR(client openai.Client, model string) *OpenAIASR {
	return &OpenAIASR{client: client, model: model}
}

func (p *OpenAIASR) Name() string { return "openai" }

func (p *OpenAIASR) Invoke(ctx context.Context, req *speechmodel.ASRRequest) (*speechmodel.ASRResponse, error) {
	if len(req.AudioData) == 0 {
		return nil, audio.ErrEmpty
	}

	format := audio.Normalize(req.Format)
	if format == "" {
		format = audio.Sniff(req.AudioData)
	}
	filename := "speech." + fileExtension(format)

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(req.AudioData), filename, audio.ContentType(format)),
		Model: openai.AudioModel(p.model),
	}
	lang := language.Normalize(req.Language)
	if lang != "" {
		params.Language = openai.String(lang)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai transcription: %w", err)
	}

	return &speechmodel.ASRResponse{
		SessionID:  req.SessionID,
		Text:       strings.TrimSpace(resp.Text),
		Language:   lang,
		Confidence: estimateASRConfidence(resp.Text),
		Provider:   p.Name(),
		CreatedAt:  time.Now(),
	}, nil
}

func fileExtension(format string) string {
	switch format {
	case audio.FormatOGG:
		return "ogg"
	case "":
		return "wav"
	default:
		return format
	}
}
