package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	speechmodel "github.com/shankh-ai/shankh/backend/internal/model/speech"
	"github.com/shankh-ai/shankh/backend/pkg/audio"
)

// ragDefaultConfidence is what the transcription service itself assumes when
// its engine reports no score.
const ragDefaultConfidence = 0.85

// RAGTranscriber posts recordings to the RAG service's /transcribe endpoint.
type RAGTranscriber struct {
	baseURL    string
	httpClient *http.Client
}

func NewRAGTranscriber(baseURL string, httpClient *http.Client) *RAGTranscriber {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &RAGTranscriber{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

func (p *RAGTranscriber) Name() string { return "rag" }

type ragTranscribeResponse struct {
	Text       string   `json:"text"`
	Language   string   `json:"language"`
	Confidence *float64 `json:"confidence"`
	Segments   []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func (p *RAGTranscriber) Invoke(ctx context.Context, req *speechmodel.ASRRequest) (*speechmodel.ASRResponse, error) {
	if len(req.AudioData) == 0 {
		return nil, audio.ErrEmpty
	}

	format := audio.Normalize(req.Format)
	if format == "" {
		format = audio.Sniff(req.AudioData)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("audio", "speech."+fileExtension(format))
	if err != nil {
		return nil, fmt.Errorf("build transcribe form: %w", err)
	}
	if _, err := part.Write(req.AudioData); err != nil {
		return nil, fmt.Errorf("build transcribe form: %w", err)
	}
	if req.Language != "" {
		_ = mw.WriteField("language", req.Language)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build transcribe form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/transcribe", &body)
	if err != nil {
		return nil, fmt.Errorf("build transcribe request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("transcribe request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("transcribe status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded ragTranscribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode transcribe response: %w", err)
	}

	text := strings.TrimSpace(decoded.Text)
	if text == "" && len(decoded.Segments) > 0 {
		parts := make([]string, 0, len(decoded.Segments))
		for _, s := range decoded.Segments {
			if t := strings.TrimSpace(s.Text); t != "" {
				parts = append(parts, t)
			}
		}
		text = strings.Join(parts, " ")
	}

	confidence := ragDefaultConfidence
	if decoded.Confidence != nil {
		confidence = *decoded.Confidence
	}
	lang := decoded.Language
	if lang == "" {
		lang = req.Language
	}

	var duration int64
	if n := len(decoded.Segments); n > 0 {
		duration = int64(decoded.Segments[n-1].End * 1000)
	}

	return &speechmodel.ASRResponse{
		SessionID:  req.SessionID,
		Text:       text,
		Language:   lang,
		Confidence: confidence,
		Duration:   duration,
		Provider:   p.Name(),
		CreatedAt:  time.Now(),
	}, nil
}
