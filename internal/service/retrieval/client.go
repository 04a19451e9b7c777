// Package retrieval calls the document retrieval service.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shankh-ai/shankh/backend/internal/model/knowledge"
)

var ErrUnavailable = errors.New("retrieval service unavailable")

const (
	maxTopK        = 50
	defaultTimeout = 4 * time.Second
)

// Client talks to POST /retrieve.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient returns a client for the service at baseURL.
func NewClient(baseURL string, timeout time.Duration, httpClient *http.Client) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
		httpClient: httpClient,
	}
}

type retrieveRequest struct {
	Query     string  `json:"query"`
	K         int     `json:"k"`
	LangHint  string  `json:"lang_hint,omitempty"`
	Threshold float64 `json:"threshold"`
}

type retrieveResponse struct {
	Query            string           `json:"query"`
	Results          []documentResult `json:"results"`
	NumResults       int              `json:"num_results"`
	DetectedLanguage string           `json:"detected_language"`
	ProcessingTimeMS float64          `json:"processing_time_ms"`
}

type documentResult struct {
	ChunkID   int     `json:"chunk_id"`
	Filename  string  `json:"filename"`
	PageNum   int     `json:"page_num"`
	Text      string  `json:"text"`
	Excerpt   string  `json:"excerpt"`
	Score     float64 `json:"score"`
	CharStart int     `json:"char_start"`
	CharEnd   int     `json:"char_end"`
}

// Retrieve returns passages scoring at least threshold, best first as ranked
// by the service. The call is bounded by the client timeout.
func (c *Client) Retrieve(ctx context.Context, query string, topK int, threshold float64, languageHint string) ([]knowledge.Passage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if topK < 1 {
		topK = 1
	} else if topK > maxTopK {
		topK = maxTopK
	}
	if threshold < 0 {
		threshold = 0
	} else if threshold > 1 {
		threshold = 1
	}

	body, err := json.Marshal(retrieveRequest{Query: query, K: topK, LangHint: languageHint, Threshold: threshold})
	if err != nil {
		return nil, fmt.Errorf("encode retrieve request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/retrieve", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build retrieve request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded retrieveResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode retrieve response: %w", err)
	}

	passages := make([]knowledge.Passage, 0, len(decoded.Results))
	for _, r := range decoded.Results {
		if r.Score < threshold {
			continue
		}
		excerpt := r.Excerpt
		if excerpt == "" {
			excerpt = truncate(r.Text, 200)
		}
		passages = append(passages, knowledge.Passage{
			ChunkID:   r.ChunkID,
			Source:    r.Filename,
			Page:      r.PageNum,
			Text:      r.Text,
			Excerpt:   excerpt,
			Score:     r.Score,
			CharStart: r.CharStart,
			CharEnd:   r.CharEnd,
		})
	}
	return passages, nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
