// Package market fetches live quotes for symbols detected in a turn.
package market

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/shankh-ai/shankh/backend/internal/model/market"
)

var ErrUnavailable = errors.New("market data unavailable")

// IndexSymbols are the indices served by GET /stock/indices.
var IndexSymbols = []string{"NIFTY", "SENSEX", "BANKNIFTY"}

// Client talks to the stock endpoints of the RAG service.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	now        func() time.Time
}

func NewClient(baseURL string, timeout time.Duration, httpClient *http.Client) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
		httpClient: httpClient,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Fetch returns quotes for symbols. Symbols the service could not price are
// omitted.
func (c *Client) Fetch(ctx context.Context, symbols []string) ([]market.Quote, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	payload, err := json.Marshal(map[string][]string{"symbols": symbols})
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPost, "/stock/multiple", payload)
}

// Indices returns the headline Indian market indices.
func (c *Client) Indices(ctx context.Context) ([]market.Quote, error) {
	return c.do(ctx, http.MethodGet, "/stock/indices", nil)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]market.Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrUnavailable, path, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return decodeQuotes(raw, c.now())
}

// rawQuote accepts the field spellings the stock service has used.
type rawQuote struct {
	Symbol        string   `json:"symbol"`
	Name          string   `json:"name"`
	CompanyName   string   `json:"company_name"`
	Price         *float64 `json:"price"`
	CurrentPrice  *float64 `json:"current_price"`
	Change        float64  `json:"change"`
	ChangePercent *float64 `json:"change_percent"`
	PercentChange *float64 `json:"percent_change"`
	Currency      string   `json:"currency"`
	Error         string   `json:"error"`
}

func (r rawQuote) toQuote(fallbackSymbol string, fetched time.Time) (market.Quote, bool) {
	price := firstOf(r.Price, r.CurrentPrice)
	if r.Error != "" || price == nil {
		return market.Quote{}, false
	}
	symbol := r.Symbol
	if symbol == "" {
		symbol = fallbackSymbol
	}
	name := r.Name
	if name == "" {
		name = r.CompanyName
	}
	q := market.Quote{
		Symbol:    strings.ToUpper(symbol),
		Name:      name,
		Price:     *price,
		Change:    r.Change,
		Currency:  r.Currency,
		FetchedAt: fetched,
	}
	if pct := firstOf(r.ChangePercent, r.PercentChange); pct != nil {
		q.ChangePercent = *pct
	}
	return q, q.Symbol != ""
}

func firstOf(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

// decodeQuotes handles a list of quotes, a map keyed by symbol, or either
// wrapped in {"results": ...}.
func decodeQuotes(raw []byte, fetched time.Time) ([]market.Quote, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrUnavailable)
	}

	switch raw[0] {
	case '[':
		var list []rawQuote
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("decode quotes: %w", err)
		}
		quotes := make([]market.Quote, 0, len(list))
		for _, r := range list {
			if q, ok := r.toQuote("", fetched); ok {
				quotes = append(quotes, q)
			}
		}
		return quotes, nil
	case '{':
		var wrapped struct {
			Results json.RawMessage `json:"results"`
		}
		if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Results) > 0 {
			return decodeQuotes(wrapped.Results, fetched)
		}

		var byKey map[string]*rawQuote
		if err := json.Unmarshal(raw, &byKey); err != nil {
			return nil, fmt.Errorf("decode quotes: %w", err)
		}
		keys := make([]string, 0, len(byKey))
		for k := range byKey {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		quotes := make([]market.Quote, 0, len(keys))
		for _, k := range keys {
			if byKey[k] == nil {
				continue
			}
			if q, ok := byKey[k].toQuote(k, fetched); ok {
				quotes = append(quotes, q)
			}
		}
		return quotes, nil
	default:
		return nil, fmt.Errorf("%w: unexpected response %.40q", ErrUnavailable, raw)
	}
}
