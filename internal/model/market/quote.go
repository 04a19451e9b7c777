package market

import (
	"fmt"
	"time"
)

// Quote is a live market fact fetched for a single turn. It is never persisted.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name,omitempty"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"changePercent"`
	Currency      string    `json:"currency,omitempty"`
	FetchedAt     time.Time `json:"fetchedAt"`
}

// Summary renders the quote as a single context line for the prompt.
func (q Quote) Summary() string {
	name := q.Symbol
	if q.Name != "" {
		name = fmt.Sprintf("%s (%s)", q.Name, q.Symbol)
	}
	currency := q.Currency
	if currency == "" {
		currency = "INR"
	}
	return fmt.Sprintf("%s: %.2f %s, change %+.2f (%+.2f%%) as of %s",
		name, q.Price, currency, q.Change, q.ChangePercent, q.FetchedAt.UTC().Format(time.RFC3339))
}
