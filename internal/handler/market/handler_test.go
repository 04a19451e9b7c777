package market

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/shankh-ai/shankh/backend/internal/model/market"
)

type fakeSource struct {
	quotes []market.Quote
	err    error
}

func (f fakeSource) Indices(ctx context.Context) ([]market.Quote, error) {
	return f.quotes, f.err
}

func TestIndices(t *testing.T) {
	cases := []struct {
		name   string
		source IndexSource
		status int
		want   string
	}{
		{"ok", fakeSource{quotes: []market.Quote{{Symbol: "NIFTY", Price: 24500}}}, http.StatusOK, `"symbol":"NIFTY"`},
		{"upstream down", fakeSource{err: errors.New("connection refused")}, http.StatusBadGateway, "market data unavailable"},
		{"disabled", nil, http.StatusServiceUnavailable, "disabled"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			New(tc.source).RegisterRoutes(r)

			req := httptest.NewRequest(http.MethodGet, "/market/indices", nil)
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			if !strings.Contains(rr.Body.String(), tc.want) {
				t.Fatalf("body %q missing %q", rr.Body.String(), tc.want)
			}
		})
	}
}
