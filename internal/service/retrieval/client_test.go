package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRetrieveMapsResults(t *testing.T) {
	var got retrieveRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/retrieve" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"query": "fixed deposit",
			"results": [
				{"chunk_id": 7, "filename": "151.pdf", "page_num": 4, "text": "A fixed deposit ...", "excerpt": "A fixed deposit", "score": 0.82, "char_start": 10, "char_end": 90},
				{"chunk_id": 9, "filename": "152.pdf", "page_num": 1, "text": "noise", "excerpt": "", "score": 0.1, "char_start": 0, "char_end": 5}
			],
			"num_results": 2,
			"detected_language": "en",
			"processing_time_ms": 12.5
		}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", time.Second, srv.Client())
	passages, err := client.Retrieve(context.Background(), " fixed deposit ", 80, 0.3, "en")
	if err != nil {
		t.Fatalf("Retrieve err: %v", err)
	}

	if got.Query != "fixed deposit" || got.K != maxTopK || got.LangHint != "en" || got.Threshold != 0.3 {
		t.Fatalf("unexpected request payload: %+v", got)
	}
	if len(passages) != 1 {
		t.Fatalf("expected 1 passage above threshold, got %d", len(passages))
	}
	p := passages[0]
	if p.Source != "151.pdf" || p.Page != 4 || p.ChunkID != 7 || p.Location() != "151.pdf p4" {
		t.Fatalf("unexpected passage: %+v", p)
	}
}

func TestRetrieveReportsServiceErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Service not ready"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, nil)
	if _, err := client.Retrieve(context.Background(), "loan", 3, 0.3, ""); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestRetrieveTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := NewClient(srv.URL, 20*time.Millisecond, nil)
	start := time.Now()
	_, err := client.Retrieve(context.Background(), "loan", 3, 0.3, "")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > time.Second {
		t.Fatal("retrieve did not honour its timeout")
	}
}

func TestRetrieveEmptyQuerySkipsCall(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", time.Second, nil)
	passages, err := client.Retrieve(context.Background(), "   ", 3, 0.3, "")
	if err != nil || passages != nil {
		t.Fatalf("expected no call for empty query, got %v, %v", passages, err)
	}
}
