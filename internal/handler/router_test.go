package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	languageModel "github.com/shankh-ai/shankh/backend/internal/model/language"
	"github.com/shankh-ai/shankh/backend/internal/service/ai"
	chatService "github.com/shankh-ai/shankh/backend/internal/service/chat"
	"github.com/shankh-ai/shankh/backend/internal/service/delivery"
	"github.com/shankh-ai/shankh/backend/internal/service/fallback"
	"github.com/shankh-ai/shankh/backend/internal/service/turn"
)

type nopTurns struct{}

func (nopTurns) HandleTurn(ctx context.Context, sessionID, text, languageHint string) (*turn.Result, error) {
	return &turn.Result{SessionID: sessionID, Status: turn.StatusCompleted}, nil
}

func (nopTurns) HandleAudioTurn(ctx context.Context, sessionID string, audioData []byte, format, languageHint string) (*turn.Result, error) {
	return &turn.Result{SessionID: sessionID, Status: turn.StatusCompleted}, nil
}

func newTestRouter() http.Handler {
	return NewRouter(Deps{
		Sessions:  chatService.NewMemoryStore(chatService.Options{}),
		Turns:     nopTurns{},
		Hub:       delivery.NewHub(time.Second),
		Languages: languageModel.NewMemoryStore(languageModel.Seed()),
		Providers: map[string][]string{
			"generation":    {"ark", "openai", "gemini"},
			"synthesis":     {"volcengine", "openai"},
			"transcription": {"rag", "volcengine", "openai"},
		},
	})
}

func TestHealthListsProviders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body struct {
		Status    string              `json:"status"`
		Providers map[string][]string `json:"providers"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if want := []string{"rag", "volcengine", "openai"}; !reflect.DeepEqual(body.Providers["transcription"], want) {
		t.Fatalf("transcription providers = %v, want %v", body.Providers["transcription"], want)
	}
}

func TestRoutesMounted(t *testing.T) {
	cases := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/api/languages", http.StatusOK},
		{http.MethodPost, "/api/session", http.StatusCreated},
		{http.MethodGet, "/api/session/unknown/history", http.StatusNotFound},
		{http.MethodGet, "/api/market/indices", http.StatusServiceUnavailable},
		{http.MethodGet, "/api/audio/not-a-handle", http.StatusServiceUnavailable},
		{http.MethodOptions, "/api/session", http.StatusNoContent},
	}

	router := newTestRouter()
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != tc.status {
			t.Errorf("%s %s: expected %d, got %d", tc.method, tc.path, tc.status, rr.Code)
		}
	}
}

// nextSSEData returns the data line of the next event named name.
func nextSSEData(t *testing.T, reader *bufio.Reader, name string) string {
	t.Helper()
	var event, data string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read sse: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if event == name {
				return data
			}
			event, data = "", ""
		}
	}
}

func TestTurnResponseMatchesStreamedResult(t *testing.T) {
	sessions := chatService.NewMemoryStore(chatService.Options{MaxTurns: 20, TTL: time.Minute})
	defer sessions.Close()
	hub := delivery.NewHub(time.Second)
	languages := languageModel.NewMemoryStore(languageModel.Seed())

	generator := ai.NewRouter(time.Second, fallback.Func("echo", func(_ context.Context, req *ai.Request) (*ai.Reply, error) {
		return &ai.Reply{Text: "Answer to: " + req.Query, FollowUps: []string{"Tell me more"}, Provider: "echo"}, nil
	}))
	orchestrator := turn.New(turn.Deps{
		Sessions:  sessions,
		Generator: generator,
		Languages: languages,
		Publisher: hub,
	}, turn.Options{})

	srv := httptest.NewServer(NewRouter(Deps{
		Sessions:  sessions,
		Turns:     orchestrator,
		Hub:       hub,
		Languages: languages,
		Heartbeat: time.Hour,
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	streamReq, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/stream/s-wire", nil)
	stream, err := http.DefaultClient.Do(streamReq)
	if err != nil {
		t.Fatalf("subscribe err: %v", err)
	}
	defer stream.Body.Close()
	reader := bufio.NewReader(stream.Body)
	nextSSEData(t, reader, delivery.TypeConnected)

	resp, err := http.Post(srv.URL+"/api/session/s-wire/turns", "application/json", strings.NewReader(`{"text":"What is a SIP?","language":"en"}`))
	if err != nil {
		t.Fatalf("post turn err: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	httpBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}

	var env struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal([]byte(nextSSEData(t, reader, delivery.TypeTurnResult)), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}

	var want, got bytes.Buffer
	if err := json.Compact(&want, httpBody); err != nil {
		t.Fatalf("compact http body: %v", err)
	}
	if err := json.Compact(&got, env.Data); err != nil {
		t.Fatalf("compact streamed data: %v", err)
	}
	if got.String() != want.String() {
		t.Fatalf("streamed result differs from http response:\nstream: %s\nhttp:   %s", got.String(), want.String())
	}
	if !strings.Contains(want.String(), `"text":"Answer to: What is a SIP?"`) {
		t.Fatalf("unexpected result %s", want.String())
	}
}
