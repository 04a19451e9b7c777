package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/shankh-ai/shankh/backend/internal/model/chat"
)

type fakeChatModel struct {
	reply    string
	received []*schema.Message
}

func (m *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.received = input
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func TestArkProviderRunsChain(t *testing.T) {
	fake := &fakeChatModel{reply: "Use a recurring deposit for monthly savings.\n[[META]]{\"sources\":[],\"follow_ups\":[\"How much interest?\"]}"}
	provider, err := NewArkProvider(context.Background(), fake)
	if err != nil {
		t.Fatalf("NewArkProvider err: %v", err)
	}

	req := testRequest(1)
	req.History = []chat.Turn{
		{Role: chat.RoleUser, Content: "Hi"},
		{Role: chat.RoleAssistant, Content: "Hello, how can I help?"},
		{Role: chat.RoleUser, Content: "   "},
	}

	reply, err := provider.Invoke(context.Background(), req)
	if err != nil {
		t.Fatalf("Invoke err: %v", err)
	}
	if reply.Provider != "ark" || len(reply.FollowUps) != 1 {
		t.Fatalf("unexpected reply %+v", reply)
	}
	// explicit empty sources means the model used none of the passages
	if len(reply.Citations) != 0 {
		t.Fatalf("expected no citations, got %+v", reply.Citations)
	}

	// system + 2 history turns + query
	if len(fake.received) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(fake.received))
	}
	if fake.received[0].Role != schema.System || fake.received[3].Content != req.Query {
		t.Fatalf("unexpected message layout: %+v", fake.received)
	}
}

func TestOpenAIProviderSendsHistory(t *testing.T) {
	var body struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "An FD earns fixed interest."}}]
		}`))
	}))
	defer srv.Close()

	provider := NewOpenAIProvider(NewOpenAIClient("test-key", srv.URL), "gpt-4o-mini")
	req := testRequest(0)
	req.History = []chat.Turn{{Role: chat.RoleUser, Content: "Hi"}, {Role: chat.RoleAssistant, Content: "Hello"}}

	reply, err := provider.Invoke(context.Background(), req)
	if err != nil {
		t.Fatalf("Invoke err: %v", err)
	}
	if reply.Text != "An FD earns fixed interest." || reply.Provider != "openai" {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if body.Model != "gpt-4o-mini" || len(body.Messages) != 4 {
		t.Fatalf("unexpected request %+v", body)
	}
	roles := []string{body.Messages[0].Role, body.Messages[1].Role, body.Messages[2].Role, body.Messages[3].Role}
	if strings.Join(roles, ",") != "system,user,assistant,user" {
		t.Fatalf("unexpected roles %v", roles)
	}
}

func TestGeminiProviderParsesCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "PPF has a 15 year lock-in."}]}, "finishReason": "STOP"}]
		}`))
	}))
	defer srv.Close()

	client, err := NewGeminiClient(context.Background(), "test-key", srv.URL)
	if err != nil {
		t.Fatalf("NewGeminiClient err: %v", err)
	}
	reply, err := NewGeminiProvider(client, "gemini-2.0-flash").Invoke(context.Background(), testRequest(0))
	if err != nil {
		t.Fatalf("Invoke err: %v", err)
	}
	if reply.Text != "PPF has a 15 year lock-in." || reply.Provider != "gemini" {
		t.Fatalf("unexpected reply %+v", reply)
	}
}
