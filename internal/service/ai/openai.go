package ai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/shankh-ai/shankh/backend/internal/model/chat"
)

// OpenAIProvider uses the chat completions API of OpenAI or a compatible server.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIClient builds a client shared by text and audio providers.
func NewOpenAIClient(apiKey, baseURL string) openai.Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return openai.NewClient(opts...)
}

func NewOpenAIProvider(client openai.Client, model string) *OpenAIProvider {
	return &OpenAIProvider{client: client, model: model}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Invoke(ctx context.Context, req *Request) (*Reply, error) {
	kept := historyPairs(req.History)
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(kept)+2)
	msgs = append(msgs, openai.SystemMessage(BuildSystemPrompt(req)))
	for _, t := range kept {
		if t.Role == chat.RoleAssistant {
			msgs = append(msgs, openai.AssistantMessage(t.Content))
		} else {
			msgs = append(msgs, openai.UserMessage(t.Content))
		}
	}
	msgs = append(msgs, openai.UserMessage(req.Query))

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    p.model,
		Messages: msgs,
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: %w: no choices", ErrEmptyReply)
	}
	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return nil, fmt.Errorf("openai refused: %s", choice.Message.Refusal)
	}
	return ParseReply(choice.Message.Content, req, p.Name())
}
