package ai

import (
	"context"
	"fmt"
	"log"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/shankh-ai/shankh/backend/internal/model/chat"
)

// ArkProvider runs a prompt template and chat model as one eino chain.
type ArkProvider struct {
	name  string
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewArkProvider compiles the chain around chatModel.
func NewArkProvider(ctx context.Context, chatModel model.BaseChatModel) (*ArkProvider, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &ArkProvider{name: "ark", chain: runnable}, nil
}

func (p *ArkProvider) Name() string { return p.name }

// Invoke generates one reply.
func (p *ArkProvider) Invoke(ctx context.Context, req *Request) (*Reply, error) {
	input := map[string]any{
		"system":  BuildSystemPrompt(req),
		"history": arkHistory(req.History),
		"query":   req.Query,
	}

	msg, err := p.chain.Invoke(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to run AI chain: %w", err)
	}

	log.Printf("[ai] ark replied for session=%s, length=%d", req.SessionID, len(msg.Content))
	return ParseReply(msg.Content, req, p.name)
}

func arkHistory(turns []chat.Turn) []*schema.Message {
	kept := historyPairs(turns)
	if len(kept) == 0 {
		return nil
	}

	history := make([]*schema.Message, 0, len(kept))
	for _, t := range kept {
		switch t.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(t.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(t.Content, nil))
		}
	}
	return history
}
