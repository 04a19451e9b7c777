package ai

import (
	"fmt"
	"strings"

	"github.com/shankh-ai/shankh/backend/internal/model/chat"
)

// metaMarker separates the spoken answer from the machine-readable trailer.
const metaMarker = "[[META]]"

const basePrompt = `You are Shankh, a patient financial assistant for people in India. You explain banking, savings, loans, insurance, government schemes and investing in plain words.

Rules:
- Answer only from the reference passages and market data below when they are relevant. If they do not cover the question, say so and give general guidance.
- Never promise returns and never give individual buy or sell calls. Suggest consulting a registered advisor for personal decisions.
- Keep answers short enough to be read aloud: at most two short paragraphs, no tables, no code.
- Mention amounts with the rupee symbol and Indian numbering (lakh, crore) where natural.`

// BuildSystemPrompt renders the system instruction for req.
func BuildSystemPrompt(req *Request) string {
	var b strings.Builder
	b.WriteString(basePrompt)

	b.WriteString("\n\nLanguage:\n")
	if req.Language.PromptHint != "" {
		b.WriteString(req.Language.PromptHint)
	} else if req.Language.Name != "" {
		fmt.Fprintf(&b, "Reply in %s.", req.Language.Name)
	} else {
		b.WriteString("Reply in the language of the question.")
	}

	if len(req.Passages) > 0 {
		b.WriteString("\n\nReference passages:\n")
		for i, p := range req.Passages {
			fmt.Fprintf(&b, "[%d] (%s) %s\n", i+1, p.Location(), strings.TrimSpace(p.Text))
		}
	}

	if len(req.Quotes) > 0 {
		b.WriteString("\nLive market data:\n")
		for _, q := range req.Quotes {
			b.WriteString("- ")
			b.WriteString(q.Summary())
			b.WriteString("\n")
		}
		b.WriteString("Quote prices exactly as given and mention the time they were fetched.\n")
	}

	fmt.Fprintf(&b, `
After the answer, write %s on its own line followed by one JSON object:
{"sources": [numbers of the reference passages you used], "follow_ups": [up to 3 short follow-up questions in the reply language], "language": "ISO 639-1 code of your reply"}
Do not mention the passages by number in the answer itself.`, metaMarker)

	return b.String()
}

// historyPairs keeps the user and assistant turns worth replaying,
// dropping empty entries.
func historyPairs(turns []chat.Turn) []chat.Turn {
	out := make([]chat.Turn, 0, len(turns))
	for _, t := range turns {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		if t.Role != chat.RoleUser && t.Role != chat.RoleAssistant {
			continue
		}
		out = append(out, t)
	}
	return out
}
