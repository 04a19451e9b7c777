package ai

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/shankh-ai/shankh/backend/internal/model/knowledge"
)

const (
	maxFollowUps        = 3
	maxDefaultCitations = 3
)

type replyMeta struct {
	Sources   []int    `json:"sources"`
	FollowUps []string `json:"follow_ups"`
	Language  string   `json:"language"`
}

// ParseReply splits raw model output into answer text and trailer metadata.
// A missing or unreadable trailer still yields the answer text; citations
// then default to the top passages supplied with the request.
func ParseReply(raw string, req *Request, provider string) (*Reply, error) {
	text := raw
	var meta replyMeta
	metaOK := false

	if idx := strings.LastIndex(raw, metaMarker); idx >= 0 {
		text = raw[:idx]
		metaOK = unmarshalJSON(extractJSON(raw[idx+len(metaMarker):]), &meta) == nil
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyReply
	}

	reply := &Reply{
		Text:     text,
		Language: req.Language.Code,
		Provider: provider,
	}
	if metaOK {
		reply.FollowUps = cleanFollowUps(meta.FollowUps)
		if code := strings.ToLower(strings.TrimSpace(meta.Language)); code != "" {
			reply.Language = code
		}
	}
	reply.Citations = citationsFor(req.Passages, meta.Sources, metaOK)
	return reply, nil
}

func citationsFor(passages []knowledge.Passage, sources []int, metaOK bool) []knowledge.Citation {
	if len(passages) == 0 {
		return nil
	}

	var out []knowledge.Citation
	seen := make(map[int]bool)
	for _, n := range sources {
		if n < 1 || n > len(passages) || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, passages[n-1].Cite())
	}
	if len(out) > 0 || (metaOK && sources != nil) {
		return out
	}

	limit := min(len(passages), maxDefaultCitations)
	out = make([]knowledge.Citation, 0, limit)
	for _, p := range passages[:limit] {
		out = append(out, p.Cite())
	}
	return out
}

func cleanFollowUps(items []string) []string {
	var out []string
	for _, s := range items {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == maxFollowUps {
			break
		}
	}
	return out
}

// extractJSON trims code fences and anything outside the outermost braces.
func extractJSON(s string) []byte {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	if start := strings.Index(s, "{"); start >= 0 {
		s = s[start:]
	}
	if end := strings.LastIndex(s, "}"); end >= 0 {
		s = s[:end+1]
	}
	return []byte(strings.TrimSpace(s))
}

// unmarshalJSON retries with a repaired document on syntax errors.
func unmarshalJSON(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	if _, ok := err.(*json.SyntaxError); ok {
		fixed, rerr := jsonrepair.JSONRepair(string(data))
		if rerr != nil {
			return rerr
		}
		return json.Unmarshal([]byte(fixed), v)
	}
	return err
}
