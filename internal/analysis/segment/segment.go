// Package segment splits reply text into slices that fit a synthesis call.
package segment

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Split returns text unchanged (trimmed) when it fits in limit runes.
// Longer text is split on sentence boundaries and packed greedily; a sentence
// longer than limit is split at word boundaries. Words are never cut, so a
// single word longer than limit becomes its own segment.
func Split(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var (
		segments []string
		current  strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			segments = append(segments, s)
		}
		current.Reset()
	}
	pack := func(piece string) {
		candidate := current.String() + piece
		if utf8.RuneCountInString(strings.TrimSpace(candidate)) <= limit {
			current.WriteString(piece)
			return
		}
		flush()
		current.WriteString(piece)
	}

	for _, sentence := range Sentences(text) {
		if utf8.RuneCountInString(strings.TrimSpace(sentence)) <= limit {
			pack(sentence)
			continue
		}
		for _, word := range words(sentence) {
			pack(word)
		}
	}
	flush()

	return segments
}

// Sentences splits text after sentence terminators, keeping each terminator
// and its trailing whitespace with the sentence it ends.
func Sentences(text string) []string {
	var (
		out   []string
		start int
	)
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if !isBoundary(runes, i) {
			continue
		}
		end := i + 1
		// absorb runs like "?!", closing quotes and brackets
		for end < len(runes) && (isTerminator(runes[end]) || isCloser(runes[end])) {
			end++
		}
		for end < len(runes) && unicode.IsSpace(runes[end]) {
			end++
		}
		out = append(out, string(runes[start:end]))
		start = end
		i = end - 1
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}

func isBoundary(runes []rune, i int) bool {
	r := runes[i]
	switch r {
	case '.':
		// 9.9, 10.15 and v1.2 are not boundaries
		prev, next := rune(0), rune(0)
		if i > 0 {
			prev = runes[i-1]
		}
		if i+1 < len(runes) {
			next = runes[i+1]
		}
		if unicode.IsDigit(prev) && unicode.IsDigit(next) {
			return false
		}
		return next == 0 || unicode.IsSpace(next) || isCloser(next)
	case '\n':
		return true
	default:
		return isTerminator(r)
	}
}

func isTerminator(r rune) bool {
	switch r {
	case '!', '?', ';', '…',
		'。', '！', '？', '；',
		'।', '॥', '؟', '۔':
		return true
	}
	return false
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’', '」', '』', '）':
		return true
	}
	return false
}

// words splits s into whitespace-terminated tokens so concatenation restores s.
func words(s string) []string {
	var (
		out   []string
		start int
		inGap bool
	)
	for i, r := range s {
		space := unicode.IsSpace(r)
		if inGap && !space {
			out = append(out, s[start:i])
			start = i
		}
		inGap = space
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
