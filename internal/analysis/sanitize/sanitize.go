// Package sanitize strips markup and reference artifacts from generated prose
// so that speech synthesis reads natural sentences.
package sanitize

import (
	"regexp"
	"strings"
)

type rule struct {
	pattern *regexp.Regexp
	replace string
}

// 顺序敏感：每一步都假定前一步已经执行。
var pipeline = []rule{
	// bracketed citation / source annotations: [source: 151.pdf p4], [1], [2, 3], 【1】
	{regexp.MustCompile(`(?i)\[\s*(?:sources?|src|ref|refs|reference|references|citation|cite|doc|document|from)\b[^\]]*\](?:\([^)]*\))?`), " "},
	{regexp.MustCompile(`\[\s*\d+(?:\s*[,\-–]\s*\d+)*\s*\]`), " "},
	{regexp.MustCompile(`【[^】]*】`), " "},

	// file / page references: 151.pdf p4, loan_policy.docx, page 12-13 of report.pdf
	{regexp.MustCompile(`(?i)\b[\w\-]+\.(?:pdf|docx?|txt|md|csv|xlsx?|pptx?)\b(?:\s*,?\s*(?:p|pg|pp|page|pages)\.?\s*\d+(?:\s*[\-–]\s*\d+)?)?`), " "},
	{regexp.MustCompile(`(?i)\bpages?\s+\d+(?:\s*[\-–]\s*\d+)?\s+of\b`), " "},

	// structural markup emphasis
	{regexp.MustCompile(`(?m)^[ \t]*#{1,6}[ \t]+`), ""},
	{regexp.MustCompile(`(?m)^[ \t]*>[ \t]?`), ""},
	{regexp.MustCompile(`\*\*([^*]+?)\*\*`), "$1"},
	{regexp.MustCompile(`__([^_]+?)__`), "$1"},
	{regexp.MustCompile(`~~([^~]+?)~~`), "$1"},
	{regexp.MustCompile(`\*([^*\s](?:[^*]*[^*\s])?)\*`), "$1"},
	{regexp.MustCompile(`(^|[\s(])_([^_\s](?:[^_]*[^_\s])?)_`), "$1$2"},
	{regexp.MustCompile(`\*+`), ""},

	// code: fenced blocks are dropped, inline code is unwrapped
	{regexp.MustCompile("(?s)```.*?```"), " "},
	{regexp.MustCompile("(?s)~~~.*?~~~"), " "},
	{regexp.MustCompile("`([^`]*)`"), "$1"},
	{regexp.MustCompile("`+"), ""},

	// links keep their visible label; images are dropped
	{regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`), " "},
	{regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`), "$1"},
	{regexp.MustCompile(`\[([^\]]+)\]\[[^\]]*\]`), "$1"},

	// embedded tags
	{regexp.MustCompile(`</?[A-Za-z][A-Za-z0-9\-]*(?:\s[^<>]*)?/?>`), " "},

	// decorative symbols: bullets, arrows, status glyphs, emoji, table rules
	{regexp.MustCompile(`(?m)^[ \t]*(?:[-+•◦▪▫●○■□►▶➤]|\d+[.)])[ \t]+`), ""},
	{regexp.MustCompile(`(?m)^[ \t]*[-=_]{3,}[ \t]*$`), ""},
	{regexp.MustCompile(`[\x{2022}\x{2023}\x{2043}\x{2219}\x{25A0}-\x{25FF}\x{2190}-\x{21FF}\x{27F0}-\x{27FF}\x{2900}-\x{297F}\x{2B00}-\x{2BFF}\x{2600}-\x{27BF}\x{1F000}-\x{1FAFF}\x{FE0F}\x{200D}]`), " "},
	{regexp.MustCompile(`\|`), " "},

	// page-number parentheticals: (p. 4), (pages 3-5), (pg 12)
	{regexp.MustCompile(`(?i)\(\s*(?:p|pg|pp|page|pages)\.?\s*\d+(?:\s*[\-–,]\s*\d+)*\s*\)`), " "},

	// leftovers from earlier removals
	{regexp.MustCompile(`\(\s*\)|\[\s*\]`), " "},
}

var (
	horizontalSpace = regexp.MustCompile(`[ \t\x{00A0}\x{3000}]+`)
	lineBreaks      = regexp.MustCompile(`[ \t]*\n[\s]*`)
	spaceBeforeStop = regexp.MustCompile(` +([,.;:!?।॥])`)
	repeatedStops   = regexp.MustCompile(`([.!?।])(?:\s*[.!?।])+`)
	missingSpace    = regexp.MustCompile(`(\p{Ll}[.!?])(\p{Lu})`)
	dandaSpacing    = regexp.MustCompile(`([।॥])(\S)`)
)

// maxPasses bounds the fixed-point loop; real replies settle in two passes.
const maxPasses = 8

// Clean removes citations, references, markup, code, tags, decorative symbols
// and page parentheticals, then normalizes whitespace. Clean(Clean(x)) == Clean(x).
func Clean(text string) string {
	current := text
	for i := 0; i < maxPasses; i++ {
		next := cleanOnce(current)
		if next == current {
			return next
		}
		current = next
	}
	return current
}

func cleanOnce(text string) string {
	out := strings.ReplaceAll(text, "\r\n", "\n")
	for _, r := range pipeline {
		out = r.pattern.ReplaceAllString(out, r.replace)
	}
	return normalizeSpacing(out)
}

func normalizeSpacing(text string) string {
	out := horizontalSpace.ReplaceAllString(text, " ")
	out = lineBreaks.ReplaceAllString(out, "\n")
	out = spaceBeforeStop.ReplaceAllString(out, "$1")
	out = repeatedStops.ReplaceAllStringFunc(out, func(m string) string {
		// keep ellipsis-like runs as a single stop of the first kind
		return m[:len(firstRune(m))]
	})
	out = missingSpace.ReplaceAllString(out, "$1 $2")
	out = dandaSpacing.ReplaceAllString(out, "$1 $2")
	return strings.TrimSpace(out)
}

func firstRune(s string) string {
	for _, r := range s {
		return string(r)
	}
	return ""
}
