package language

import "unicode"

var scriptCodes = []struct {
	table *unicode.RangeTable
	code  string
}{
	{unicode.Devanagari, "hi"},
	{unicode.Bengali, "bn"},
	{unicode.Tamil, "ta"},
	{unicode.Telugu, "te"},
	{unicode.Kannada, "kn"},
	{unicode.Malayalam, "ml"},
	{unicode.Gujarati, "gu"},
	{unicode.Gurmukhi, "pa"},
}

// Detect guesses a language from the dominant script of text.
// Devanagari is reported as Hindi; Marathi needs an explicit hint.
func Detect(text string) string {
	counts := make(map[string]int)
	latin := 0
	for _, r := range text {
		if unicode.In(r, unicode.Latin) {
			latin++
			continue
		}
		for _, sc := range scriptCodes {
			if unicode.In(r, sc.table) {
				counts[sc.code]++
				break
			}
		}
	}

	best, bestCount := "", 0
	for _, sc := range scriptCodes {
		if c := counts[sc.code]; c > bestCount {
			best, bestCount = sc.code, c
		}
	}
	if bestCount > 0 && bestCount >= latin/2 {
		return best
	}
	if latin > 0 {
		return "en"
	}
	return ""
}
