// Package symbols finds market symbols mentioned in a user query using a fixed
// vocabulary. It is a best-effort pattern match, not intent classification.
package symbols

import (
	"sort"
	"strings"
	"unicode"
)

// Detection 描述一次检测结果。
type Detection struct {
	Symbols   []string
	Triggered bool
}

// triggerTerms signal that the user is asking about prices or the market.
var triggerTerms = []string{
	"stock", "stocks", "share", "shares", "share price", "price", "quote", "trading", "market",
	"nifty", "sensex", "index", "indices", "ltp", "nse", "bse",
	"शेयर", "स्टॉक", "भाव", "कीमत", "दाम", "बाजार", "बाज़ार", "सेंसेक्स", "निफ्टी",
	"শেয়ার", "দাম", "பங்கு", "விலை", "షేర్", "ధర", "ಷೇರು", "ಬೆಲೆ", "ഓഹരി", "શેર", "ਸ਼ੇਅਰ",
}

// aliases maps lower-case names and tickers to exchange symbols.
var aliases = map[string]string{
	"reliance":              "RELIANCE",
	"reliance industries":   "RELIANCE",
	"रिलायंस":               "RELIANCE",
	"tcs":                   "TCS",
	"tata consultancy":      "TCS",
	"infosys":               "INFY",
	"infy":                  "INFY",
	"इंफोसिस":               "INFY",
	"hdfc bank":             "HDFCBANK",
	"hdfcbank":              "HDFCBANK",
	"icici bank":            "ICICIBANK",
	"icicibank":             "ICICIBANK",
	"sbi":                   "SBIN",
	"state bank of india":   "SBIN",
	"sbin":                  "SBIN",
	"wipro":                 "WIPRO",
	"itc":                   "ITC",
	"airtel":                "BHARTIARTL",
	"bharti airtel":         "BHARTIARTL",
	"bhartiartl":            "BHARTIARTL",
	"tata motors":           "TATAMOTORS",
	"tatamotors":            "TATAMOTORS",
	"larsen":                "LT",
	"l&t":                   "LT",
	"kotak":                 "KOTAKBANK",
	"kotak mahindra bank":   "KOTAKBANK",
	"axis bank":             "AXISBANK",
	"hindustan unilever":    "HINDUNILVR",
	"hul":                   "HINDUNILVR",
	"bajaj finance":         "BAJFINANCE",
	"maruti":                "MARUTI",
	"adani enterprises":     "ADANIENT",
	"nifty":                 "NIFTY",
	"nifty 50":              "NIFTY",
	"निफ्टी":                "NIFTY",
	"sensex":                "SENSEX",
	"सेंसेक्स":             "SENSEX",
	"bank nifty":            "BANKNIFTY",
	"banknifty":             "BANKNIFTY",
}

// indexSymbols are looked up even without another trigger term.
var indexSymbols = map[string]bool{
	"NIFTY":     true,
	"SENSEX":    true,
	"BANKNIFTY": true,
}

// Detector scans text against a vocabulary. The zero value is not usable; use New.
type Detector struct {
	aliases  map[string]string
	triggers []string
	tickers  map[string]bool
	maxCount int
}

// New 创建默认词表的检测器，maxSymbols <= 0 表示不限制。
func New(maxSymbols int) *Detector {
	tickers := make(map[string]bool, len(aliases))
	for _, sym := range aliases {
		tickers[sym] = true
	}
	return &Detector{
		aliases:  aliases,
		triggers: triggerTerms,
		tickers:  tickers,
		maxCount: maxSymbols,
	}
}

// Detect returns the deduplicated symbols mentioned in text, ordered by first
// mention. Company names only count when a trigger term is present; exact
// upper-case tickers and index names count on their own.
func (d *Detector) Detect(text string) Detection {
	trimmed := strings.TrimSpace(text)
	normalized := strings.ToLower(trimmed)
	if normalized == "" {
		return Detection{}
	}

	triggered := false
	for _, term := range d.triggers {
		if containsWord(normalized, term) {
			triggered = true
			break
		}
	}

	type hit struct {
		symbol string
		pos    int
	}
	first := make(map[string]int)
	record := func(symbol string, pos int) {
		if prev, ok := first[symbol]; !ok || pos < prev {
			first[symbol] = pos
		}
	}

	for alias, symbol := range d.aliases {
		pos := indexWord(normalized, alias)
		if pos < 0 {
			continue
		}
		if triggered || indexSymbols[symbol] {
			record(symbol, pos)
		}
	}

	for _, token := range strings.FieldsFunc(trimmed, func(r rune) bool {
		return !(unicode.IsUpper(r) || unicode.IsDigit(r) || r == '&')
	}) {
		if len(token) >= 2 && d.tickers[token] {
			record(token, strings.Index(trimmed, token))
		}
	}

	hits := make([]hit, 0, len(first))
	for symbol, pos := range first {
		hits = append(hits, hit{symbol: symbol, pos: pos})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].pos == hits[j].pos {
			return hits[i].symbol < hits[j].symbol
		}
		return hits[i].pos < hits[j].pos
	})

	symbols := make([]string, 0, len(hits))
	for _, h := range hits {
		symbols = append(symbols, h.symbol)
		if d.maxCount > 0 && len(symbols) == d.maxCount {
			break
		}
	}
	if len(symbols) == 0 {
		symbols = nil
	}

	return Detection{Symbols: symbols, Triggered: triggered || len(symbols) > 0}
}

func containsWord(text, word string) bool {
	return indexWord(text, word) >= 0
}

// indexWord finds word in text where it is not embedded in a longer Latin word.
func indexWord(text, word string) int {
	offset := 0
	for {
		idx := strings.Index(text[offset:], word)
		if idx < 0 {
			return -1
		}
		start := offset + idx
		end := start + len(word)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			return start
		}
		offset = start + 1
		if offset >= len(text) {
			return -1
		}
	}
}

func boundaryBefore(text string, pos int) bool {
	if pos == 0 {
		return true
	}
	r := lastRune(text[:pos])
	return !isWordRune(r)
}

func boundaryAfter(text string, pos int) bool {
	if pos >= len(text) {
		return true
	}
	for _, r := range text[pos:] {
		return !isWordRune(r)
	}
	return true
}

func lastRune(s string) rune {
	var last rune
	for _, r := range s {
		last = r
	}
	return last
}

// isWordRune limits boundaries to ASCII letters and digits so that Indic
// suffixes (e.g. "शेयरों") still match their stem.
func isWordRune(r rune) bool {
	return r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r))
}
