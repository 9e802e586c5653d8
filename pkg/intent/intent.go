// Package intent pulls a ticker symbol out of a free-form request.
package intent

import (
	"regexp"
	"strings"
)

type companyName struct {
	name   string
	symbol string
}

// companyNames is consulted before the ticker pattern, in this order.
var companyNames = []companyName{
	{"nvidia", "NVDA"},
	{"apple", "AAPL"},
	{"tesla", "TSLA"},
	{"microsoft", "MSFT"},
	{"amazon", "AMZN"},
	{"google", "GOOGL"},
	{"meta", "META"},
	{"netflix", "NFLX"},
	{"amd", "AMD"},
	{"intel", "INTC"},
	{"facebook", "META"},
}

var (
	tickerPattern = regexp.MustCompile(`\b([A-Z]{2,5})\b`)

	notTickers = map[string]struct{}{
		"I": {}, "A": {}, "THE": {}, "AND": {}, "OR": {}, "FOR": {},
		"TO": {}, "IN": {}, "IS": {}, "IT": {}, "AI": {},
	}
)

// ExtractSymbol returns the ticker the text refers to. Company names win over
// ticker-like tokens; only the first uppercase token is considered and it is
// rejected when it is a common short word.
func ExtractSymbol(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, c := range companyNames {
		if strings.Contains(lower, c.name) {
			return c.symbol, true
		}
	}

	m := tickerPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	if _, excluded := notTickers[m[1]]; excluded {
		return "", false
	}
	return m[1], true
}
