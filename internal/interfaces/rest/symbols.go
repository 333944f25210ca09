package rest

import (
	"regexp"
	"strings"
)

var (
	pairPattern     = regexp.MustCompile(`^[A-Z]{2,6}/[A-Z]{2,6}$`)
	nonLetter       = regexp.MustCompile(`[^A-Z]`)
	quoteCurrencies = []string{"USDT", "USD", "EUR", "GBP", "JPY", "CHF"}
)

// specialPairs are venue spellings that the suffix heuristic would
// split wrong.
var specialPairs = map[string]string{
	"EURT":   "EUR/T",
	"EUREUR": "EUR/EUR",
	"USDEUR": "USD/EUR",
	"GBPEUR": "GBP/EUR",
	"EURUSD": "EUR/USD",
}

// FormatPair normalizes user input into canonical BASE/QUOTE form:
// uppercase, trimmed, slash inserted before a known quote currency,
// defaulting to /USD when nothing matches.
func FormatPair(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	if strings.Contains(symbol, "/") {
		return symbol
	}

	symbol = nonLetter.ReplaceAllString(symbol, "")

	if formatted, ok := specialPairs[symbol]; ok {
		return formatted
	}

	if len(symbol) >= 6 {
		for _, quote := range quoteCurrencies {
			if strings.HasSuffix(symbol, quote) {
				return symbol[:len(symbol)-len(quote)] + "/" + quote
			}
		}
	}

	return symbol + "/USD"
}

// ValidPairFormat reports whether a pair is canonical: two sides of
// 2-6 uppercase letters joined by a single slash.
func ValidPairFormat(pair string) bool {
	return pairPattern.MatchString(pair)
}
