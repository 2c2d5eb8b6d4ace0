package cache

import "strings"

// PairKey builds the lookup key for a currency pair.
// Format: FROM_TO, upper case.
//
// Example:
//
//	PairKey("usd", "krw") == "USD_KRW"
func PairKey(from, to string) string {
	return normalize(from) + "_" + normalize(to)
}

// TickerKey builds the lookup key for a security ticker.
func TickerKey(ticker string) string {
	return normalize(ticker)
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
