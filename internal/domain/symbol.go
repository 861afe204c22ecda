package domain

import (
	"regexp"
	"strings"
)

// Leveraged and inverse token tickers (3x long/short etc.) are noise for
// a market overview and are dropped everywhere symbols enter the system.
var leveragedSuffix = regexp.MustCompile(`(?i)(UP|DOWN|BULL|BEAR|[0-9]S|[0-9]L)USDT$`)

// IsUSDTPair reports whether the exchange symbol quotes in USDT.
func IsUSDTPair(symbol string) bool {
	return strings.HasSuffix(strings.ToUpper(symbol), "USDT")
}

// IsLeveraged reports whether the symbol is a leveraged-token pair.
func IsLeveraged(symbol string) bool {
	return leveragedSuffix.MatchString(symbol)
}

// BaseAsset strips the USDT quote suffix: "BTCUSDT" -> "BTC".
func BaseAsset(symbol string) string {
	up := strings.ToUpper(symbol)
	return strings.TrimSuffix(up, "USDT")
}

// CoinID is the snapshot identity for a symbol: the lowercase base asset.
func CoinID(symbol string) string {
	return strings.ToLower(BaseAsset(symbol))
}

// PairSymbol builds the exchange symbol for a coin id: "btc" -> "BTCUSDT".
func PairSymbol(id string) string {
	return strings.ToUpper(id) + "USDT"
}
