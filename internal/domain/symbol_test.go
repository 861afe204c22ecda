package domain

import "testing"

func TestIsUSDTPair(t *testing.T) {
	cases := map[string]bool{
		"BTCUSDT":  true,
		"btcusdt":  true,
		"ETHBTC":   false,
		"BTCUSDC":  false,
		"USDTBTC":  false,
		"":         false,
	}
	for sym, want := range cases {
		if got := IsUSDTPair(sym); got != want {
			t.Errorf("IsUSDTPair(%q) = %v, want %v", sym, got, want)
		}
	}
}

func TestIsLeveraged(t *testing.T) {
	cases := map[string]bool{
		"BTCUPUSDT":    true,
		"ETHDOWNUSDT":  true,
		"EOSBULLUSDT":  true,
		"EOSBEARUSDT":  true,
		"ATOM3LUSDT":   true,
		"ATOM3SUSDT":   true,
		"btcupusdt":    true, // case-insensitive
		"BTCUSDT":      false,
		"API3USDT":     false, // digit not followed by S/L
		"SUPERUSDT":    false, // "UP" not directly before the quote
		"DOWNUSDT":     true,  // degenerate but matches the suffix rule
	}
	for sym, want := range cases {
		if got := IsLeveraged(sym); got != want {
			t.Errorf("IsLeveraged(%q) = %v, want %v", sym, got, want)
		}
	}
}

func TestBaseAssetAndIDs(t *testing.T) {
	if got := BaseAsset("BTCUSDT"); got != "BTC" {
		t.Errorf("BaseAsset = %q, want BTC", got)
	}
	if got := CoinID("BTCUSDT"); got != "btc" {
		t.Errorf("CoinID = %q, want btc", got)
	}
	if got := PairSymbol("btc"); got != "BTCUSDT" {
		t.Errorf("PairSymbol = %q, want BTCUSDT", got)
	}
	// Round trip.
	if got := PairSymbol(CoinID("SOLUSDT")); got != "SOLUSDT" {
		t.Errorf("round trip = %q, want SOLUSDT", got)
	}
}
