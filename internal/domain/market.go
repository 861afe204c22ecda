package domain

import "time"

// MarketEntry is one tradable asset inside a snapshot. The ID is the
// lowercase base ticker (e.g. "btc") and is stable for the lifetime of
// the snapshot that owns it.
type MarketEntry struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Symbol         string    `json:"symbol"`
	PriceQuote     float64   `json:"price_quote"`      // last price in USDT
	ChangePct24h   float64   `json:"change_pct_24h"`   // signed
	VolumeQuote24h float64   `json:"volume_quote_24h"` // 24h quote volume in USDT
	ConvertedPrice float64   `json:"converted_price"`  // PriceQuote * currency factor
	ConvertedVol   float64   `json:"converted_volume"` // VolumeQuote24h * currency factor
	History        []float64 `json:"history,omitempty"` // recent closes, oldest first
}

// Snapshot is an ordered page of market entries for one display currency.
// The live-tick overlay patches entry price/volume fields in place; it
// never inserts, removes or reorders entries.
type Snapshot struct {
	Currency  string        `json:"currency"`
	Page      int           `json:"page"`
	PerPage   int           `json:"per_page"`
	FetchedAt time.Time     `json:"fetched_at"`
	Entries   []MarketEntry `json:"entries"`
	Stale     bool          `json:"stale,omitempty"` // served from cache after a failed refresh
}

// Tick is a per-asset mini-ticker update from the live stream.
type Tick struct {
	ID             string  `json:"id"`
	Price          float64 `json:"price"`
	ChangePct24h   float64 `json:"change_pct_24h"`
	VolumeQuote24h float64 `json:"volume_quote_24h"`
}

type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// GlobalStats aggregates the USDT market universe.
type GlobalStats struct {
	TotalVolumeQuote24h float64 `json:"total_volume_quote_24h"`
	BTCDominancePct     float64 `json:"btc_dominance_pct"`
}

// CoinSummary is a lightweight search result.
type CoinSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}
