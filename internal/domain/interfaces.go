package domain

import (
	"context"
	"time"
)

// RawTicker is one row of the upstream 24h ticker endpoint.
type RawTicker struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	OpenPrice          string `json:"openPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
	QuoteVolume        string `json:"quoteVolume"`
}

// MarketData is the upstream market-data adapter (REST side).
type MarketData interface {
	GetTickers24h(ctx context.Context) ([]RawTicker, error)
	GetTicker(ctx context.Context, symbol string) (*RawTicker, error)
	GetKlineCloses(ctx context.Context, symbol, interval string, limit int) ([]float64, error)
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	GetPrice(ctx context.Context, symbol string) (float64, error)
	GetExchangeSymbols(ctx context.Context) ([]string, error)
}

// TickStream is the live mini-ticker subscription. Start is non-blocking;
// the stream reconnects on its own until Stop, which is idempotent.
type TickStream interface {
	Start(onTick func(Tick))
	Stop()
}

// SnapshotCache persists the last good snapshot per currency. Get returns
// (nil, nil) on a miss; expired or unreadable entries count as misses.
type SnapshotCache interface {
	Put(ctx context.Context, snap *Snapshot) error
	Get(ctx context.Context, currency string, ttl time.Duration) (*Snapshot, error)
}

// AlertRepository stores user alerts.
type AlertRepository interface {
	SaveAlert(ctx context.Context, a *Alert) error
	UpdateAlert(ctx context.Context, a *Alert) error
	GetAlert(ctx context.Context, id string) (*Alert, error)
	ListAlerts(ctx context.Context) ([]*Alert, error)
	DeleteAlert(ctx context.Context, id string) error
}

// Notifier delivers a triggered alert to the user.
type Notifier interface {
	Notify(title, body string)
}
