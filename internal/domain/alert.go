package domain

import "time"

type AlertType string

const (
	AlertPrice  AlertType = "price"
	AlertPct24h AlertType = "pct24h"
	AlertVol24h AlertType = "vol24h"
)

type AlertOp string

const (
	OpAbove AlertOp = ">"
	OpBelow AlertOp = "<"
)

// Alert is a user-defined threshold watched against live ticks.
// Triggering is rate-limited by a per-alert cooldown window held in
// memory by the alert service; a restart resets the cooldowns.
type Alert struct {
	ID        string    `json:"id"`
	CoinID    string    `json:"coin_id"`
	Type      AlertType `json:"type"`
	Op        AlertOp   `json:"op"`
	Value     float64   `json:"value"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}
