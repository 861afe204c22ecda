package usecase

import (
	"sync"

	"github.com/vitos/crypto_market_pulse/internal/domain"
)

// CandleFeed maintains a bounded live candle window for one
// symbol/interval pair: seeded from history, then patched by streamed
// klines. A streamed candle with the open time of the last held candle
// updates it in place; a later open time appends and trims the window.
type CandleFeed struct {
	mu      sync.Mutex
	limit   int
	candles []domain.Candle
}

func NewCandleFeed(limit int) *CandleFeed {
	if limit <= 0 {
		limit = 300
	}
	return &CandleFeed{limit: limit}
}

// Seed installs the historical window, trimming to the limit from the
// oldest end.
func (f *CandleFeed) Seed(history []domain.Candle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	start := 0
	if len(history) > f.limit {
		start = len(history) - f.limit
	}
	f.candles = append(f.candles[:0], history[start:]...)
}

// Merge applies one streamed candle.
func (f *CandleFeed) Merge(c domain.Candle) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := len(f.candles)
	if n > 0 && f.candles[n-1].Time == c.Time {
		last := &f.candles[n-1]
		if c.High > last.High {
			last.High = c.High
		}
		if c.Low < last.Low {
			last.Low = c.Low
		}
		last.Close = c.Close
		last.Volume = c.Volume
		return
	}
	if n > 0 && c.Time < f.candles[n-1].Time {
		return // out-of-order frame, drop
	}

	f.candles = append(f.candles, c)
	if len(f.candles) > f.limit {
		f.candles = f.candles[1:]
	}
}

// Candles returns a copy of the current window, oldest first.
func (f *CandleFeed) Candles() []domain.Candle {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Candle, len(f.candles))
	copy(out, f.candles)
	return out
}
