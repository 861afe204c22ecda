package usecase

import (
	"testing"

	"github.com/vitos/crypto_market_pulse/internal/domain"
)

func candleAt(ts int64, close float64) domain.Candle {
	return domain.Candle{Time: ts, Open: close, High: close, Low: close, Close: close, Volume: 1}
}

func TestCandleFeed_SeedTrimsOldest(t *testing.T) {
	f := NewCandleFeed(3)
	f.Seed([]domain.Candle{candleAt(1, 10), candleAt(2, 11), candleAt(3, 12), candleAt(4, 13), candleAt(5, 14)})

	got := f.Candles()
	if len(got) != 3 {
		t.Fatalf("got %d candles, want 3", len(got))
	}
	if got[0].Time != 3 || got[2].Time != 5 {
		t.Fatalf("wrong window: %+v", got)
	}
}

func TestCandleFeed_MergeSameOpenTimeUpdatesInPlace(t *testing.T) {
	f := NewCandleFeed(10)
	f.Seed([]domain.Candle{{Time: 1, Open: 10, High: 12, Low: 9, Close: 11, Volume: 5}})

	f.Merge(domain.Candle{Time: 1, Open: 10, High: 13, Low: 8, Close: 12, Volume: 7})

	got := f.Candles()
	if len(got) != 1 {
		t.Fatalf("got %d candles, want 1", len(got))
	}
	c := got[0]
	if c.High != 13 || c.Low != 8 || c.Close != 12 || c.Volume != 7 {
		t.Fatalf("in-place update wrong: %+v", c)
	}
	if c.Open != 10 {
		t.Fatalf("open changed: %+v", c)
	}
}

func TestCandleFeed_MergeSameOpenTimeKeepsExtremes(t *testing.T) {
	f := NewCandleFeed(10)
	f.Seed([]domain.Candle{{Time: 1, Open: 10, High: 15, Low: 5, Close: 11, Volume: 5}})

	// A narrower update must not shrink high/low.
	f.Merge(domain.Candle{Time: 1, High: 12, Low: 9, Close: 10, Volume: 6})

	c := f.Candles()[0]
	if c.High != 15 || c.Low != 5 {
		t.Fatalf("extremes shrank: %+v", c)
	}
}

func TestCandleFeed_MergeNewerAppendsAndTrims(t *testing.T) {
	f := NewCandleFeed(2)
	f.Seed([]domain.Candle{candleAt(1, 10), candleAt(2, 11)})

	f.Merge(candleAt(3, 12))

	got := f.Candles()
	if len(got) != 2 {
		t.Fatalf("got %d candles, want 2", len(got))
	}
	if got[0].Time != 2 || got[1].Time != 3 {
		t.Fatalf("wrong window after append: %+v", got)
	}
}

func TestCandleFeed_MergeOlderFrameDropped(t *testing.T) {
	f := NewCandleFeed(10)
	f.Seed([]domain.Candle{candleAt(5, 10)})

	f.Merge(candleAt(3, 99))

	got := f.Candles()
	if len(got) != 1 || got[0].Time != 5 {
		t.Fatalf("out-of-order frame not dropped: %+v", got)
	}
}

func TestCandleFeed_MergeIntoEmptyFeed(t *testing.T) {
	f := NewCandleFeed(10)
	f.Merge(candleAt(1, 10))

	got := f.Candles()
	if len(got) != 1 || got[0].Time != 1 {
		t.Fatalf("unexpected window: %+v", got)
	}
}

func TestCandleFeed_CandlesReturnsCopy(t *testing.T) {
	f := NewCandleFeed(10)
	f.Seed([]domain.Candle{candleAt(1, 10)})

	out := f.Candles()
	out[0].Close = 999

	if f.Candles()[0].Close == 999 {
		t.Fatal("caller mutated the internal window")
	}
}
