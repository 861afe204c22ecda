package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vitos/crypto_market_pulse/internal/domain"
	"go.uber.org/zap"
)

// fakeSource is a scriptable domain.MarketData for service tests.
type fakeSource struct {
	tickers     []domain.RawTicker
	tickersErr  error
	tickerCalls int

	prices     map[string]float64
	priceErr   error
	priceCalls int

	klines     map[string][]float64
	klinesErr  error
	klineCalls int

	symbols []string
}

func (f *fakeSource) GetTickers24h(ctx context.Context) ([]domain.RawTicker, error) {
	f.tickerCalls++
	if f.tickersErr != nil {
		return nil, f.tickersErr
	}
	return f.tickers, nil
}

func (f *fakeSource) GetTicker(ctx context.Context, symbol string) (*domain.RawTicker, error) {
	for _, t := range f.tickers {
		if t.Symbol == symbol {
			out := t
			return &out, nil
		}
	}
	return nil, errors.New("symbol not found")
}

func (f *fakeSource) GetKlineCloses(ctx context.Context, symbol, interval string, limit int) ([]float64, error) {
	f.klineCalls++
	if f.klinesErr != nil {
		return nil, f.klinesErr
	}
	return f.klines[symbol], nil
}

func (f *fakeSource) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeSource) GetPrice(ctx context.Context, symbol string) (float64, error) {
	f.priceCalls++
	if f.priceErr != nil {
		return 0, f.priceErr
	}
	return f.prices[symbol], nil
}

func (f *fakeSource) GetExchangeSymbols(ctx context.Context) ([]string, error) {
	return f.symbols, nil
}

// fakeCache is an in-memory domain.SnapshotCache.
type fakeCache struct {
	snaps map[string]*domain.Snapshot
	puts  int
}

func newFakeCache() *fakeCache {
	return &fakeCache{snaps: make(map[string]*domain.Snapshot)}
}

func (c *fakeCache) Put(ctx context.Context, snap *domain.Snapshot) error {
	c.puts++
	cp := *snap
	c.snaps[snap.Currency] = &cp
	return nil
}

func (c *fakeCache) Get(ctx context.Context, currency string, ttl time.Duration) (*domain.Snapshot, error) {
	snap, ok := c.snaps[currency]
	if !ok {
		return nil, nil
	}
	cp := *snap
	return &cp, nil
}

func rawTicker(symbol string, price, vol float64) domain.RawTicker {
	return domain.RawTicker{
		Symbol:      symbol,
		LastPrice:   fmt.Sprintf("%g", price),
		OpenPrice:   fmt.Sprintf("%g", price),
		QuoteVolume: fmt.Sprintf("%g", vol),
	}
}

func newTestMarketService(src *fakeSource, cache domain.SnapshotCache) *MarketService {
	return NewMarketService(src, cache, zap.NewNop())
}

func TestSanitizeCurrency(t *testing.T) {
	cases := map[string]string{
		"usd": "usd",
		"EUR": "eur",
		"gbp": "usd",
		"":    "usd",
	}
	for in, want := range cases {
		if got := SanitizeCurrency(in); got != want {
			t.Errorf("SanitizeCurrency(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadPage_SecondPageIsRanks31To60(t *testing.T) {
	// 90 pairs with strictly descending volume so the rank order is known.
	var tickers []domain.RawTicker
	for i := 0; i < 90; i++ {
		tickers = append(tickers, rawTicker(fmt.Sprintf("C%02dUSDT", i), 10, float64(9000-i*100)))
	}
	src := &fakeSource{tickers: tickers}
	svc := newTestMarketService(src, newFakeCache())

	snap, err := svc.LoadPage(context.Background(), 2, 30, "usd")
	if err != nil {
		t.Fatalf("LoadPage: %v", err)
	}
	if len(snap.Entries) != 30 {
		t.Fatalf("got %d entries, want 30", len(snap.Entries))
	}
	if got, want := snap.Entries[0].ID, "c30"; got != want {
		t.Errorf("first entry = %q, want %q", got, want)
	}
	if got, want := snap.Entries[29].ID, "c59"; got != want {
		t.Errorf("last entry = %q, want %q", got, want)
	}
	if snap.Page != 2 || snap.PerPage != 30 {
		t.Errorf("snapshot records page %d/%d, want 2/30", snap.Page, snap.PerPage)
	}
	if snap.Stale {
		t.Error("fresh snapshot flagged stale")
	}
}

func TestLoadPage_FiltersLeveragedAndNonUSDT(t *testing.T) {
	src := &fakeSource{tickers: []domain.RawTicker{
		rawTicker("BTCUSDT", 50000, 900),
		rawTicker("ETHBTC", 0.05, 800),     // wrong quote asset
		rawTicker("BTCUPUSDT", 100, 700),   // leveraged token
		rawTicker("ETHDOWNUSDT", 12, 600),  // leveraged token
		rawTicker("GALABULLUSDT", 1, 500),  // leveraged token
		rawTicker("API3USDT", 2, 400),      // digit inside the base is fine
		rawTicker("ATOM3LUSDT", 3, 300),    // leveraged token
		rawTicker("ATOM3SUSDT", 3, 200),    // leveraged token
	}}
	svc := newTestMarketService(src, newFakeCache())

	snap, err := svc.LoadPage(context.Background(), 1, 30, "usd")
	if err != nil {
		t.Fatalf("LoadPage: %v", err)
	}

	got := make([]string, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		got = append(got, e.ID)
	}
	want := []string{"btc", "api3"}
	if len(got) != len(want) {
		t.Fatalf("entries = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entries = %v, want %v", got, want)
		}
	}
}

func TestLoadPage_RetriesThenCacheFallback(t *testing.T) {
	src := &fakeSource{tickersErr: errors.New("upstream down")}
	cache := newFakeCache()
	cache.snaps["usd"] = &domain.Snapshot{
		Currency: "usd",
		Entries:  []domain.MarketEntry{{ID: "btc", PriceQuote: 50000}},
	}
	svc := newTestMarketService(src, cache)

	snap, err := svc.LoadPage(context.Background(), 1, 30, "usd")
	if err != nil {
		t.Fatalf("LoadPage: %v", err)
	}
	if src.tickerCalls != FetchRetries {
		t.Errorf("fetch attempts = %d, want %d", src.tickerCalls, FetchRetries)
	}
	if !snap.Stale {
		t.Error("cached fallback not flagged stale")
	}
	if len(snap.Entries) != 1 || snap.Entries[0].ID != "btc" {
		t.Errorf("unexpected fallback entries: %+v", snap.Entries)
	}

	// The fallback must also become the current snapshot.
	cur := svc.Current()
	if cur == nil || !cur.Stale {
		t.Error("fallback snapshot not installed as current")
	}
}

func TestLoadPage_CacheFallbackKeepsConversionFactor(t *testing.T) {
	src := &fakeSource{prices: map[string]float64{"EURUSDT": 1.25}}
	cache := newFakeCache()
	cache.snaps["eur"] = &domain.Snapshot{
		Currency: "eur",
		Entries:  []domain.MarketEntry{{ID: "btc", PriceQuote: 50000, ConvertedPrice: 40000}},
	}
	svc := newTestMarketService(src, cache)

	// Warm the factor cache, then take the ticker feed down.
	if f := svc.ConversionFactor(context.Background(), "eur"); f != 0.8 {
		t.Fatalf("factor = %v, want 0.8", f)
	}
	src.tickersErr = errors.New("upstream down")

	if _, err := svc.LoadPage(context.Background(), 1, 30, "eur"); err != nil {
		t.Fatalf("LoadPage: %v", err)
	}

	// Ticks on the stale snapshot still convert into EUR.
	svc.ApplyTick(domain.Tick{ID: "btc", Price: 51000})
	got := svc.Current().Entries[0].ConvertedPrice
	if want := 51000 * 0.8; got != want {
		t.Fatalf("converted price = %v, want %v", got, want)
	}
}

func TestLoadPage_ErrorWhenNoCache(t *testing.T) {
	src := &fakeSource{tickersErr: errors.New("upstream down")}
	svc := newTestMarketService(src, newFakeCache())

	if _, err := svc.LoadPage(context.Background(), 1, 30, "usd"); err == nil {
		t.Fatal("expected error when fetch fails and cache is empty")
	}
}

func TestLoadPage_DecoratesTopSixOnly(t *testing.T) {
	var tickers []domain.RawTicker
	klines := make(map[string][]float64)
	for i := 0; i < 10; i++ {
		sym := fmt.Sprintf("C%02dUSDT", i)
		tickers = append(tickers, rawTicker(sym, 10, float64(1000-i)))
		klines[sym] = []float64{1, 2, 3}
	}
	src := &fakeSource{tickers: tickers, klines: klines}
	svc := newTestMarketService(src, newFakeCache())

	snap, err := svc.LoadPage(context.Background(), 1, 30, "usd")
	if err != nil {
		t.Fatalf("LoadPage: %v", err)
	}
	for i, e := range snap.Entries {
		if i < 6 && len(e.History) == 0 {
			t.Errorf("entry %d (%s) missing history", i, e.ID)
		}
		if i >= 6 && len(e.History) != 0 {
			t.Errorf("entry %d (%s) unexpectedly has history", i, e.ID)
		}
	}
}

func TestLoadPage_HistoryFailureDoesNotFailPage(t *testing.T) {
	src := &fakeSource{
		tickers:   []domain.RawTicker{rawTicker("BTCUSDT", 50000, 900)},
		klinesErr: errors.New("klines down"),
	}
	svc := newTestMarketService(src, newFakeCache())

	snap, err := svc.LoadPage(context.Background(), 1, 30, "usd")
	if err != nil {
		t.Fatalf("LoadPage: %v", err)
	}
	if len(snap.Entries) != 1 || snap.Entries[0].History != nil {
		t.Errorf("unexpected entries: %+v", snap.Entries)
	}
}

func TestApplyTick_PatchesKnownEntry(t *testing.T) {
	src := &fakeSource{tickers: []domain.RawTicker{rawTicker("BTCUSDT", 50000, 900)}}
	svc := newTestMarketService(src, newFakeCache())
	if _, err := svc.LoadPage(context.Background(), 1, 30, "usd"); err != nil {
		t.Fatalf("LoadPage: %v", err)
	}

	svc.ApplyTick(domain.Tick{ID: "btc", Price: 51000, ChangePct24h: 2, VolumeQuote24h: 950})

	cur := svc.Current()
	e := cur.Entries[0]
	if e.PriceQuote != 51000 || e.ChangePct24h != 2 || e.VolumeQuote24h != 950 {
		t.Errorf("tick not applied: %+v", e)
	}
	if e.ConvertedPrice != 51000 {
		t.Errorf("converted price = %v, want 51000", e.ConvertedPrice)
	}
	// Identity fields stay untouched.
	if e.ID != "btc" || e.Name != "BTC" {
		t.Errorf("identity fields changed: %+v", e)
	}
}

func TestApplyTick_IgnoresUnknownID(t *testing.T) {
	src := &fakeSource{tickers: []domain.RawTicker{rawTicker("BTCUSDT", 50000, 900)}}
	svc := newTestMarketService(src, newFakeCache())
	if _, err := svc.LoadPage(context.Background(), 1, 30, "usd"); err != nil {
		t.Fatalf("LoadPage: %v", err)
	}
	before := svc.Current()

	svc.ApplyTick(domain.Tick{ID: "doge", Price: 1})

	after := svc.Current()
	if len(after.Entries) != len(before.Entries) {
		t.Fatalf("entry count changed: %d -> %d", len(before.Entries), len(after.Entries))
	}
	if after.Entries[0].PriceQuote != before.Entries[0].PriceQuote {
		t.Error("unknown tick mutated the snapshot")
	}
}

func TestApplyTick_BeforeFirstLoadIsNoop(t *testing.T) {
	svc := newTestMarketService(&fakeSource{}, newFakeCache())
	svc.ApplyTick(domain.Tick{ID: "btc", Price: 1})
	if svc.Current() != nil {
		t.Fatal("snapshot appeared out of nowhere")
	}
}

func TestConversionFactor_EURCachedFiveMinutes(t *testing.T) {
	src := &fakeSource{prices: map[string]float64{"EURUSDT": 1.25}}
	svc := newTestMarketService(src, newFakeCache())

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.timeNow = func() time.Time { return now }

	f := svc.ConversionFactor(context.Background(), "eur")
	if f != 1/1.25 {
		t.Fatalf("factor = %v, want %v", f, 1/1.25)
	}

	// Within the TTL no second lookup happens.
	now = now.Add(4 * time.Minute)
	svc.ConversionFactor(context.Background(), "eur")
	if src.priceCalls != 1 {
		t.Fatalf("price lookups = %d, want 1", src.priceCalls)
	}

	// Past the TTL the factor is refreshed.
	now = now.Add(2 * time.Minute)
	svc.ConversionFactor(context.Background(), "eur")
	if src.priceCalls != 2 {
		t.Fatalf("price lookups = %d, want 2", src.priceCalls)
	}
}

func TestConversionFactor_USDNeedsNoLookup(t *testing.T) {
	src := &fakeSource{}
	svc := newTestMarketService(src, newFakeCache())
	if f := svc.ConversionFactor(context.Background(), "usd"); f != 1 {
		t.Fatalf("factor = %v, want 1", f)
	}
	if src.priceCalls != 0 {
		t.Fatalf("price lookups = %d, want 0", src.priceCalls)
	}
}

func TestConversionFactor_FailureDegradesUncached(t *testing.T) {
	src := &fakeSource{priceErr: errors.New("price down")}
	svc := newTestMarketService(src, newFakeCache())

	if f := svc.ConversionFactor(context.Background(), "eur"); f != 1 {
		t.Fatalf("factor = %v, want 1", f)
	}

	// The failure must not be cached: the next call retries.
	src.priceErr = nil
	src.prices = map[string]float64{"EURUSDT": 2}
	if f := svc.ConversionFactor(context.Background(), "eur"); f != 0.5 {
		t.Fatalf("factor = %v, want 0.5", f)
	}
}

func TestGlobalStats_BTCDominance(t *testing.T) {
	src := &fakeSource{tickers: []domain.RawTicker{
		rawTicker("BTCUSDT", 50000, 400),
		rawTicker("ETHUSDT", 3000, 500),
		rawTicker("SOLUSDT", 150, 100),
		rawTicker("ETHBTC", 0.05, 9999), // ignored, wrong quote
	}}
	svc := newTestMarketService(src, newFakeCache())

	stats, err := svc.GlobalStats(context.Background())
	if err != nil {
		t.Fatalf("GlobalStats: %v", err)
	}
	if stats.TotalVolumeQuote24h != 1000 {
		t.Errorf("total volume = %v, want 1000", stats.TotalVolumeQuote24h)
	}
	if stats.BTCDominancePct != 40 {
		t.Errorf("btc dominance = %v, want 40", stats.BTCDominancePct)
	}
}

func TestSearch_MatchesAndLimits(t *testing.T) {
	var symbols []string
	for i := 0; i < 25; i++ {
		symbols = append(symbols, fmt.Sprintf("COIN%02dUSDT", i))
	}
	symbols = append(symbols, "BTCUSDT")
	src := &fakeSource{symbols: symbols}
	svc := newTestMarketService(src, newFakeCache())

	out, err := svc.Search(context.Background(), "coin")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(out) != 10 {
		t.Fatalf("got %d results, want 10", len(out))
	}

	out, err = svc.Search(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(out) != 1 || out[0].ID != "btc" {
		t.Fatalf("unexpected results: %+v", out)
	}
}

func TestCoinSignal(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	src := &fakeSource{klines: map[string][]float64{"BTCUSDT": closes}}
	svc := newTestMarketService(src, newFakeCache())

	series, score, err := svc.CoinSignal(context.Background(), "btc", "", 0)
	if err != nil {
		t.Fatalf("CoinSignal: %v", err)
	}
	if len(series.SMAFast) != len(closes) {
		t.Errorf("series length = %d, want %d", len(series.SMAFast), len(closes))
	}
	if score.Score < 0 || score.Score > 100 {
		t.Errorf("score %d out of range", score.Score)
	}
	if !score.TrendUp {
		t.Error("monotone uptrend should report trend up")
	}
}

func TestCoinSignal_EmptyHistory(t *testing.T) {
	src := &fakeSource{klines: map[string][]float64{}}
	svc := newTestMarketService(src, newFakeCache())

	if _, _, err := svc.CoinSignal(context.Background(), "btc", "1h", 300); err == nil {
		t.Fatal("expected error for empty history")
	}
}
