package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vitos/crypto_market_pulse/internal/domain"
	"go.uber.org/zap"
)

const (
	// FetchRetries is the number of attempts for the raw ticker fetch
	// before falling back to the snapshot cache.
	FetchRetries = 3

	// CacheTTL is the freshness window for a cached snapshot.
	CacheTTL = 15 * time.Minute

	// factorTTL is the freshness window for a currency conversion factor.
	factorTTL = 5 * time.Minute

	// symbolsTTL is the freshness window for the exchange symbol list.
	symbolsTTL = time.Hour

	// historyTopN is how many top-volume entries get a price history.
	historyTopN = 6

	historyInterval = "1h"
	historyLimit    = 168 // one week of hourly closes

	maxSearchResults = 10
)

var safeCurrencies = map[string]bool{"usd": true, "eur": true}

// SanitizeCurrency maps unknown display currencies to "usd".
func SanitizeCurrency(cur string) string {
	c := strings.ToLower(cur)
	if safeCurrencies[c] {
		return c
	}
	return "usd"
}

type factorEntry struct {
	factor  float64
	fetched time.Time
}

// MarketService maintains the live market snapshot: it pages the 24h
// ticker universe, converts prices into the display currency, decorates
// top entries with recent history, and patches the held snapshot in
// place as live ticks arrive.
//
// The snapshot array has exactly two writers: LoadPage (wholesale
// replace) and ApplyTick (field patches on existing entries). A
// generation counter makes the replace win over any slower concurrent
// load, mirroring abort-on-supersede semantics.
type MarketService struct {
	source domain.MarketData
	cache  domain.SnapshotCache
	logger *zap.Logger

	mu       sync.Mutex
	snapshot *domain.Snapshot
	index    map[string]int // entry ID -> position in snapshot
	factor   float64        // conversion factor applied to the held snapshot
	gen      uint64

	factors    map[string]factorEntry
	symbols    []string
	symbolsExp time.Time

	timeNow func() time.Time // for tests
}

func NewMarketService(source domain.MarketData, cache domain.SnapshotCache, logger *zap.Logger) *MarketService {
	return &MarketService{
		source:  source,
		cache:   cache,
		logger:  logger,
		factor:  1,
		factors: make(map[string]factorEntry),
		timeNow: time.Now,
	}
}

// ConversionFactor returns the multiplicative USDT->currency factor,
// cached for five minutes per currency. A failed lookup degrades to 1
// (prices shown in USDT) and is not cached.
func (s *MarketService) ConversionFactor(ctx context.Context, currency string) float64 {
	cur := SanitizeCurrency(currency)
	if cur == "usd" {
		return 1
	}

	s.mu.Lock()
	if e, ok := s.factors[cur]; ok && s.timeNow().Sub(e.fetched) < factorTTL {
		s.mu.Unlock()
		return e.factor
	}
	s.mu.Unlock()

	// Only EUR needs a lookup: one EURUSDT quote covers every entry.
	price, err := s.source.GetPrice(ctx, "EURUSDT")
	if err != nil || price <= 0 {
		s.logger.Warn("conversion factor lookup failed", zap.String("currency", cur), zap.Error(err))
		return 1
	}
	factor := 1 / price

	s.mu.Lock()
	s.factors[cur] = factorEntry{factor: factor, fetched: s.timeNow()}
	s.mu.Unlock()
	return factor
}

// LoadPage fetches one page of the market universe and installs it as
// the current snapshot. The raw ticker fetch is retried up to
// FetchRetries times; after that the snapshot cache for the currency is
// consulted (15 minute TTL) and, failing that, the fetch error surfaces.
func (s *MarketService) LoadPage(ctx context.Context, page, pageSize int, currency string) (*domain.Snapshot, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 30
	}
	cur := SanitizeCurrency(currency)

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	tickers, err := s.fetchTickersWithRetry(ctx)
	if err != nil {
		if cached := s.cachedFallback(ctx, cur); cached != nil {
			s.logger.Warn("live market fetch failed, serving cached snapshot",
				zap.String("currency", cur), zap.Error(err))
			// Keep tick conversion consistent with the cached entries.
			s.install(gen, cached, s.ConversionFactor(ctx, cur))
			return cached, nil
		}
		return nil, fmt.Errorf("load market page: %w", err)
	}

	ranked := rankTickers(tickers)
	start := (page - 1) * pageSize
	if start > len(ranked) {
		start = len(ranked)
	}
	end := start + pageSize
	if end > len(ranked) {
		end = len(ranked)
	}
	pageTickers := ranked[start:end]

	factor := s.ConversionFactor(ctx, cur)

	entries := make([]domain.MarketEntry, 0, len(pageTickers))
	for _, t := range pageTickers {
		entries = append(entries, normalizeTicker(t, factor))
	}
	s.decorateHistory(ctx, entries)

	snap := &domain.Snapshot{
		Currency:  cur,
		Page:      page,
		PerPage:   pageSize,
		FetchedAt: s.timeNow(),
		Entries:   entries,
	}
	s.install(gen, snap, factor)

	if err := s.cache.Put(ctx, snap); err != nil {
		s.logger.Warn("snapshot cache write failed", zap.String("currency", cur), zap.Error(err))
	}
	return snap, nil
}

func (s *MarketService) fetchTickersWithRetry(ctx context.Context) ([]domain.RawTicker, error) {
	var lastErr error
	for try := 0; try < FetchRetries; try++ {
		tickers, err := s.source.GetTickers24h(ctx)
		if err == nil {
			return tickers, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (s *MarketService) cachedFallback(ctx context.Context, currency string) *domain.Snapshot {
	if s.cache == nil {
		return nil
	}
	cached, err := s.cache.Get(ctx, currency, CacheTTL)
	if err != nil || cached == nil || len(cached.Entries) == 0 {
		return nil
	}
	cached.Stale = true
	return cached
}

// install publishes a snapshot unless a newer load has started since.
func (s *MarketService) install(gen uint64, snap *domain.Snapshot, factor float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return // superseded by a later load
	}
	s.snapshot = snap
	s.factor = factor
	s.index = make(map[string]int, len(snap.Entries))
	for i, e := range snap.Entries {
		s.index[e.ID] = i
	}
}

// rankTickers filters the universe down to clean USDT pairs and sorts
// by descending quote volume.
func rankTickers(tickers []domain.RawTicker) []domain.RawTicker {
	ranked := make([]domain.RawTicker, 0, len(tickers))
	for _, t := range tickers {
		if !domain.IsUSDTPair(t.Symbol) || domain.IsLeveraged(t.Symbol) {
			continue
		}
		ranked = append(ranked, t)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return parseF(ranked[i].QuoteVolume) > parseF(ranked[j].QuoteVolume)
	})
	return ranked
}

func parseF(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func normalizeTicker(t domain.RawTicker, factor float64) domain.MarketEntry {
	base := domain.BaseAsset(t.Symbol)
	price := parseF(t.LastPrice)
	open := parseF(t.OpenPrice)
	vol := parseF(t.QuoteVolume)

	pct := parseF(t.PriceChangePercent)
	if open > 0 {
		pct = (price - open) / open * 100
	}

	return domain.MarketEntry{
		ID:             strings.ToLower(base),
		Name:           base,
		Symbol:         strings.ToLower(base),
		PriceQuote:     price,
		ChangePct24h:   pct,
		VolumeQuote24h: vol,
		ConvertedPrice: price * factor,
		ConvertedVol:   vol * factor,
	}
}

// decorateHistory attaches hourly closes to the highest-volume entries.
// Bounded to the top few as a cost control; a failed fetch leaves that
// entry without history and never fails the page.
func (s *MarketService) decorateHistory(ctx context.Context, entries []domain.MarketEntry) {
	n := historyTopN
	if n > len(entries) {
		n = len(entries)
	}
	for i := 0; i < n; i++ {
		symbol := domain.PairSymbol(entries[i].ID)
		closes, err := s.source.GetKlineCloses(ctx, symbol, historyInterval, historyLimit)
		if err != nil {
			s.logger.Debug("history fetch failed", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		entries[i].History = closes
	}
}

// ApplyTick patches the current snapshot in place. Only price, change
// and volume fields are touched; ticks for IDs outside the snapshot are
// dropped.
func (s *MarketService) ApplyTick(t domain.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil {
		return
	}
	i, ok := s.index[t.ID]
	if !ok {
		return
	}

	e := &s.snapshot.Entries[i]
	e.PriceQuote = t.Price
	e.ChangePct24h = t.ChangePct24h
	e.VolumeQuote24h = t.VolumeQuote24h
	e.ConvertedPrice = t.Price * s.factor
	e.ConvertedVol = t.VolumeQuote24h * s.factor
}

// Current returns a copy of the held snapshot, or nil before the first
// successful load.
func (s *MarketService) Current() *domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil {
		return nil
	}
	out := *s.snapshot
	out.Entries = make([]domain.MarketEntry, len(s.snapshot.Entries))
	copy(out.Entries, s.snapshot.Entries)
	return &out
}

// GetCoin fetches a single asset outside the paged snapshot.
func (s *MarketService) GetCoin(ctx context.Context, id, currency string) (*domain.MarketEntry, error) {
	symbol := domain.PairSymbol(id)
	t, err := s.source.GetTicker(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("fetch coin %s: %w", id, err)
	}
	factor := s.ConversionFactor(ctx, currency)
	entry := normalizeTicker(*t, factor)
	return &entry, nil
}

// GlobalStats aggregates 24h quote volume and BTC dominance across the
// USDT universe.
func (s *MarketService) GlobalStats(ctx context.Context) (*domain.GlobalStats, error) {
	tickers, err := s.source.GetTickers24h(ctx)
	if err != nil {
		return nil, fmt.Errorf("global stats: %w", err)
	}

	var total, btc float64
	for _, t := range tickers {
		if !domain.IsUSDTPair(t.Symbol) {
			continue
		}
		qv := parseF(t.QuoteVolume)
		total += qv
		if strings.EqualFold(t.Symbol, "BTCUSDT") {
			btc += qv
		}
	}

	stats := &domain.GlobalStats{TotalVolumeQuote24h: total}
	if total > 0 {
		stats.BTCDominancePct = btc / total * 100
	}
	return stats, nil
}

// Search matches coins by base asset, at most maxSearchResults results.
// The symbol list is fetched lazily and cached for an hour.
func (s *MarketService) Search(ctx context.Context, query string) ([]domain.CoinSummary, error) {
	symbols, err := s.exchangeSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	q := strings.ToLower(strings.TrimSpace(query))
	seen := make(map[string]bool)
	var out []domain.CoinSummary
	for _, sym := range symbols {
		base := domain.BaseAsset(sym)
		id := strings.ToLower(base)
		if seen[id] || !strings.Contains(id, q) {
			continue
		}
		seen[id] = true
		out = append(out, domain.CoinSummary{ID: id, Name: base, Symbol: strings.ToUpper(base)})
		if len(out) >= maxSearchResults {
			break
		}
	}
	return out, nil
}

func (s *MarketService) exchangeSymbols(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	if s.symbols != nil && s.timeNow().Before(s.symbolsExp) {
		symbols := s.symbols
		s.mu.Unlock()
		return symbols, nil
	}
	s.mu.Unlock()

	symbols, err := s.source.GetExchangeSymbols(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.symbols = symbols
	s.symbolsExp = s.timeNow().Add(symbolsTTL)
	s.mu.Unlock()
	return symbols, nil
}

// CoinSignal computes the indicator set and signal score for one coin.
func (s *MarketService) CoinSignal(ctx context.Context, id, interval string, limit int) (*domain.IndicatorSeries, *domain.SignalScore, error) {
	if interval == "" {
		interval = historyInterval
	}
	if limit <= 0 {
		limit = 300
	}
	closes, err := s.source.GetKlineCloses(ctx, domain.PairSymbol(id), interval, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("signal for %s: %w", id, err)
	}
	if len(closes) == 0 {
		return nil, nil, errors.New("no price history")
	}
	series := ComputeIndicators(closes)
	score := ScoreSeries(series)
	return &series, &score, nil
}

// CoinBacktest replays the SMA-crossover strategy over one coin's
// recent history.
func (s *MarketService) CoinBacktest(ctx context.Context, id, interval string, limit, fast, slow int) (*BacktestResult, error) {
	if interval == "" {
		interval = "4h"
	}
	if limit <= 0 {
		limit = 600
	}
	if fast <= 0 {
		fast = SMAFastPeriod
	}
	if slow <= 0 {
		slow = SMASlowPeriod
	}
	closes, err := s.source.GetKlineCloses(ctx, domain.PairSymbol(id), interval, limit)
	if err != nil {
		return nil, fmt.Errorf("backtest for %s: %w", id, err)
	}
	res := Backtest(closes, fast, slow)
	return &res, nil
}
