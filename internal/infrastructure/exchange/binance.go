package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/vitos/crypto_market_pulse/internal/domain"
)

const (
	DefaultBaseURL = "https://api.binance.com/api/v3"
	DefaultWSURL   = "wss://stream.binance.com:9443/ws"
)

// BinanceAdapter talks to a Binance-shaped market-data REST API. The
// base URL is configurable because deployments usually point it at a
// same-origin proxy rather than the exchange itself.
type BinanceAdapter struct {
	baseURL string
	client  *http.Client
}

func NewBinanceAdapter(baseURL string) *BinanceAdapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &BinanceAdapter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 12 * time.Second},
	}
}

func (b *BinanceAdapter) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("upstream %s: HTTP %d: %s", path, resp.StatusCode, truncate(body, 200))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("upstream %s: decode: %w", path, err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// GetTickers24h returns the raw 24h ticker rows for the whole universe.
func (b *BinanceAdapter) GetTickers24h(ctx context.Context) ([]domain.RawTicker, error) {
	var tickers []domain.RawTicker
	if err := b.getJSON(ctx, "/ticker/24hr", &tickers); err != nil {
		return nil, err
	}
	return tickers, nil
}

// GetTicker returns the 24h ticker row for a single symbol.
func (b *BinanceAdapter) GetTicker(ctx context.Context, symbol string) (*domain.RawTicker, error) {
	var t domain.RawTicker
	if err := b.getJSON(ctx, "/ticker/24hr?symbol="+url.QueryEscape(symbol), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetPrice returns the last price for a symbol ({"price": "..."}).
func (b *BinanceAdapter) GetPrice(ctx context.Context, symbol string) (float64, error) {
	var out struct {
		Price string `json:"price"`
	}
	if err := b.getJSON(ctx, "/ticker/price?symbol="+url.QueryEscape(symbol), &out); err != nil {
		return 0, err
	}
	p, err := strconv.ParseFloat(out.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("price %s: %w", symbol, err)
	}
	return p, nil
}

func (b *BinanceAdapter) klinesPath(symbol, interval string, limit int) string {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))
	return "/klines?" + q.Encode()
}

// GetKlines returns OHLCV candles, oldest first.
// Rows are heterogeneous arrays: [openTime, "open", "high", "low",
// "close", "volume", closeTime, ...] with numeric times and string prices.
func (b *BinanceAdapter) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	var rows [][]json.RawMessage
	if err := b.getJSON(ctx, b.klinesPath(symbol, interval, limit), &rows); err != nil {
		return nil, err
	}

	candles := make([]domain.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		var openTime int64
		if err := json.Unmarshal(row[0], &openTime); err != nil {
			continue
		}
		c := domain.Candle{Time: openTime}
		var ok bool
		if c.Open, ok = rawFloat(row[1]); !ok {
			continue
		}
		if c.High, ok = rawFloat(row[2]); !ok {
			continue
		}
		if c.Low, ok = rawFloat(row[3]); !ok {
			continue
		}
		if c.Close, ok = rawFloat(row[4]); !ok {
			continue
		}
		c.Volume, _ = rawFloat(row[5])
		candles = append(candles, c)
	}
	return candles, nil
}

// GetKlineCloses returns just the close prices, oldest first.
func (b *BinanceAdapter) GetKlineCloses(ctx context.Context, symbol, interval string, limit int) ([]float64, error) {
	candles, err := b.GetKlines(ctx, symbol, interval, limit)
	if err != nil {
		return nil, err
	}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return closes, nil
}

// GetExchangeSymbols returns the tradable USDT pair symbols from the
// exchange-info endpoint.
func (b *BinanceAdapter) GetExchangeSymbols(ctx context.Context) ([]string, error) {
	var info struct {
		Symbols []struct {
			Symbol    string `json:"symbol"`
			BaseAsset string `json:"baseAsset"`
			Status    string `json:"status"`
		} `json:"symbols"`
	}
	if err := b.getJSON(ctx, "/exchangeInfo", &info); err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if !domain.IsUSDTPair(s.Symbol) || domain.IsLeveraged(s.Symbol) {
			continue
		}
		symbols = append(symbols, s.Symbol)
	}
	return symbols, nil
}

// rawFloat parses a JSON value that may arrive as "123.45" or 123.45.
func rawFloat(raw json.RawMessage) (float64, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	return 0, false
}
