package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/vitos/crypto_market_pulse/internal/domain"
	"github.com/vitos/crypto_market_pulse/internal/infrastructure/exchange"
	"github.com/vitos/crypto_market_pulse/internal/usecase"
)

type row struct {
	ID      string
	Price   float64
	Pct24h  float64
	RSI     domain.Value
	Score   int
	TrendUp bool
	Advice  string
}

func main() {
	endpoint := flag.String("endpoint", "", "upstream REST endpoint (default Binance)")
	top := flag.Int("top", 20, "number of coins to score")
	interval := flag.String("interval", "1h", "kline interval")
	bars := flag.Int("bars", 300, "kline history length")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	adapter := exchange.NewBinanceAdapter(*endpoint)

	tickers, err := adapter.GetTickers24h(ctx)
	if err != nil {
		fmt.Printf("Error fetching tickers: %v\n", err)
		os.Exit(1)
	}

	var universe []domain.RawTicker
	for _, t := range tickers {
		if domain.IsUSDTPair(t.Symbol) && !domain.IsLeveraged(t.Symbol) {
			universe = append(universe, t)
		}
	}
	sort.Slice(universe, func(i, j int) bool {
		return parseF(universe[i].QuoteVolume) > parseF(universe[j].QuoteVolume)
	})
	if len(universe) > *top {
		universe = universe[:*top]
	}

	var rows []row
	for _, t := range universe {
		closes, err := adapter.GetKlineCloses(ctx, t.Symbol, *interval, *bars)
		if err != nil || len(closes) < usecase.SMASlowPeriod {
			continue // skip per-coin failures, same as the signals view
		}

		series := usecase.ComputeIndicators(closes)
		score := usecase.ScoreSeries(series)

		rows = append(rows, row{
			ID:      domain.CoinID(t.Symbol),
			Price:   closes[len(closes)-1],
			Pct24h:  parseF(t.PriceChangePercent),
			RSI:     last(series.RSI),
			Score:   score.Score,
			TrendUp: score.TrendUp,
			Advice:  score.Advice,
		})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Score > rows[j].Score })

	fmt.Printf("Signals (%s, %d bars, %d coins):\n", *interval, *bars, len(rows))
	fmt.Printf("%-10s | %-12s | %-8s | %-6s | %-5s | %-5s | %s\n",
		"Coin", "Price", "24h %", "RSI", "Score", "Trend", "Advice")
	fmt.Println("--------------------------------------------------------------------------")
	for _, r := range rows {
		rsi := "-"
		if r.RSI.Valid {
			rsi = fmt.Sprintf("%.1f", r.RSI.V)
		}
		trend := "down"
		if r.TrendUp {
			trend = "up"
		}
		fmt.Printf("%-10s | %-12.6g | %-8.2f | %-6s | %-5d | %-5s | %s\n",
			r.ID, r.Price, r.Pct24h, rsi, r.Score, trend, r.Advice)
	}
}

func parseF(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func last(vs []domain.Value) domain.Value {
	if len(vs) == 0 {
		return domain.Value{}
	}
	return vs[len(vs)-1]
}
