package usecase

import "github.com/vitos/crypto_market_pulse/internal/domain"

// Default indicator parameters. These match the values used by the
// signals view and are kept here so every consumer agrees on them.
const (
	SMAFastPeriod = 20
	SMASlowPeriod = 50
	RSIPeriod     = 14

	MACDFastPeriod   = 12
	MACDSlowPeriod   = 26
	MACDSignalPeriod = 9
)

// SMA computes the simple moving average over closes (oldest first).
// The result is aligned with the input; indexes before period-1 are
// invalid. A running sum keeps the whole pass O(n).
func SMA(closes []float64, period int) []domain.Value {
	out := make([]domain.Value, len(closes))
	if period <= 0 || len(closes) < period {
		return out
	}
	sum := 0.0
	for i, c := range closes {
		sum += c
		if i >= period {
			sum -= closes[i-period]
		}
		if i >= period-1 {
			out[i] = domain.Some(sum / float64(period))
		}
	}
	return out
}

// EMA computes the exponential moving average with k = 2/(period+1).
// The series is seeded with the first close rather than an SMA of the
// first period closes. That deviates from the textbook seeding and
// produces different values for the first period bars; downstream score
// comparisons depend on it, so it is kept as-is.
func EMA(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	if len(closes) == 0 {
		return out
	}
	k := 2.0 / float64(period+1)
	ema := closes[0]
	out[0] = ema
	for i := 1; i < len(closes); i++ {
		ema = closes[i]*k + ema*(1-k)
		out[i] = ema
	}
	return out
}

// RSI computes the Wilder relative strength index. Fewer than period+1
// closes yields an all-invalid series. A zero average loss maps to 100
// so the output stays defined for monotonically rising input.
func RSI(closes []float64, period int) []domain.Value {
	out := make([]domain.Value, len(closes))
	if period <= 0 || len(closes) < period+1 {
		return out
	}

	gains := make([]float64, len(closes)-1)
	losses := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		diff := closes[i] - closes[i-1]
		if diff > 0 {
			gains[i-1] = diff
		} else {
			losses[i-1] = -diff
		}
	}

	var avgGain, avgLoss float64
	for i := 0; i < period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	// First defined value sits at index period (period deltas consumed).
	out[period] = domain.Some(rsiValue(avgGain, avgLoss))
	for i := period; i < len(gains); i++ {
		avgGain = (avgGain*float64(period-1) + gains[i]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i]) / float64(period)
		out[i+1] = domain.Some(rsiValue(avgGain, avgLoss))
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACDResult holds the three parallel MACD series.
type MACDResult struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// MACD computes the fast-minus-slow EMA difference, its EMA-smoothed
// signal line and the histogram. Histogram[i] == MACD[i] - Signal[i]
// holds exactly at every index.
func MACD(closes []float64, fast, slow, signal int) MACDResult {
	emaFast := EMA(closes, fast)
	emaSlow := EMA(closes, slow)

	macd := make([]float64, len(closes))
	for i := range closes {
		macd[i] = emaFast[i] - emaSlow[i]
	}
	sig := EMA(macd, signal)

	hist := make([]float64, len(closes))
	for i := range macd {
		hist[i] = macd[i] - sig[i]
	}
	return MACDResult{MACD: macd, Signal: sig, Histogram: hist}
}

// ComputeIndicators runs the standard indicator set over one close series.
func ComputeIndicators(closes []float64) domain.IndicatorSeries {
	s := domain.IndicatorSeries{
		SMAFast: SMA(closes, SMAFastPeriod),
		SMASlow: SMA(closes, SMASlowPeriod),
		RSI:     RSI(closes, RSIPeriod),
	}
	if len(closes) > 0 {
		m := MACD(closes, MACDFastPeriod, MACDSlowPeriod, MACDSignalPeriod)
		s.MACDHistLatest = domain.Some(m.Histogram[len(m.Histogram)-1])
	}
	return s
}
