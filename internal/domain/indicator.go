package domain

// Value is a single indicator sample. Valid is false while the input
// series is too short to compute the indicator at that index, so
// "insufficient history" is explicit instead of hiding behind NaN.
type Value struct {
	V     float64 `json:"v"`
	Valid bool    `json:"valid"`
}

// Some returns a valid sample.
func Some(v float64) Value { return Value{V: v, Valid: true} }

// None returns the "not enough data" sample.
func None() Value { return Value{} }

// IndicatorSeries holds the indicator outputs for one price series.
// The slices are aligned index-for-index with the input closes.
type IndicatorSeries struct {
	SMAFast        []Value `json:"sma_fast"`
	SMASlow        []Value `json:"sma_slow"`
	RSI            []Value `json:"rsi"`
	MACDHistLatest Value   `json:"macd_hist_latest"`
}

// SignalScore is the bounded heuristic ranking signal. It is a display
// aid, not a prediction.
type SignalScore struct {
	Score   int    `json:"score"` // 0..100
	TrendUp bool   `json:"trend_up"`
	Advice  string `json:"advice"`
}
