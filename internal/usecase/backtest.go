package usecase

// BacktestResult summarises a long-only SMA-crossover replay over one
// close series. Equity is normalised to a starting value of 1.
type BacktestResult struct {
	Equity      float64   `json:"equity"`
	MaxDrawdown float64   `json:"max_drawdown"` // negative fraction, e.g. -0.25
	Trades      int       `json:"trades"`
	Bars        int       `json:"bars"`
	Curve       []float64 `json:"curve"`
}

// Backtest replays a fast/slow SMA crossover: enter long when the fast
// average crosses above the slow one, exit when it crosses below. This
// ignores fees and slippage and exists for illustration, not strategy
// validation.
func Backtest(closes []float64, fast, slow int) BacktestResult {
	smaF := SMA(closes, fast)
	smaS := SMA(closes, slow)

	inPos := false
	entry := 0.0
	equity := 1.0
	trades := 0
	curve := make([]float64, 0, len(closes))

	for i, c := range closes {
		ready := smaF[i].Valid && smaS[i].Valid
		if ready && smaF[i].V > smaS[i].V && !inPos {
			inPos = true
			entry = c
			trades++
		} else if ready && smaF[i].V < smaS[i].V && inPos {
			inPos = false
			equity *= c / entry
		}

		mark := equity
		if inPos {
			mark = equity * (c / entry)
		}
		curve = append(curve, mark)
	}
	if inPos && len(closes) > 0 {
		equity *= closes[len(closes)-1] / entry
	}

	peak := 0.0
	maxDD := 0.0
	for _, v := range curve {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			dd := v/peak - 1
			if dd < maxDD {
				maxDD = dd
			}
		}
	}

	return BacktestResult{
		Equity:      equity,
		MaxDrawdown: maxDD,
		Trades:      trades,
		Bars:        len(closes),
		Curve:       curve,
	}
}
