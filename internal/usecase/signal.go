package usecase

import (
	"math"

	"github.com/vitos/crypto_market_pulse/internal/domain"
)

// Score combines the latest indicator values into a bounded 0-100
// ranking signal. Linear point system over a base of 50: trend (fast vs
// slow SMA), RSI bands with an overbought penalty and an oversold-bounce
// bonus, and the MACD histogram sign. This is a heuristic for ordering a
// list, not a prediction.
func Score(smaFast, smaSlow, rsi, macdHist domain.Value) domain.SignalScore {
	score := 50.0
	trendUp := false

	if smaFast.Valid && smaSlow.Valid {
		if smaFast.V > smaSlow.V {
			score += 15
			trendUp = true
		} else {
			score -= 15
		}
	}

	if rsi.Valid {
		r := rsi.V
		switch {
		case r >= 70:
			score -= 5 // overbought
		case r > 55:
			score += 10
		case r <= 30:
			score += 5 // oversold bounce
		case r < 45 && r > 30:
			score -= 10
		}
	}

	if macdHist.Valid {
		if macdHist.V > 0 {
			score += 10
		} else {
			score -= 10
		}
	}

	n := int(math.Round(math.Max(0, math.Min(100, score))))
	return domain.SignalScore{Score: n, TrendUp: trendUp, Advice: advice(n)}
}

// ScoreSeries scores the latest values of a computed indicator series.
func ScoreSeries(s domain.IndicatorSeries) domain.SignalScore {
	return Score(lastValue(s.SMAFast), lastValue(s.SMASlow), lastValue(s.RSI), s.MACDHistLatest)
}

func lastValue(vs []domain.Value) domain.Value {
	if len(vs) == 0 {
		return domain.None()
	}
	return vs[len(vs)-1]
}

func advice(score int) string {
	switch {
	case score >= 75:
		return "strong buy"
	case score >= 60:
		return "buy"
	case score > 40:
		return "neutral"
	case score > 25:
		return "sell"
	default:
		return "strong sell"
	}
}
