package service

import (
	"math"

	"trade_agent/internal/models"
	strategy "trade_agent/internal/modules/strategy/service"
	validation "trade_agent/internal/modules/validation/service"
)

// Features is the model input. A learned model would read the same struct.
type Features struct {
	Direction models.Direction
	// TrendGap = close/EMA - 1
	TrendGap float64
	RSI      float64
	// RelVolume = last bar volume / mean of the previous bars
	RelVolume float64
	// PercentB is the close position inside the Bollinger bands (0 = lower, 1 = upper).
	PercentB float64
	HasBands bool
	RR       float64
}

// Scorer maps features to 0..100.
type Scorer interface {
	Score(f Features) float64
}

func ExtractFeatures(in validation.Input, emaPeriod, bbPeriod int, bbK float64) Features {
	closes := strategy.Closes(in.Bars)
	f := Features{
		Direction: in.Signal.Direction,
		RSI:       strategy.RSI(closes, 14),
		RelVolume: strategy.RelVolume(in.Bars, 20),
		RR:        in.Signal.RR(),
	}
	if len(closes) == 0 {
		return f
	}
	px := closes[len(closes)-1]
	if ema, ok := strategy.EMA(closes, emaPeriod); ok && ema > 0 {
		f.TrendGap = px/ema - 1
	}
	if b, ok := strategy.Bollinger(closes, bbPeriod, bbK); ok && b.Upper > b.Lower {
		f.PercentB = (px - b.Lower) / (b.Upper - b.Lower)
		f.HasBands = true
	}
	return f
}

// HeuristicScorer averages five 0..100 factor scores. It is a placeholder for a trained model.
type HeuristicScorer struct{}

func (HeuristicScorer) Score(f Features) float64 {
	sign := f.Direction.Sign()
	if sign == 0 {
		return 0
	}
	factors := []float64{
		trendScore(f.TrendGap * sign),
		momentumScore(f.RSI, sign),
		volumeScore(f.RelVolume),
		bandScore(f.PercentB, f.HasBands, sign),
		rrScore(f.RR),
	}
	var sum float64
	for _, x := range factors {
		sum += x
	}
	return sum / float64(len(factors))
}

// trendScore: 50 at the EMA, 100 at +1% in the trade direction, 0 at -1%.
func trendScore(gap float64) float64 {
	return clamp100(50 + gap*5000)
}

func momentumScore(rsi, sign float64) float64 {
	if sign < 0 {
		rsi = 100 - rsi
	}
	switch {
	case rsi > 80:
		return 30
	case rsi >= 55:
		return 100
	case rsi >= 45:
		return 60
	default:
		return 20
	}
}

func volumeScore(rv float64) float64 {
	switch {
	case rv >= 2:
		return 100
	case rv >= 1.5:
		return 85
	case rv > 1.2:
		return 70
	case rv < 0.8:
		return 30
	default:
		return 50
	}
}

// bandScore prefers entries in the middle-to-outer half of the band on the trade side,
// and penalizes closes already outside the band.
func bandScore(pb float64, ok bool, sign float64) float64 {
	if !ok {
		return 50
	}
	if sign < 0 {
		pb = 1 - pb
	}
	switch {
	case pb > 1.1:
		return 30
	case pb >= 0.5:
		return 100
	case pb >= 0.2:
		return 60
	default:
		return 20
	}
}

func rrScore(rr float64) float64 {
	if rr <= 0 || math.IsNaN(rr) {
		return 0
	}
	return clamp100(rr / 3 * 100)
}

func clamp100(x float64) float64 {
	return math.Max(0, math.Min(100, x))
}
