package service

import (
	"fmt"
	"math"

	"trade_agent/internal/helper"
	"trade_agent/internal/models"
	"trade_agent/internal/modules/config"
	strategy "trade_agent/internal/modules/strategy/service"
)

// patternConsistency re-checks the signal geometry against the series it came from.
type patternConsistencyChecker struct {
	minRR     float64
	atrPeriod int
}

func (patternConsistencyChecker) Name() string { return "pattern_consistency" }

func (c patternConsistencyChecker) Evaluate(in Input) models.CheckResult {
	s := in.Signal
	if s.Direction.Sign() == 0 {
		return models.Fail(c.Name(), "no direction")
	}
	for _, v := range []float64{s.Entry, s.Stop, s.Target} {
		if !helper.Finite(v) || v <= 0 {
			return models.Fail(c.Name(), "non-positive level")
		}
	}
	if s.RiskDist() <= 0 || s.RewardDist() <= 0 {
		return models.Fail(c.Name(), fmt.Sprintf("levels out of order stop=%.6f entry=%.6f target=%.6f", s.Stop, s.Entry, s.Target))
	}
	if c.minRR > 0 && s.RR() < c.minRR {
		return models.Fail(c.Name(), fmt.Sprintf("rr %.2f < %.2f", s.RR(), c.minRR))
	}
	if len(in.Bars) == 0 {
		return models.Fail(c.Name(), "no bars")
	}
	last := in.Bars[len(in.Bars)-1]
	if !s.BarStart.IsZero() && !last.Start.Equal(s.BarStart) {
		return models.Fail(c.Name(), "signal bar is not the last sealed bar")
	}
	if atr := strategy.ATR(in.Bars, c.atrPeriod); atr > 0 && math.Abs(s.Entry-last.Close) > atr {
		return models.Fail(c.Name(), fmt.Sprintf("entry %.6f far from close %.6f", s.Entry, last.Close))
	}
	return models.Pass(c.Name(), fmt.Sprintf("rr %.2f", s.RR()))
}

// multiTimeframe requires the higher timeframe EMA trend to agree with the signal.
type multiTimeframeChecker struct{ fast, slow int }

func (multiTimeframeChecker) Name() string { return "multi_timeframe" }

func (c multiTimeframeChecker) Evaluate(in Input) models.CheckResult {
	closes := strategy.Closes(in.Market.HigherTF)
	fast, ok1 := strategy.EMA(closes, c.fast)
	slow, ok2 := strategy.EMA(closes, c.slow)
	if !ok1 || !ok2 {
		return skip(c.Name(), fmt.Sprintf("higher timeframe has %d bars", len(closes)))
	}
	if (fast-slow)*in.Signal.Direction.Sign() < 0 {
		return models.Fail(c.Name(), fmt.Sprintf("htf ema %.6f/%.6f disagrees", fast, slow))
	}
	return models.Pass(c.Name(), fmt.Sprintf("htf ema %.6f/%.6f", fast, slow))
}

// sentimentExtreme avoids buying into euphoria and selling into panic.
type sentimentExtremeChecker struct{ low, high float64 }

func (sentimentExtremeChecker) Name() string { return "sentiment_extreme" }

func (c sentimentExtremeChecker) Evaluate(in Input) models.CheckResult {
	if !in.Market.HasSentiment {
		return skip(c.Name(), "no sentiment")
	}
	x := in.Market.Sentiment
	switch in.Signal.Direction {
	case models.DirLong:
		if x >= c.high {
			return models.Fail(c.Name(), fmt.Sprintf("sentiment %.1f >= %.1f", x, c.high))
		}
	case models.DirShort:
		if x <= c.low {
			return models.Fail(c.Name(), fmt.Sprintf("sentiment %.1f <= %.1f", x, c.low))
		}
	}
	return models.Pass(c.Name(), fmt.Sprintf("sentiment %.1f", x))
}

func qualityCheckers(cfg *config.Config) []Checker {
	v := cfg.Validation
	return []Checker{
		patternConsistencyChecker{minRR: cfg.Strategy.MinRR, atrPeriod: cfg.Strategy.ATRPeriod},
		multiTimeframeChecker{fast: cfg.Strategy.EMAFast, slow: cfg.Strategy.EMASlow},
		sentimentExtremeChecker{low: v.SentimentLow, high: v.SentimentHigh},
	}
}
