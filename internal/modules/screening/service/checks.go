package service

import (
	"fmt"
	"math"
	"sort"

	"trade_agent/internal/models"
	"trade_agent/internal/modules/config"
	strategy "trade_agent/internal/modules/strategy/service"
	validation "trade_agent/internal/modules/validation/service"
)

const CheckVaR = "var"

// varChecker caps the estimated loss of all open positions plus the candidate.
// Per position the estimate is the larger of the loss at stop and the parametric VaR z·σ·notional.
type varChecker struct {
	limitPct float64
	z        float64
	lookback int
}

func (varChecker) Name() string { return CheckVaR }

func (c varChecker) Evaluate(in validation.Input) models.CheckResult {
	eq := in.Risk.Equity
	if eq <= 0 {
		return models.Fail(c.Name(), "no equity")
	}
	if in.Qty <= 0 {
		return models.Fail(c.Name(), "candidate not sized")
	}
	atStop := in.Qty * in.Signal.RiskDist()
	parametric := c.z * returnsStdDev(in.Bars, c.lookback) * in.Qty * in.Signal.Entry
	cand := math.Max(atStop, parametric)

	total := in.Risk.OpenRisk + cand
	limit := eq * c.limitPct / 100
	if total > limit {
		return models.Fail(c.Name(), fmt.Sprintf("risk %.2f > limit %.2f (%.1f%%)", total, limit, c.limitPct))
	}
	return models.Pass(c.Name(), fmt.Sprintf("risk %.2f of %.2f", total, limit))
}

func returnsStdDev(bars []models.Candle, n int) float64 {
	rs := strategy.Returns(bars)
	if n > 0 && len(rs) > n {
		rs = rs[len(rs)-n:]
	}
	if len(rs) < 2 {
		return 0
	}
	return strategy.StdDev(rs)
}

// breadthChecker: a signal must not fight the tracked universe.
type breadthChecker struct{ minSize int }

func (breadthChecker) Name() string { return "breadth" }

func (c breadthChecker) Evaluate(in validation.Input) models.CheckResult {
	m := in.Market
	if m.BreadthSize < c.minSize || m.BreadthSize == 0 {
		return models.Pass(c.Name(), fmt.Sprintf("skipped: universe %d < %d", m.BreadthSize, c.minSize))
	}
	with, against := m.BreadthUp, m.BreadthDown
	if in.Signal.Direction == models.DirShort {
		with, against = against, with
	}
	if against > with {
		return models.Fail(c.Name(), fmt.Sprintf("breadth up %.2f down %.2f", m.BreadthUp, m.BreadthDown))
	}
	return models.Pass(c.Name(), fmt.Sprintf("breadth up %.2f down %.2f", m.BreadthUp, m.BreadthDown))
}

// trendFilter: close on the signal side of VWAP with a rising (falling) EMA.
type trendFilter struct {
	period int
}

func (trendFilter) Name() string { return "trend_filter" }

func (c trendFilter) Evaluate(in validation.Input) models.CheckResult {
	closes := strategy.Closes(in.Bars)
	emas := strategy.EMASeries(closes, c.period)
	if len(emas) < 6 {
		return models.Pass(c.Name(), "skipped: short series")
	}
	sign := in.Signal.Direction.Sign()
	slope := emas[len(emas)-1] - emas[len(emas)-6]
	if slope*sign < 0 {
		return models.Fail(c.Name(), fmt.Sprintf("EMA%d slope %.6f against signal", c.period, slope))
	}
	px := closes[len(closes)-1]
	vwap := strategy.VWAP(in.Bars, c.period)
	if vwap > 0 && (px-vwap)*sign < 0 {
		return models.Fail(c.Name(), fmt.Sprintf("close %.6f vs vwap %.6f", px, vwap))
	}
	return models.Pass(c.Name(), fmt.Sprintf("slope %.6f vwap %.6f", slope, vwap))
}

// squeezeFilter rejects entries after volatility has already expanded: the bandwidth of
// the bar before the signal must not rank in the top percentile of the lookback.
type squeezeFilter struct {
	bbPeriod   int
	bbK        float64
	lookback   int
	percentile float64
}

func (squeezeFilter) Name() string { return "squeeze" }

func (c squeezeFilter) Evaluate(in validation.Input) models.CheckResult {
	bw := strategy.BandWidthSeries(strategy.Closes(in.Bars), c.bbPeriod, c.bbK)
	if len(bw) < 10 {
		return models.Pass(c.Name(), "skipped: short series")
	}
	hist := bw[:len(bw)-1]
	if c.lookback > 0 && len(hist) > c.lookback {
		hist = hist[len(hist)-c.lookback:]
	}
	rank := percentRank(hist, hist[len(hist)-1])
	if rank >= 1-c.percentile {
		return models.Fail(c.Name(), fmt.Sprintf("bandwidth rank %.2f, volatility already expanded", rank))
	}
	if rank <= c.percentile {
		return models.Pass(c.Name(), fmt.Sprintf("squeeze release, rank %.2f", rank))
	}
	return models.Pass(c.Name(), fmt.Sprintf("bandwidth rank %.2f", rank))
}

// percentRank is the fraction of values strictly below x.
func percentRank(values []float64, x float64) float64 {
	if len(values) == 0 {
		return 0
	}
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	i := sort.SearchFloat64s(s, x)
	return float64(i) / float64(len(s))
}

// srConfluence rejects entries pressed against an opposing swing level.
type srConfluence struct {
	pivotWindow int
	tolPct      float64
}

func (srConfluence) Name() string { return "sr_confluence" }

func (c srConfluence) Evaluate(in validation.Input) models.CheckResult {
	s := in.Signal
	ps := strategy.Pivots(in.Bars, c.pivotWindow)
	if len(ps) == 0 {
		return models.Pass(c.Name(), "skipped: no swing levels")
	}
	sign := s.Direction.Sign()
	nearest := math.Inf(1)
	for _, p := range ps {
		// resistance above a long entry, support below a short one
		if p.High != (sign > 0) {
			continue
		}
		d := (p.Price - s.Entry) * sign
		if d > 0 && d < nearest {
			nearest = d
		}
	}
	if math.IsInf(nearest, 1) {
		return models.Pass(c.Name(), "clear path")
	}
	if nearest/s.Entry < c.tolPct {
		return models.Fail(c.Name(), fmt.Sprintf("opposing level %.6f away", nearest))
	}
	return models.Pass(c.Name(), fmt.Sprintf("opposing level %.6f away", nearest))
}

// scoreChecker enforces the minimum Scorer output.
type scoreChecker struct {
	scorer   Scorer
	minScore float64
	emaP     int
	bbP      int
	bbK      float64
}

func (scoreChecker) Name() string { return "score" }

func (c scoreChecker) Evaluate(in validation.Input) models.CheckResult {
	f := ExtractFeatures(in, c.emaP, c.bbP, c.bbK)
	sc := c.scorer.Score(f)
	if sc < c.minScore {
		return models.Fail(c.Name(), fmt.Sprintf("score %.1f < %.1f", sc, c.minScore))
	}
	return models.Pass(c.Name(), fmt.Sprintf("score %.1f", sc))
}

// Checkers is the screening order. VaR runs first so it is never skipped by an earlier failure.
func Checkers(cfg *config.Config, scorer Scorer) []validation.Checker {
	s := cfg.Screening
	return []validation.Checker{
		varChecker{limitPct: s.VaRLimitPct, z: s.VaRZ, lookback: s.VaRLookback},
		breadthChecker{minSize: s.BreadthMinSize},
		trendFilter{period: s.TrendEMA},
		squeezeFilter{bbPeriod: cfg.Strategy.BBPeriod, bbK: cfg.Strategy.BBStdDev, lookback: s.SqueezeLookback, percentile: s.SqueezePercentile},
		srConfluence{pivotWindow: cfg.Strategy.PivotWindow, tolPct: s.SRTolerancePct},
		scoreChecker{scorer: scorer, minScore: s.MinScore, emaP: cfg.Strategy.EMASlow, bbP: cfg.Strategy.BBPeriod, bbK: cfg.Strategy.BBStdDev},
	}
}
