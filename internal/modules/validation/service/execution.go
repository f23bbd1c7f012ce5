package service

import (
	"fmt"
	"math"

	"trade_agent/internal/helper"
	"trade_agent/internal/models"
	"trade_agent/internal/modules/config"
	strategy "trade_agent/internal/modules/strategy/service"
)

// timeOfDay blocks entries right after the open, right before the close and outside the session.
type timeOfDayChecker struct {
	session               helper.Session
	avoidOpen, avoidClose int
}

func (timeOfDayChecker) Name() string { return "time_of_day" }

func (c timeOfDayChecker) Evaluate(in Input) models.CheckResult {
	now := in.Market.Now
	if now.IsZero() {
		return models.Fail(c.Name(), "no clock")
	}
	if c.session.AllDay() {
		return models.Pass(c.Name(), "all-day session")
	}
	if !c.session.IsOpen(now) {
		return models.Fail(c.Name(), "session closed")
	}
	if m := c.session.SinceOpen(now); m < c.avoidOpen {
		return models.Fail(c.Name(), fmt.Sprintf("%d min after open < %d", m, c.avoidOpen))
	}
	if m := c.session.ToClose(now); m < c.avoidClose {
		return models.Fail(c.Name(), fmt.Sprintf("%d min before close < %d", m, c.avoidClose))
	}
	return models.Pass(c.Name(), "")
}

// slippage compares the expected fill cost with the stop distance.
type slippageChecker struct {
	slippagePct float64
	maxStopFrac float64
}

func (slippageChecker) Name() string { return "slippage" }

func (c slippageChecker) Evaluate(in Input) models.CheckResult {
	risk := in.Signal.RiskDist()
	if risk <= 0 {
		return models.Fail(c.Name(), "no stop distance")
	}
	exp := in.Signal.Entry * c.slippagePct
	if sp := in.Market.Quote.SpreadPct(); sp > 0 {
		exp = math.Max(exp, in.Signal.Entry*sp/2)
	}
	if frac := exp / risk; c.maxStopFrac > 0 && frac > c.maxStopFrac {
		return models.Fail(c.Name(), fmt.Sprintf("slippage %.3f of stop > %.3f", frac, c.maxStopFrac))
	}
	return models.Pass(c.Name(), fmt.Sprintf("slippage %.6f", exp))
}

// liquidity requires a tight book (when quoted) and non-trivial relative volume.
type liquidityChecker struct {
	maxSpreadPct float64
	minRelVolume float64
	volPeriod    int
}

func (liquidityChecker) Name() string { return "liquidity" }

func (c liquidityChecker) Evaluate(in Input) models.CheckResult {
	sp := in.Market.Quote.SpreadPct()
	if sp >= 0 && c.maxSpreadPct > 0 && sp > c.maxSpreadPct {
		return models.Fail(c.Name(), fmt.Sprintf("spread %.5f > %.5f", sp, c.maxSpreadPct))
	}
	if len(in.Bars) <= c.volPeriod {
		return skip(c.Name(), "short volume history")
	}
	rv := strategy.RelVolume(in.Bars, c.volPeriod)
	if c.minRelVolume > 0 && rv < c.minRelVolume {
		return models.Fail(c.Name(), fmt.Sprintf("rel volume %.2f < %.2f", rv, c.minRelVolume))
	}
	return models.Pass(c.Name(), fmt.Sprintf("spread %.5f relvol %.2f", sp, rv))
}

// feeCoverage: the target move must pay the round-trip fees several times over.
type feeCoverageChecker struct {
	feePct   float64
	minCover float64
}

func (feeCoverageChecker) Name() string { return "fee_coverage" }

func (c feeCoverageChecker) Evaluate(in Input) models.CheckResult {
	s := in.Signal
	fees := 2 * c.feePct * s.Entry
	if fees <= 0 {
		return models.Pass(c.Name(), "no fees")
	}
	cover := s.RewardDist() / fees
	if cover < c.minCover {
		return models.Fail(c.Name(), fmt.Sprintf("reward covers fees %.1fx < %.1fx", cover, c.minCover))
	}
	return models.Pass(c.Name(), fmt.Sprintf("fees covered %.1fx", cover))
}

// capital requires enough free capital for the position the risk budget implies.
type capitalChecker struct {
	risk config.RiskConfig
}

func (capitalChecker) Name() string { return "capital" }

func (c capitalChecker) Evaluate(in Input) models.CheckResult {
	eq := in.Risk.Equity
	if eq <= 0 {
		return models.Fail(c.Name(), "no equity")
	}
	maxExp := eq * c.risk.MaxExposureFraction
	free := maxExp - in.Risk.OpenExposure
	if free <= 0 {
		return models.Fail(c.Name(), fmt.Sprintf("no free capital exposure %.2f", in.Risk.OpenExposure))
	}
	need := in.Qty * in.Signal.Entry
	if need <= 0 {
		rd := in.Signal.RiskDist()
		if rd <= 0 {
			return models.Fail(c.Name(), "no stop distance")
		}
		need = eq * c.risk.RiskFraction / rd * in.Signal.Entry
		if lim := eq * c.risk.MaxPositionFraction; lim > 0 && need > lim {
			need = lim
		}
	}
	// with a lot step, a partially funded entry passes as long as one lot fits;
	// without one the full size must fit
	floor := need
	if lot := c.risk.LotStep * in.Signal.Entry; lot > 0 && lot < need {
		floor = lot
	}
	if free < floor {
		return models.Fail(c.Name(), fmt.Sprintf("free %.2f < need %.2f", free, floor))
	}
	return models.Pass(c.Name(), fmt.Sprintf("free %.2f need %.2f", free, need))
}

func executionCheckers(cfg *config.Config, session helper.Session) []Checker {
	v := cfg.Validation
	return []Checker{
		timeOfDayChecker{session: session, avoidOpen: v.AvoidOpenMinutes, avoidClose: v.AvoidCloseMinutes},
		slippageChecker{slippagePct: cfg.Execution.SlippagePct, maxStopFrac: v.MaxSlippageStopFrac},
		liquidityChecker{maxSpreadPct: v.MaxSpreadPct, minRelVolume: v.MinRelVolume, volPeriod: 20},
		feeCoverageChecker{feePct: cfg.Execution.FeePct, minCover: v.MinFeeCoverage},
		capitalChecker{risk: cfg.Risk},
	}
}
