package service

import (
	"fmt"

	"trade_agent/internal/models"
	"trade_agent/internal/modules/config"
	strategy "trade_agent/internal/modules/strategy/service"
)

// trend: price must sit on the signal's side of the long EMA.
type trendChecker struct{ period int }

func (trendChecker) Name() string { return "trend" }

func (c trendChecker) Evaluate(in Input) models.CheckResult {
	ema, ok := strategy.EMA(strategy.Closes(in.Bars), c.period)
	if !ok {
		return skip(c.Name(), fmt.Sprintf("need %d bars for EMA", c.period))
	}
	px, _ := in.lastClose()
	if (px-ema)*in.Signal.Direction.Sign() < 0 {
		return models.Fail(c.Name(), fmt.Sprintf("close %.6f against EMA%d %.6f", px, c.period, ema))
	}
	return models.Pass(c.Name(), fmt.Sprintf("close %.6f with EMA%d %.6f", px, c.period, ema))
}

// relativeStrength compares the instrument return with the benchmark over the lookback.
type relativeStrengthChecker struct{ lookback int }

func (relativeStrengthChecker) Name() string { return "relative_strength" }

func periodReturn(bars []models.Candle, n int) (float64, bool) {
	if n <= 0 || len(bars) <= n {
		return 0, false
	}
	from := bars[len(bars)-1-n].Close
	if from <= 0 {
		return 0, false
	}
	return bars[len(bars)-1].Close/from - 1, true
}

func (c relativeStrengthChecker) Evaluate(in Input) models.CheckResult {
	if len(in.Market.Benchmark) == 0 {
		return skip(c.Name(), "no benchmark")
	}
	ri, ok1 := periodReturn(in.Bars, c.lookback)
	rb, ok2 := periodReturn(in.Market.Benchmark, c.lookback)
	if !ok1 || !ok2 {
		return skip(c.Name(), fmt.Sprintf("need %d bars", c.lookback+1))
	}
	rel := (ri - rb) * in.Signal.Direction.Sign()
	if rel < 0 {
		return models.Fail(c.Name(), fmt.Sprintf("ret %.4f vs benchmark %.4f", ri, rb))
	}
	return models.Pass(c.Name(), fmt.Sprintf("ret %.4f vs benchmark %.4f", ri, rb))
}

// abnormalMove rejects signals right after an outsized bar.
type abnormalMoveChecker struct {
	atrPeriod int
	maxATR    float64
}

func (abnormalMoveChecker) Name() string { return "abnormal_move" }

func (c abnormalMoveChecker) Evaluate(in Input) models.CheckResult {
	atr := strategy.ATR(in.Bars, c.atrPeriod)
	if atr <= 0 {
		return skip(c.Name(), "no ATR")
	}
	last := in.Bars[len(in.Bars)-1]
	if k := last.Range() / atr; k > c.maxATR {
		return models.Fail(c.Name(), fmt.Sprintf("last bar range %.1f ATR > %.1f", k, c.maxATR))
	}
	return models.Pass(c.Name(), "")
}

// volatilityRegime requires ATR% inside the band and a minimum ADX.
type volatilityRegimeChecker struct {
	atrPeriod, adxPeriod int
	minPct, maxPct       float64
	minADX               float64
}

func (volatilityRegimeChecker) Name() string { return "volatility_regime" }

func (c volatilityRegimeChecker) Evaluate(in Input) models.CheckResult {
	atr := strategy.ATR(in.Bars, c.atrPeriod)
	px, ok := in.lastClose()
	if atr <= 0 || !ok || px <= 0 {
		return skip(c.Name(), "no ATR")
	}
	pct := atr / px
	if c.minPct > 0 && pct < c.minPct {
		return models.Fail(c.Name(), fmt.Sprintf("atr%% %.5f < %.5f", pct, c.minPct))
	}
	if c.maxPct > 0 && pct > c.maxPct {
		return models.Fail(c.Name(), fmt.Sprintf("atr%% %.5f > %.5f", pct, c.maxPct))
	}
	adx := strategy.ADX(in.Bars, c.adxPeriod)
	if adx.ADX == 0 {
		return models.Pass(c.Name(), fmt.Sprintf("atr%% %.5f, adx unknown", pct))
	}
	if adx.ADX < c.minADX {
		return models.Fail(c.Name(), fmt.Sprintf("adx %.1f < %.1f", adx.ADX, c.minADX))
	}
	return models.Pass(c.Name(), fmt.Sprintf("atr%% %.5f adx %.1f", pct, adx.ADX))
}

func macroCheckers(cfg *config.Config) []Checker {
	v := cfg.Validation
	return []Checker{
		trendChecker{period: v.TrendEMA},
		relativeStrengthChecker{lookback: v.RelStrengthLookback},
		abnormalMoveChecker{atrPeriod: cfg.Strategy.ATRPeriod, maxATR: v.AbnormalMoveATR},
		volatilityRegimeChecker{
			atrPeriod: cfg.Strategy.ATRPeriod,
			adxPeriod: cfg.Strategy.ADXPeriod,
			minPct:    v.MinATRPct,
			maxPct:    v.MaxATRPct,
			minADX:    v.MinADX,
		},
	}
}
