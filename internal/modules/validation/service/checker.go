package service

import (
	"trade_agent/internal/models"
)

// Input is everything a checker may look at. The caller builds it once per
// signal from a single market snapshot.
type Input struct {
	Signal models.Signal
	Bars   []models.Candle
	Risk   models.RiskState
	Market models.MarketContext
	// Qty is the proposed position size; zero before sizing.
	Qty float64
}

func (in Input) lastClose() (float64, bool) {
	if len(in.Bars) == 0 {
		return 0, false
	}
	return in.Bars[len(in.Bars)-1].Close, true
}

// Checker is one pass/fail step. Evaluate must not block and must degrade to a
// result (never a panic) when optional data is missing.
type Checker interface {
	Name() string
	Evaluate(in Input) models.CheckResult
}

// CheckerFunc adapts a plain function to Checker.
type CheckerFunc struct {
	ID string
	Fn func(in Input) models.CheckResult
}

func (c CheckerFunc) Name() string                         { return c.ID }
func (c CheckerFunc) Evaluate(in Input) models.CheckResult { return c.Fn(in) }

// skip is the recorded pass for a check that lacks its optional inputs.
func skip(name, why string) models.CheckResult {
	return models.Pass(name, "skipped: "+why)
}
