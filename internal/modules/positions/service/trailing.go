package service

import (
	"fmt"

	"trade_agent/internal/models"
	"trade_agent/internal/modules/config"
)

const minImproveR = 0.10

type trailDecision struct {
	NewStop float64
	Move    bool
	Reason  string
}

// updateMFE records the most favourable price seen.
func updateMFE(p *models.Position, price float64) {
	if p.MFE == 0 {
		p.MFE = p.Entry
	}
	if (price-p.MFE)*p.Direction.Sign() > 0 {
		p.MFE = price
	}
}

// decideTrail moves the stop in steps measured in R (initial risk): breakeven, then a
// profit lock, then a trailing distance behind the MFE. One step per call; the stop
// only moves in the trade's favour and by at least minImproveR.
func decideTrail(p *models.Position, cfg config.TrailingConfig) trailDecision {
	R := p.RiskDist
	if !cfg.Enabled || R <= 0 || p.Entry <= 0 {
		return trailDecision{}
	}
	sign := p.Direction.Sign()

	improvesEnough := func(cand float64) bool {
		return (cand-p.Stop)*sign >= minImproveR*R
	}
	mfeR := (p.MFE - p.Entry) * sign / R

	// 1) breakeven
	if !p.MovedToBE && cfg.BETriggerR > 0 && mfeR >= cfg.BETriggerR {
		cand := p.Entry + sign*cfg.BEOffsetR*R
		if improvesEnough(cand) {
			p.MovedToBE = true
			return trailDecision{NewStop: cand, Move: true, Reason: fmt.Sprintf("BE@%.1fR", cfg.BETriggerR)}
		}
	}

	// 2) lock profit
	if !p.LockedProfit && cfg.LockTriggerR > 0 && mfeR >= cfg.LockTriggerR {
		cand := p.Entry + sign*cfg.LockOffsetR*R
		if improvesEnough(cand) {
			p.LockedProfit = true
			return trailDecision{NewStop: cand, Move: true, Reason: fmt.Sprintf("LOCK@%.1fR->%.1fR", cfg.LockTriggerR, cfg.LockOffsetR)}
		}
	}

	// 3) trail behind MFE
	if cfg.TrailTrigger > 0 && cfg.TrailDistR > 0 && mfeR >= cfg.TrailTrigger {
		cand := p.MFE - sign*cfg.TrailDistR*R
		if improvesEnough(cand) {
			p.Trailing = true
			return trailDecision{NewStop: cand, Move: true, Reason: fmt.Sprintf("TRAIL %.1fR", cfg.TrailDistR)}
		}
	}
	return trailDecision{}
}

// exitFor checks the stop before the target, both inclusive.
func exitFor(p models.Position, price float64) (models.ExitReason, bool) {
	sign := p.Direction.Sign()
	if sign == 0 || price <= 0 {
		return "", false
	}
	if (price-p.Stop)*sign <= 0 {
		if p.MovedToBE || p.LockedProfit || p.Trailing {
			return models.ExitTrailing, true
		}
		return models.ExitStop, true
	}
	if p.Target > 0 && (price-p.Target)*sign >= 0 {
		return models.ExitTarget, true
	}
	return "", false
}
