package service

import (
	"trade_agent/internal/helper"
	"trade_agent/internal/modules/config"

	"go.uber.org/zap"
)

const Stage = "validation"

// DefaultCheckers is the fixed evaluation order: macro, then pattern quality, then execution readiness.
func DefaultCheckers(cfg *config.Config, session helper.Session) []Checker {
	var out []Checker
	out = append(out, macroCheckers(cfg)...)
	out = append(out, qualityCheckers(cfg)...)
	out = append(out, executionCheckers(cfg, session)...)
	return out
}

// Validator is the validation stage pipeline.
type Validator struct {
	*Pipeline
}

func NewValidator(cfg *config.Config, session helper.Session, log *zap.Logger) *Validator {
	p := NewPipeline(log.Named(Stage), Stage, DefaultCheckers(cfg, session),
		WithFailSafe(cfg.Validation.FailSafe),
		WithDisabled(cfg.Validation.Disabled...),
	)
	log.Info("validation pipeline", zap.Strings("checkers", p.Names()), zap.Bool("fail_safe", cfg.Validation.FailSafe))
	return &Validator{Pipeline: p}
}
