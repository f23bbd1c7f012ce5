package service

import (
	"trade_agent/internal/modules/config"
	validation "trade_agent/internal/modules/validation/service"

	"go.uber.org/zap"
)

const Stage = "screening"

type Screener struct {
	*validation.Pipeline
}

func NewScreener(cfg *config.Config, log *zap.Logger) *Screener {
	return NewScreenerWithScorer(cfg, log, HeuristicScorer{})
}

// NewScreenerWithScorer swaps the scoring model.
func NewScreenerWithScorer(cfg *config.Config, log *zap.Logger, scorer Scorer) *Screener {
	p := validation.NewPipeline(log.Named(Stage), Stage, Checkers(cfg, scorer),
		validation.WithMandatory(CheckVaR),
		validation.WithFailSafe(cfg.Screening.FailSafe),
		validation.WithDisabled(cfg.Screening.Disabled...),
	)
	log.Info("screening pipeline", zap.Strings("checkers", p.Names()), zap.Bool("fail_safe", cfg.Screening.FailSafe))
	return &Screener{Pipeline: p}
}
