package config

import (
	"trade_agent/internal/helper"

	"go.uber.org/fx"
)

// Module provides *Config and the trading session derived from it.
func Module() fx.Option {
	return fx.Module("config",
		fx.Provide(
			NewConfig,
			NewSession,
		),
	)
}

func NewSession(cfg *Config) (helper.Session, error) {
	return helper.NewSession(cfg.Session.Timezone, cfg.Session.Open, cfg.Session.Close, cfg.Session.ForceExit)
}
