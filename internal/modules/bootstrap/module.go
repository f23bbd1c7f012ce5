package bootstrap

import (
	bootstrap "trade_agent/internal/modules/bootstrap/service"
	"trade_agent/internal/modules/config"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("bootstrap",
		fx.Provide(
			NewHistory,
			bootstrap.NewWarmuper,
		),
	)
}

func NewHistory(cfg *config.Config) bootstrap.HistoryProvider {
	if cfg.Bootstrap.URL == "" {
		return bootstrap.NopHistory{}
	}
	return bootstrap.NewHTTPHistory(cfg.Bootstrap.URL, cfg.Bootstrap.Timeout)
}
