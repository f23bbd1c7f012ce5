package market

import (
	feed "trade_agent/internal/modules/feed/service"
	"trade_agent/internal/modules/market/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("market",
		fx.Provide(
			service.NewStore,
			func(s *service.Store) *service.PriceTable { return s.Prices },
			func(s *service.Store) *service.Router { return s.NewRouter() },
		),
		fx.Invoke(func(c *feed.Client, r *service.Router) {
			c.OnTick(r.OnTick)
		}),
	)
}
