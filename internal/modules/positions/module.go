package positions

import (
	"trade_agent/internal/modules/positions/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("positions",
		fx.Provide(
			service.NewManager,
		),
	)
}
