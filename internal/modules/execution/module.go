package execution

import (
	"trade_agent/internal/modules/execution/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("execution",
		fx.Provide(
			service.NewGateway,
		),
	)
}
