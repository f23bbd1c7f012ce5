package screening

import (
	"trade_agent/internal/modules/screening/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("screening",
		fx.Provide(
			service.NewScreener,
		),
	)
}
