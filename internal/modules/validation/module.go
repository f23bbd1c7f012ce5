package validation

import (
	"trade_agent/internal/modules/validation/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("validation",
		fx.Provide(
			service.NewValidator,
		),
	)
}
