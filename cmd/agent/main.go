package main

import (
	"trade_agent/internal/modules/bootstrap"
	"trade_agent/internal/modules/config"
	"trade_agent/internal/modules/events"
	"trade_agent/internal/modules/execution"
	"trade_agent/internal/modules/feed"
	"trade_agent/internal/modules/health"
	"trade_agent/internal/modules/market"
	"trade_agent/internal/modules/positions"
	"trade_agent/internal/modules/risk"
	"trade_agent/internal/modules/screening"
	"trade_agent/internal/modules/strategy"
	telegram "trade_agent/internal/modules/telegram_bot"
	tgsvc "trade_agent/internal/modules/telegram_bot/service"
	"trade_agent/internal/modules/validation"
	"trade_agent/internal/runner"
	"trade_agent/pkg/logger"
	"trade_agent/pkg/tracing"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	fx.New(options()...).Run()
}

func options() []fx.Option {
	return []fx.Option{
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		config.Module(),
		fx.Provide(
			newLogger,
			func(t *tgsvc.Telegram) feed.ServiceNotifier { return t },
		),
		fx.Invoke(initTracing),
		health.Module(),
		telegram.Module(),
		feed.Module(),
		market.Module(),
		bootstrap.Module(),
		strategy.Module(),
		validation.Module(),
		screening.Module(),
		risk.Module(),
		execution.Module(),
		positions.Module(),
		events.Module(),
		runner.Module(),
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger.SetServiceName(cfg.Service.Name)
	log, err := logger.New(cfg.Service.LogLevel, cfg.Service.LogJSON)
	if err != nil {
		return nil, err
	}
	log.Info("config loaded", zap.String("effective", cfg.Dump()))
	return log, nil
}

func initTracing(lc fx.Lifecycle, cfg *config.Config) error {
	tracing.SetServiceName(cfg.Service.Name)
	_, closer, err := tracing.InitTracer(tracing.Config{
		Enabled:    cfg.Tracing.Enabled,
		Host:       cfg.Tracing.Host,
		Port:       cfg.Tracing.Port,
		SampleRate: cfg.Tracing.SampleRate,
	})
	if err != nil {
		return err
	}
	lc.Append(fx.StopHook(closer))
	return nil
}
