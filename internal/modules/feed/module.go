package feed

import (
	"context"
	"errors"

	"trade_agent/internal/modules/config"
	"trade_agent/internal/modules/feed/service"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ServiceNotifier is implemented by the telegram module.
type ServiceNotifier interface {
	SendService(ctx context.Context, format string, args ...any)
}

// Module runs the market data connection for the lifetime of the app.
func Module() fx.Option {
	return fx.Module("feed",
		fx.Provide(
			service.NewClient,
		),
		fx.Invoke(run),
	)
}

func Subscriptions(cfg *config.Config) []string {
	subs := append([]string(nil), cfg.Feed.Instruments...)
	if cfg.Feed.Benchmark != "" {
		subs = append(subs, cfg.Feed.Benchmark)
	}
	return subs
}

func run(lc fx.Lifecycle, sd fx.Shutdowner, cfg *config.Config, c *service.Client, n ServiceNotifier, log *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				err := c.Connect(ctx, Subscriptions(cfg))
				if errors.Is(err, service.ErrFeedFailed) {
					log.Error("feed failed, stopping agent", zap.Int("max_attempts", cfg.Feed.MaxAttempts))
					n.SendService(ctx, "feed FAILED after %d reconnect attempts, agent is shutting down", cfg.Feed.MaxAttempts)
					_ = sd.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}
