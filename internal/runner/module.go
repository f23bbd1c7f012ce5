package runner

import (
	"context"

	"trade_agent/internal/models"
	bootstrap "trade_agent/internal/modules/bootstrap/service"
	events "trade_agent/internal/modules/events/service"
	feed "trade_agent/internal/modules/feed/service"
	health "trade_agent/internal/modules/health/service"
	telegram "trade_agent/internal/modules/telegram_bot/service"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			func(p *events.Publisher) EventPublisher { return p },
			func(t *telegram.Telegram) Notifier { return t },
			func(w *bootstrap.Warmuper) Warmer { return w },
			func(c *feed.Client) FeedStatus { return c },
			NewScheduler,
		),
		fx.Invoke(wireHealth, run),
	)
}

func wireHealth(c *feed.Client, h *health.State, t *telegram.Telegram, s *Scheduler) {
	c.OnStateChange(func(_, to feed.State, _ int) { h.SetFeedState(string(to)) })
	c.OnTick(func(tk models.Tick) { h.TouchTick(tk.Ts) })
	t.SetStatusSource(s)
}

func run(lc fx.Lifecycle, s *Scheduler, log *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if err := s.Run(ctx); err != nil {
					log.Error("scheduler stopped", zap.Error(err))
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
