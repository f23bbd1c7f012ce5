package events

import (
	"context"
	"fmt"

	"trade_agent/internal/modules/config"
	"trade_agent/internal/modules/events/service"
	"trade_agent/internal/modules/postgres"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func Module() fx.Option {
	return fx.Module("events",
		fx.Provide(
			NewSink,
			service.NewPublisher,
		),
		fx.Invoke(
			func(lc fx.Lifecycle, p *service.Publisher) {
				ctx, cancel := context.WithCancel(context.Background())
				lc.Append(fx.Hook{
					OnStart: func(context.Context) error {
						go p.Run(ctx)
						return nil
					},
					OnStop: func(stopCtx context.Context) error {
						defer cancel()
						return p.Close(stopCtx)
					},
				})
			},
		),
	)
}

// NewSink connects the configured backend.
func NewSink(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (service.Sink, error) {
	switch cfg.Events.Backend {
	case "pg":
		m, err := postgres.Connect(context.Background(), cfg)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.StopHook(m.Close))
		log.Info("events: postgres", zap.String("table", cfg.Events.Table), zap.String("channel", cfg.Events.NotifyChannel))
		return service.NewPgSink(m, cfg.Events.Table, cfg.Events.NotifyChannel), nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis: ping: %w", err)
		}
		lc.Append(fx.StopHook(rdb.Close))
		log.Info("events: redis", zap.String("stream", cfg.Events.Stream))
		return service.NewRedisSink(rdb, cfg.Events.Stream), nil
	case "log", "":
		return service.NewLogSink(log), nil
	default:
		return nil, fmt.Errorf("events: unknown backend %q", cfg.Events.Backend)
	}
}
