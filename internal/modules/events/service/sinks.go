package service

import (
	"context"
	"fmt"

	"trade_agent/internal/models"
	"trade_agent/pkg/db"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// streamMaxLen bounds the redis stream through XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// PgSink appends to the events table and notifies listeners in the same transaction.
type PgSink struct {
	tx      db.TxManager
	insert  string
	channel string
}

func NewPgSink(tx db.TxManager, table, channel string) *PgSink {
	return &PgSink{
		tx:      tx,
		insert:  fmt.Sprintf("INSERT INTO %s (id, kind, instrument, at, payload) VALUES ($1, $2, $3, $4, $5)", db.Ident(table)),
		channel: channel,
	}
}

func (s *PgSink) Name() string { return "pg" }

func (s *PgSink) Write(ctx context.Context, ev models.Event) error {
	payload, err := Encode(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.ID, err)
	}
	return s.tx.RunMaster(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		if _, err := tx.Exec(ctxTx, s.insert, ev.ID, string(ev.Kind), ev.InstID, ev.At, payload); err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		if _, err := tx.Exec(ctxTx, "SELECT pg_notify($1, $2)", s.channel, string(payload)); err != nil {
			return fmt.Errorf("notify: %w", err)
		}
		return nil
	})
}

type redisStream interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink appends to a capped stream for replay and publishes on a channel
// named after it for live subscribers.
type RedisSink struct {
	rdb    redisStream
	stream string
}

func NewRedisSink(rdb redisStream, stream string) *RedisSink {
	return &RedisSink{rdb: rdb, stream: stream}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Write(ctx context.Context, ev models.Event) error {
	payload, err := Encode(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.ID, err)
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"id":   ev.ID,
			"kind": string(ev.Kind),
			"data": payload,
		},
	}
	if err := s.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: xadd %s: %w", s.stream, err)
	}
	if err := s.rdb.Publish(ctx, s.stream, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", s.stream, err)
	}
	return nil
}

// LogSink writes events to the process log only.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink { return &LogSink{log: log} }

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Write(_ context.Context, ev models.Event) error {
	payload, err := Encode(ev)
	if err != nil {
		return err
	}
	s.log.Info("event",
		zap.String("kind", string(ev.Kind)),
		zap.String("inst", ev.InstID),
		zap.ByteString("payload", payload),
	)
	return nil
}
