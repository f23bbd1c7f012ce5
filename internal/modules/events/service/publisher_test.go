package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"trade_agent/internal/models"
	"trade_agent/internal/modules/config"
	"trade_agent/pkg/db"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type memSink struct {
	mu    sync.Mutex
	got   []models.Event
	err   error
	block chan struct{}
}

func (s *memSink) Name() string { return "mem" }

func (s *memSink) Write(ctx context.Context, ev models.Event) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.got = append(s.got, ev)
	return nil
}

func (s *memSink) events() []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Event(nil), s.got...)
}

func newPublisher(buffer int, sink Sink, log *zap.Logger) *Publisher {
	cfg := config.Defaults()
	cfg.Events.Buffer = buffer
	cfg.Events.WriteTimeout = time.Second
	return NewPublisher(cfg, sink, log)
}

func TestPublisherDeliversInOrder(t *testing.T) {
	sink := &memSink{}
	p := newPublisher(16, sink, zap.NewNop())
	go p.Run(context.Background())

	for _, inst := range []string{"AAA", "BBB", "CCC"} {
		p.Publish(models.EventSignalGenerated, inst, map[string]string{"x": inst})
	}
	if err := p.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	got := sink.events()
	if len(got) != 3 || got[0].InstID != "AAA" || got[2].InstID != "CCC" {
		t.Fatalf("unexpected events %+v", got)
	}
	if got[0].ID == "" || got[0].At.IsZero() {
		t.Fatal("id and timestamp not stamped")
	}
}

func TestPublishNeverBlocksWhenFull(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	sink := &memSink{block: make(chan struct{})}
	p := newPublisher(1, sink, zap.New(core))
	go p.Run(context.Background())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			p.Publish(models.EventPositionOpened, "AAA", nil)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a stuck sink")
	}
	if logs.FilterMessage("event dropped, buffer full").Len() == 0 {
		t.Fatal("drop not logged")
	}
	close(sink.block)
	_ = p.Close(context.Background())
}

func TestWriteFailureIsLoggedNotRetried(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	sink := &memSink{err: errors.New("store down")}
	p := newPublisher(4, sink, zap.New(core))
	go p.Run(context.Background())
	p.Publish(models.EventPositionClosed, "AAA", nil)
	p.Publish(models.EventPositionClosed, "BBB", nil)
	_ = p.Close(context.Background())

	if n := logs.FilterMessage("event write failed").Len(); n != 2 {
		t.Fatalf("want 2 failures logged, got %d", n)
	}
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	sink := &memSink{}
	p := newPublisher(4, sink, zap.NewNop())
	go p.Run(context.Background())
	_ = p.Close(context.Background())
	p.Publish(models.EventSignalGenerated, "AAA", nil)
	if len(sink.events()) != 0 {
		t.Fatal("event written after close")
	}
}

type execCall struct {
	sql  string
	args []any
}

type fakeTx struct {
	calls []execCall
	err   error
}

func (f *fakeTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), f.err
}

func (f *fakeTx) Query(context.Context, string, ...interface{}) (pgx.Rows, error) { return nil, nil }

func (f *fakeTx) QueryRow(context.Context, string, ...interface{}) pgx.Row { return nil }

type fakeTxManager struct{ tx *fakeTx }

func (m *fakeTxManager) RunMaster(ctx context.Context, fn func(ctxTx context.Context, tx db.Transaction) error) error {
	return fn(ctx, m.tx)
}

func TestPgSinkInsertsAndNotifies(t *testing.T) {
	tx := &fakeTx{}
	s := NewPgSink(&fakeTxManager{tx: tx}, "trade_events", "trade_events")
	ev := models.Event{ID: "e1", Kind: models.EventPositionOpened, InstID: "AAA", At: time.Unix(0, 0)}
	if err := s.Write(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if len(tx.calls) != 2 {
		t.Fatalf("want insert + notify, got %d calls", len(tx.calls))
	}
	if !strings.HasPrefix(tx.calls[0].sql, `INSERT INTO "trade_events"`) || tx.calls[0].args[0] != "e1" {
		t.Fatalf("insert %+v", tx.calls[0])
	}
	if !strings.Contains(tx.calls[1].sql, "pg_notify") || tx.calls[1].args[0] != "trade_events" {
		t.Fatalf("notify %+v", tx.calls[1])
	}
	if !strings.Contains(tx.calls[1].args[1].(string), `"kind":"position_opened"`) {
		t.Fatalf("payload %v", tx.calls[1].args[1])
	}
}

func TestPgSinkPropagatesError(t *testing.T) {
	tx := &fakeTx{err: errors.New("conn reset")}
	s := NewPgSink(&fakeTxManager{tx: tx}, "trade_events", "trade_events")
	if err := s.Write(context.Background(), models.Event{ID: "e1"}); err == nil {
		t.Fatal("want error")
	}
}

type fakeRedis struct {
	xadds []*redis.XAddArgs
	pubs  []string
	err   error
}

func (f *fakeRedis) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.xadds = append(f.xadds, a)
	return redis.NewStringResult("1-0", f.err)
}

func (f *fakeRedis) Publish(_ context.Context, channel string, _ interface{}) *redis.IntCmd {
	f.pubs = append(f.pubs, channel)
	return redis.NewIntResult(1, nil)
}

func TestRedisSinkAppendsAndPublishes(t *testing.T) {
	r := &fakeRedis{}
	s := NewRedisSink(r, "trade_events")
	if err := s.Write(context.Background(), models.Event{ID: "e1", Kind: models.EventSignalGenerated}); err != nil {
		t.Fatal(err)
	}
	if len(r.xadds) != 1 || !r.xadds[0].Approx || r.xadds[0].MaxLen != streamMaxLen {
		t.Fatalf("xadd %+v", r.xadds)
	}
	if len(r.pubs) != 1 || r.pubs[0] != "trade_events" {
		t.Fatalf("publish %+v", r.pubs)
	}

	r.err = errors.New("READONLY")
	if err := s.Write(context.Background(), models.Event{ID: "e2"}); err == nil {
		t.Fatal("want xadd error")
	}
	if len(r.pubs) != 1 {
		t.Fatal("published after failed append")
	}
}
