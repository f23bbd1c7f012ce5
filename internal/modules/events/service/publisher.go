package service

import (
	"context"
	"sync"
	"time"

	"trade_agent/internal/metrics"
	"trade_agent/internal/models"
	"trade_agent/internal/modules/config"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sink is the change-notified store.
type Sink interface {
	Name() string
	Write(ctx context.Context, ev models.Event) error
}

// Publisher hands events to a single writer goroutine. Publish never blocks:
// when the buffer is full the event is dropped and counted.
type Publisher struct {
	log     *zap.Logger
	sink    Sink
	timeout time.Duration
	now     func() time.Time

	ch   chan models.Event
	done chan struct{}
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

func NewPublisher(cfg *config.Config, sink Sink, log *zap.Logger) *Publisher {
	size := cfg.Events.Buffer
	if size <= 0 {
		size = 1
	}
	timeout := cfg.Events.WriteTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Publisher{
		log:     log,
		sink:    sink,
		timeout: timeout,
		now:     time.Now,
		ch:      make(chan models.Event, size),
		done:    make(chan struct{}),
	}
}

func (p *Publisher) Publish(kind models.EventKind, instID string, payload any) {
	p.PublishEvent(models.Event{Kind: kind, InstID: instID, Payload: payload})
}

func (p *Publisher) PublishEvent(ev models.Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = p.now()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		metrics.EventsDropped.WithLabelValues("closed").Inc()
		return
	}
	select {
	case p.ch <- ev:
	default:
		metrics.EventsDropped.WithLabelValues("buffer_full").Inc()
		p.log.Warn("event dropped, buffer full",
			zap.String("kind", string(ev.Kind)),
			zap.String("inst", ev.InstID),
		)
	}
}

// Run drains the buffer until Close is called. Write failures are logged and
// the event is dropped.
func (p *Publisher) Run(ctx context.Context) {
	defer close(p.done)
	for ev := range p.ch {
		p.write(ctx, ev)
	}
}

func (p *Publisher) write(ctx context.Context, ev models.Event) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	if err := p.sink.Write(wctx, ev); err != nil {
		metrics.EventsDropped.WithLabelValues("write_failed").Inc()
		p.log.Error("event write failed",
			zap.String("sink", p.sink.Name()),
			zap.String("kind", string(ev.Kind)),
			zap.String("id", ev.ID),
			zap.Error(err),
		)
	}
}

// Close stops accepting events and waits for the buffer to drain or ctx to end.
func (p *Publisher) Close(ctx context.Context) error {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.ch)
		p.mu.Unlock()
	})
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Encode renders an event as the JSON stored by every sink.
func Encode(ev models.Event) ([]byte, error) {
	return sonic.Marshal(ev)
}
