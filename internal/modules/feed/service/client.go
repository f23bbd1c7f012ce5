package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"trade_agent/internal/models"
	"trade_agent/internal/modules/config"
	"trade_agent/internal/metrics"

	"github.com/gorilla/websocket"
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrFeedFailed is returned by Connect once the reconnect budget is exhausted.
var ErrFeedFailed = errors.New("feed: reconnect attempts exhausted")

type TickHandler func(models.Tick)

type StateHandler func(from, to State, attempt int)

// Conn is the part of *websocket.Conn the client uses.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

type DialFunc func(ctx context.Context) (Conn, error)

// Client owns one streaming connection to the market data source.
type Client struct {
	cfg config.FeedConfig
	log *zap.Logger
	fsm *FSM

	dial  DialFunc
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	mu            sync.RWMutex
	subs          []string
	subSet        map[string]struct{}
	tickHandlers  []TickHandler
	stateHandlers []StateHandler
	conn          Conn

	writeMu   sync.Mutex
	connected atomic.Bool
}

func NewClient(cfg *config.Config, log *zap.Logger) *Client {
	c := newClient(cfg.Feed, log, nil)
	dialer := &websocket.Dialer{HandshakeTimeout: cfg.Feed.DialTimeout}
	url := cfg.Feed.URL
	c.dial = func(ctx context.Context) (Conn, error) {
		conn, resp, err := dialer.DialContext(ctx, url, http.Header{})
		if err != nil {
			if resp != nil {
				return nil, pkgerrors.Wrapf(err, "dial %s: http %d", url, resp.StatusCode)
			}
			return nil, pkgerrors.Wrapf(err, "dial %s", url)
		}
		return conn, nil
	}
	return c
}

func newClient(cfg config.FeedConfig, log *zap.Logger, dial DialFunc) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.PingEvery <= 0 {
		cfg.PingEvery = 20 * time.Second
	}
	if cfg.LivenessTimeout <= 0 {
		cfg.LivenessTimeout = 3 * cfg.PingEvery
	}
	return &Client{
		cfg:    cfg,
		log:    log.Named("feed"),
		fsm:    NewFSM(Backoff{Base: cfg.BackoffBase, Cap: cfg.BackoffCap}, cfg.MaxAttempts),
		dial:   dial,
		sleep:  sleepCtx,
		now:    time.Now,
		subSet: make(map[string]struct{}),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// OnTick registers a callback invoked from the read loop for every tick. Handlers must not block.
func (c *Client) OnTick(h TickHandler) {
	c.mu.Lock()
	c.tickHandlers = append(c.tickHandlers, h)
	c.mu.Unlock()
}

func (c *Client) OnStateChange(h StateHandler) {
	c.mu.Lock()
	c.stateHandlers = append(c.stateHandlers, h)
	c.mu.Unlock()
}

func (c *Client) IsConnected() bool { return c.connected.Load() }

func (c *Client) State() State { return c.fsm.State() }

func (c *Client) Attempt() int { return c.fsm.Attempt() }

func (c *Client) Subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.subs...)
}

// Subscribe adds instruments to the persistent subscription set and, when connected,
// subscribes them on the live connection right away.
// The set and the live connection are read under one lock, so an instrument is
// either in the snapshot a new connection subscribes or sent here.
func (c *Client) Subscribe(instIDs ...string) error {
	c.mu.Lock()
	added := c.addSubsLocked(instIDs)
	conn := c.conn
	c.mu.Unlock()
	if len(added) == 0 || conn == nil {
		return nil
	}
	return c.sendSubscribe(conn, added)
}

func (c *Client) addSubs(instIDs []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addSubsLocked(instIDs)
}

func (c *Client) addSubsLocked(instIDs []string) []string {
	var added []string
	for _, id := range instIDs {
		if id == "" {
			continue
		}
		if _, ok := c.subSet[id]; ok {
			continue
		}
		c.subSet[id] = struct{}{}
		c.subs = append(c.subs, id)
		added = append(added, id)
	}
	return added
}

// Connect runs the connection until ctx is cancelled (returns nil) or the reconnect
// budget is used up (returns ErrFeedFailed).
func (c *Client) Connect(ctx context.Context, subscriptions []string) error {
	c.addSubs(subscriptions)

	for {
		if ctx.Err() != nil {
			c.fire(EvStop)
			return nil
		}

		switch c.fsm.State() {
		case StateFailed:
			return ErrFeedFailed
		case StateClosed:
			return nil
		case StateReconnecting:
			attempt, delay := c.fsm.NextAttempt()
			c.log.Info("reconnect scheduled", zap.Int("attempt", attempt), zap.Duration("delay", delay))
			if err := c.sleep(ctx, delay); err != nil {
				c.fire(EvStop)
				return nil
			}
		}

		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.fire(EvStop)
				return nil
			}
			c.log.Warn("dial failed", zap.Error(err), zap.Int("attempt", c.fsm.Attempt()))
			c.fire(EvDialFailed)
			continue
		}

		c.mu.Lock()
		c.conn = conn
		subs := append([]string(nil), c.subs...)
		c.mu.Unlock()

		if err := c.sendSubscribe(conn, subs); err != nil {
			c.log.Warn("subscribe failed", zap.Error(err))
			c.mu.Lock()
			c.conn = nil
			c.mu.Unlock()
			_ = conn.Close()
			c.fire(EvDialFailed)
			continue
		}
		c.connected.Store(true)
		c.fire(EvDialOK)

		err = c.serve(ctx, conn)

		c.connected.Store(false)
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close()

		if ctx.Err() != nil {
			c.fire(EvStop)
			return nil
		}
		c.log.Warn("connection lost", zap.Error(err))
		c.fire(EvLost)
	}
}

func (c *Client) fire(ev Event) {
	from, to, err := c.fsm.Fire(ev)
	if err != nil {
		c.log.Debug("ignored transition", zap.Error(err))
		return
	}
	if from == to {
		return
	}
	metrics.FeedTransitions.WithLabelValues(string(to)).Inc()
	c.log.Info("feed state", zap.String("from", string(from)), zap.String("to", string(to)))

	c.mu.RLock()
	hs := append([]StateHandler(nil), c.stateHandlers...)
	c.mu.RUnlock()
	attempt := c.fsm.Attempt()
	for _, h := range hs {
		h(from, to, attempt)
	}
}

func (c *Client) sendSubscribe(conn Conn, instIDs []string) error {
	if len(instIDs) == 0 {
		return nil
	}
	msg, err := encodeSubscribe(instIDs)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, msg)
}

// serve pumps frames until the connection breaks, liveness expires or ctx is done.
func (c *Client) serve(ctx context.Context, conn Conn) error {
	extend := func() { _ = conn.SetReadDeadline(c.now().Add(c.cfg.LivenessTimeout)) }
	extend()
	conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		t := time.NewTicker(c.cfg.PingEvery)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				// unblocks ReadMessage
				_ = conn.Close()
				return
			case <-done:
				return
			case <-t.C:
				c.writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, c.now().Add(5*time.Second))
				c.writeMu.Unlock()
				if err != nil {
					c.log.Debug("ping failed", zap.Error(err))
				}
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		extend()

		typ, ticks, text, err := decodeFrame(msg)
		if err != nil {
			c.log.Debug("bad frame", zap.Error(err))
			continue
		}
		if typ == frameError {
			c.log.Warn("feed error frame", zap.String("message", text))
		}
		if len(ticks) == 0 {
			continue
		}

		c.mu.RLock()
		hs := c.tickHandlers
		c.mu.RUnlock()
		for _, t := range ticks {
			metrics.TicksTotal.WithLabelValues(t.InstID).Inc()
			for _, h := range hs {
				h(t)
			}
		}
	}
}
