package runner

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"trade_agent/internal/helper"
	"trade_agent/internal/models"
	"trade_agent/internal/modules/config"
	execution "trade_agent/internal/modules/execution/service"
	feed "trade_agent/internal/modules/feed/service"
	health "trade_agent/internal/modules/health/service"
	market "trade_agent/internal/modules/market/service"
	positions "trade_agent/internal/modules/positions/service"
	risk "trade_agent/internal/modules/risk/service"
	screening "trade_agent/internal/modules/screening/service"
	strategy "trade_agent/internal/modules/strategy/service"
	tgsvc "trade_agent/internal/modules/telegram_bot/service"
	validation "trade_agent/internal/modules/validation/service"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type EventPublisher interface {
	Publish(kind models.EventKind, instID string, payload any)
}

type Notifier interface {
	SendService(ctx context.Context, format string, args ...any)
}

type Warmer interface {
	Run(ctx context.Context) int
}

type FeedStatus interface {
	State() feed.State
}

const sessionEvery = 30 * time.Second

type Params struct {
	fx.In

	Config    *config.Config
	Session   helper.Session
	Store     *market.Store
	Detector  *strategy.Detector
	Validator *validation.Validator
	Screener  *screening.Screener
	Risk      *risk.Manager
	Positions *positions.Manager
	Gateway   execution.Gateway
	Events    EventPublisher
	Notifier  Notifier
	Warmer    Warmer
	Feed      FeedStatus
	Health    *health.State
	Log       *zap.Logger
}

// Scheduler runs the periodic loops: seal, scan, monitor and session. Loops
// share the market store and the position book and never wait on each other.
type Scheduler struct {
	cfg       *config.Config
	session   helper.Session
	store     *market.Store
	detector  *strategy.Detector
	validator *validation.Validator
	screener  *screening.Screener
	risk      *risk.Manager
	positions *positions.Manager
	gw        execution.Gateway
	events    EventPublisher
	notifier  Notifier
	warmer    Warmer
	feed      FeedStatus
	health    *health.State
	log       *zap.Logger
	now       func() time.Time

	latchAlerted atomic.Bool

	// last primary bar evaluated per instrument
	barsMu  sync.Mutex
	lastBar map[string]time.Time
}

func NewScheduler(p Params) *Scheduler {
	s := &Scheduler{
		cfg:       p.Config,
		session:   p.Session,
		store:     p.Store,
		detector:  p.Detector,
		validator: p.Validator,
		screener:  p.Screener,
		risk:      p.Risk,
		positions: p.Positions,
		gw:        p.Gateway,
		events:    p.Events,
		notifier:  p.Notifier,
		warmer:    p.Warmer,
		feed:      p.Feed,
		health:    p.Health,
		log:       p.Log.Named("runner"),
		now:       time.Now,
		lastBar:   make(map[string]time.Time),
	}
	s.positions.OnOpened(s.onOpened)
	s.positions.OnClosed(s.onClosed)
	s.positions.OnStopMoved(s.risk.OnPositionUpdate)
	s.positions.OnReduced(s.onReduced)
	return s
}

// Run bootstraps history and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.warmer != nil {
		s.warmer.Run(ctx)
	}
	s.risk.MaybeResetSession(s.now())

	sc := s.cfg.Scheduler
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.loop(ctx, "seal", sc.SealEvery, s.Seal) })
	g.Go(func() error { return s.loop(ctx, "scan", sc.ScanEvery, func(ctx context.Context) { s.Scan(ctx) }) })
	g.Go(func() error { return s.loop(ctx, "monitor", sc.MonitorEvery, s.Monitor) })
	g.Go(func() error { return s.loop(ctx, "session", sessionEvery, s.SessionTick) })

	s.log.Info("scheduler started",
		zap.Duration("seal_every", sc.SealEvery),
		zap.Duration("scan_every", sc.ScanEvery),
		zap.Duration("monitor_every", sc.MonitorEvery),
		zap.Strings("instruments", s.cfg.Feed.Instruments),
		zap.String("mode", s.gw.Mode()),
	)
	err := g.Wait()
	if n := s.positions.Count(); n > 0 {
		s.log.Warn("scheduler stopped with open positions", zap.Int("open", n))
	}
	return err
}

func (s *Scheduler) loop(ctx context.Context, name string, every time.Duration, fn func(context.Context)) error {
	if every <= 0 {
		return fmt.Errorf("%s: non-positive interval %s", name, every)
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.safe(ctx, name, fn)
		}
	}
}

// safe keeps a loop alive across a panicking iteration.
func (s *Scheduler) safe(ctx context.Context, name string, fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("loop iteration panicked",
				zap.String("loop", name),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	fn(ctx)
}

func (s *Scheduler) Seal(ctx context.Context) {
	sealed := s.store.Seal(s.now())
	if len(sealed) > 0 {
		s.log.Debug("bars sealed", zap.Int("count", len(sealed)))
	}
}

// Monitor re-checks open positions and marks the risk state to market.
func (s *Scheduler) Monitor(ctx context.Context) {
	s.positions.Monitor(ctx, s.store.Prices)
	s.risk.MarkToMarket(s.positions.Unrealized())

	latched := s.risk.Latched()
	if s.health != nil {
		s.health.SetOpenPositions(s.positions.Count())
		s.health.SetLatched(latched)
	}
	if latched && !s.latchAlerted.Swap(true) {
		st := s.risk.State()
		s.notifier.SendService(ctx, "⛔️ Daily loss limit reached (realized %.2f, equity %.2f). New entries blocked until the next session.",
			st.RealizedPnLToday, st.Equity)
	}
	if !latched {
		s.latchAlerted.Store(false)
	}
}

func (s *Scheduler) SessionTick(ctx context.Context) {
	if s.risk.MaybeResetSession(s.now()) {
		s.log.Info("new session", zap.Time("day", s.risk.State().SessionDay))
	}
}

func (s *Scheduler) onOpened(p models.Position) {
	s.risk.OnOpen(p)
	s.events.Publish(models.EventPositionOpened, p.InstID, p)
	s.notifier.SendService(context.Background(), "%s", tgsvc.FormatOpened(p))
}

func (s *Scheduler) onReduced(p models.Position) {
	s.risk.OnPositionUpdate(p)
	s.events.Publish(models.EventPositionReduced, p.InstID, p)
	s.notifier.SendService(context.Background(), "⚠️ %s exit partially filled, %.4f left open", p.InstID, p.Qty)
}

func (s *Scheduler) onClosed(p models.Position) {
	s.risk.OnClose(p)
	s.events.Publish(models.EventPositionClosed, p.InstID, p)
	s.notifier.SendService(context.Background(), "%s", tgsvc.FormatClosed(p))
}
