package runner

import (
	"context"
	"fmt"
	"sync"
	"testing"
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
	validation "trade_agent/internal/modules/validation/service"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type recordedEvent struct {
	kind    models.EventKind
	inst    string
	payload any
}

type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
	alerts []string
}

func (r *recorder) Publish(kind models.EventKind, instID string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{kind: kind, inst: instID, payload: payload})
}

func (r *recorder) SendService(_ context.Context, format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, fmt.Sprintf(format, args...))
}

func (r *recorder) kinds() []models.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.EventKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.kind
	}
	return out
}

func (r *recorder) find(kind models.EventKind) (recordedEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.kind == kind {
			return e, true
		}
	}
	return recordedEvent{}, false
}

type staticFeed struct{}

func (staticFeed) State() feed.State { return feed.StateConnected }

type countingWarmer struct{ calls int }

func (w *countingWarmer) Run(context.Context) int { w.calls++; return 0 }

var base = time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)

func fromCloses(closes []float64, spread float64) []models.Candle {
	out := make([]models.Candle, len(closes))
	prev := closes[0]
	for i, c := range closes {
		o := (prev + c) / 2
		hi, lo := c+spread, c-spread
		if o+spread > hi {
			hi = o + spread
		}
		if o-spread < lo {
			lo = o - spread
		}
		start := base.Add(time.Duration(i) * time.Minute)
		out[i] = models.Candle{Start: start, End: start.Add(time.Minute), Open: o, High: hi, Low: lo, Close: c, Volume: 100}
		prev = c
	}
	return out
}

// doubleBottom ends on the breakout bar.
func doubleBottom() []models.Candle {
	var closes []float64
	for i := 0; i < 40; i++ {
		closes = append(closes, 130+(101-130)*float64(i)/39)
	}
	closes = append(closes,
		100,
		102, 104, 106, 108, 110,
		108, 106, 104, 102, 100.3,
		102, 104, 106, 108, 109.9,
		111,
	)
	return fromCloses(closes, 0.2)
}

type harness struct {
	s     *Scheduler
	rec   *recorder
	store *market.Store
	risk  *risk.Manager
	pos   *positions.Manager
	state *health.State
}

func newHarness(t *testing.T, mut func(c *config.Config)) *harness {
	t.Helper()
	cfg := config.Defaults("AAA")
	cfg.Strategy.MinBars = 30
	cfg.Strategy.PivotWindow = 2
	cfg.Strategy.LevelTolerance = 0.01
	cfg.Validation.Disabled = []string{
		"trend", "relative_strength", "abnormal_move", "volatility_regime",
		"multi_timeframe", "sentiment_extreme", "time_of_day", "slippage",
		"liquidity", "fee_coverage", "capital",
	}
	cfg.Screening.Disabled = []string{"breadth", "trend_filter", "squeeze", "sr_confluence", "score"}
	cfg.Risk.StartingEquity = 10000
	cfg.Risk.CooldownPerSymbol = 0
	cfg.Execution.FeePct = 0
	cfg.Execution.SlippagePct = 0
	cfg.Trailing.Enabled = false
	if mut != nil {
		mut(cfg)
	}

	session, err := helper.NewSession(cfg.Session.Timezone, cfg.Session.Open, cfg.Session.Close, cfg.Session.ForceExit)
	if err != nil {
		t.Fatal(err)
	}
	log := zaptest.NewLogger(t)
	store, err := market.NewStore(cfg)
	if err != nil {
		t.Fatal(err)
	}
	riskMgr := risk.NewManager(cfg, session, log)
	gw := execution.NewPaperGateway(cfg.Execution)
	posMgr := positions.NewManager(cfg, gw, session, log)
	rec := &recorder{}
	state := health.NewState()

	s := NewScheduler(Params{
		Config:    cfg,
		Session:   session,
		Store:     store,
		Detector:  strategy.NewDetector(cfg),
		Validator: validation.NewValidator(cfg, session, log),
		Screener:  screening.NewScreener(cfg, log),
		Risk:      riskMgr,
		Positions: posMgr,
		Gateway:   gw,
		Events:    rec,
		Notifier:  rec,
		Warmer:    &countingWarmer{},
		Feed:      staticFeed{},
		Health:    state,
		Log:       log,
	})
	return &harness{s: s, rec: rec, store: store, risk: riskMgr, pos: posMgr, state: state}
}

func (h *harness) setPrice(inst string, px float64) {
	h.store.Prices.Update(models.Tick{InstID: inst, Price: px, Volume: 1, Ts: time.Now()})
}

func TestScanWithEmptyBootstrap(t *testing.T) {
	h := newHarness(t, nil)
	if n := h.s.Scan(context.Background()); n != 0 {
		t.Fatalf("opened %d on empty series", n)
	}
	if len(h.rec.kinds()) != 0 {
		t.Fatalf("events on empty series: %v", h.rec.kinds())
	}
}

func TestScanOpensThenMonitorClosesAtStop(t *testing.T) {
	h := newHarness(t, nil)
	h.store.Primary.Seed("AAA", doubleBottom())

	ctx := context.Background()
	if n := h.s.Scan(ctx); n != 1 {
		t.Fatalf("want 1 open, got %d (events %v)", n, h.rec.kinds())
	}
	ev, ok := h.rec.find(models.EventSignalGenerated)
	if !ok {
		t.Fatal("signal_generated not published")
	}
	sig := ev.payload.(models.Signal)
	if sig.Pattern != "double_bottom" || sig.Direction != models.DirLong {
		t.Fatalf("unexpected signal %+v", sig)
	}
	if _, ok := h.rec.find(models.EventPositionOpened); !ok {
		t.Fatal("position_opened not published")
	}
	if st := h.risk.State(); st.OpenPositions != 1 || st.OpenRisk <= 0 {
		t.Fatalf("risk not updated on open: %+v", st)
	}

	// a second scan on the same data must not double up
	if n := h.s.Scan(ctx); n != 0 {
		t.Fatalf("reopened %d", n)
	}

	h.setPrice("AAA", sig.Stop)
	h.s.Monitor(ctx)
	closed, ok := h.rec.find(models.EventPositionClosed)
	if !ok {
		t.Fatal("position_closed not published")
	}
	p := closed.payload.(models.Position)
	if p.ExitReason != models.ExitStop || p.PnL >= 0 {
		t.Fatalf("unexpected close %+v", p)
	}
	st := h.risk.State()
	if st.OpenPositions != 0 || st.RealizedPnLToday != p.PnL {
		t.Fatalf("risk not updated on close: %+v", st)
	}
	if h.state.OpenPositions() != 0 {
		t.Fatal("health not updated")
	}
}

func TestLatchBlocksEntries(t *testing.T) {
	h := newHarness(t, nil)
	h.store.Primary.Seed("AAA", doubleBottom())
	// realized loss beyond the daily limit
	h.risk.OnClose(models.Position{ID: "x", InstID: "ZZZ", Status: models.PositionClosed, PnL: -1000, ClosedAt: time.Now()})
	if !h.risk.Latched() {
		t.Fatal("latch not set")
	}

	if n := h.s.Scan(context.Background()); n != 0 {
		t.Fatal("opened while latched")
	}
	ev, ok := h.rec.find(models.EventSignalRejected)
	if !ok {
		t.Fatal("rejection not published")
	}
	rej := ev.payload.(Rejection)
	if rej.Stage != "risk" || rej.Checker != "daily_loss" {
		t.Fatalf("rejection %+v", rej)
	}

	h.s.Monitor(context.Background())
	h.s.Monitor(context.Background())
	if len(h.rec.alerts) != 1 {
		t.Fatalf("want one latch alert, got %d", len(h.rec.alerts))
	}
	if !h.state.Latched() {
		t.Fatal("health does not show latch")
	}
}

func TestValidationRejectionNamesChecker(t *testing.T) {
	h := newHarness(t, nil)
	h.s.validator = &validation.Validator{Pipeline: validation.NewPipeline(zap.NewNop(), validation.Stage, []validation.Checker{
		validation.CheckerFunc{ID: "always_no", Fn: func(validation.Input) models.CheckResult {
			return models.Fail("always_no", "nope")
		}},
	})}
	h.store.Primary.Seed("AAA", doubleBottom())

	if n := h.s.Scan(context.Background()); n != 0 {
		t.Fatal("opened despite rejection")
	}
	ev, ok := h.rec.find(models.EventSignalRejected)
	if !ok {
		t.Fatal("rejection not published")
	}
	rej := ev.payload.(Rejection)
	if rej.Stage != validation.Stage || rej.Checker != "always_no" || rej.Reason != "nope" {
		t.Fatalf("rejection %+v", rej)
	}
	if h.pos.Count() != 0 {
		t.Fatal("position opened")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Scheduler.ScanEvery = 10 * time.Millisecond
		c.Scheduler.MonitorEvery = 5 * time.Millisecond
		c.Scheduler.SealEvery = 5 * time.Millisecond
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.s.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	if h.s.warmer.(*countingWarmer).calls != 1 {
		t.Fatal("bootstrap not run")
	}
}

func TestSafeRecoversPanic(t *testing.T) {
	h := newHarness(t, nil)
	h.s.safe(context.Background(), "test", func(context.Context) { panic("boom") })
}

func TestStatusText(t *testing.T) {
	h := newHarness(t, nil)
	if s := h.s.StatusText(); s == "" {
		t.Fatal("empty status")
	}
	if s := h.s.PositionsText(); s == "" {
		t.Fatal("empty positions text")
	}
}

func TestInitialSizeCoversSlippageAndFees(t *testing.T) {
	const slip, fee = 0.0005, 0.001
	h := newHarness(t, func(c *config.Config) {
		c.Execution.SlippagePct = slip
		c.Execution.FeePct = fee
		c.Risk.VolTargetATRPct = 0
	})
	h.store.Primary.Seed("AAA", doubleBottom())

	if n := h.s.Scan(context.Background()); n != 1 {
		t.Fatalf("want 1 open, got %d (events %v)", n, h.rec.kinds())
	}
	p, ok := h.pos.Get("AAA")
	if !ok {
		t.Fatal("no position")
	}
	if p.Entry <= 111 {
		t.Fatalf("entry %v not slipped", p.Entry)
	}
	exit := p.Stop * (1 - slip)
	loss := (p.Entry-exit)*p.Qty + p.Fees + exit*p.Qty*fee
	budget := 10000 * h.s.cfg.Risk.RiskFraction
	if loss > budget*(1+1e-9) {
		t.Fatalf("qty=%v entry=%v stop=%v loss at stop %v > budget %v", p.Qty, p.Entry, p.Stop, loss, budget)
	}
}

func TestNoEntriesPastForceExit(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Session.Open = "09:00"
		c.Session.Close = "16:00"
		c.Session.ForceExit = "15:00"
	})
	h.store.Primary.Seed("AAA", doubleBottom())

	h.s.now = func() time.Time { return time.Date(2024, 1, 2, 15, 10, 0, 0, time.UTC) }
	if n := h.s.Scan(context.Background()); n != 0 {
		t.Fatalf("opened %d after force exit", n)
	}
	if len(h.rec.kinds()) != 0 {
		t.Fatalf("events after force exit: %v", h.rec.kinds())
	}

	h.s.now = func() time.Time { return time.Date(2024, 1, 2, 14, 0, 0, 0, time.UTC) }
	if n := h.s.Scan(context.Background()); n != 1 {
		t.Fatalf("want 1 open inside the session, got %d", n)
	}
}

func TestSignalEvaluatedOncePerBar(t *testing.T) {
	h := newHarness(t, nil)
	h.s.validator = &validation.Validator{Pipeline: validation.NewPipeline(zap.NewNop(), validation.Stage, []validation.Checker{
		validation.CheckerFunc{ID: "always_no", Fn: func(validation.Input) models.CheckResult {
			return models.Fail("always_no", "nope")
		}},
	})}
	bars := doubleBottom()
	h.store.Primary.Seed("AAA", bars)

	for i := 0; i < 3; i++ {
		h.s.Scan(context.Background())
	}
	var generated, rejected int
	for _, k := range h.rec.kinds() {
		switch k {
		case models.EventSignalGenerated:
			generated++
		case models.EventSignalRejected:
			rejected++
		}
	}
	if generated != 1 || rejected != 1 {
		t.Fatalf("generated=%d rejected=%d, want one each", generated, rejected)
	}

	next := bars[len(bars)-1].Start.Add(time.Minute)
	if !h.s.markBar("AAA", next) {
		t.Fatal("a new bar must be evaluated")
	}
}
