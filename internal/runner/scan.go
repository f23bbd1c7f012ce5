package runner

import (
	"context"
	"errors"
	"time"

	"trade_agent/internal/metrics"
	"trade_agent/internal/models"
	market "trade_agent/internal/modules/market/service"
	positions "trade_agent/internal/modules/positions/service"
	risk "trade_agent/internal/modules/risk/service"
	strategy "trade_agent/internal/modules/strategy/service"
	validation "trade_agent/internal/modules/validation/service"
	"trade_agent/pkg/tracing"

	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"
)

// Rejection is the payload of a signal_rejected event.
type Rejection struct {
	Signal  models.Signal        `json:"signal"`
	Stage   string               `json:"stage"`
	Checker string               `json:"checker"`
	Reason  string               `json:"reason"`
	Audit   []models.CheckResult `json:"audit,omitempty"`
}

// Scan takes one snapshot of the market and evaluates every instrument against
// it, in configured order. It returns the number of positions opened. Nothing
// is evaluated once the session is past its forced exit time.
func (s *Scheduler) Scan(ctx context.Context) int {
	now := s.now()
	if !s.session.AllDay() && s.session.PastForceExit(now) {
		s.log.Debug("scan skipped, past session force exit", zap.Time("now", now))
		return 0
	}

	start := time.Now()
	defer func() { metrics.ScanDuration.Observe(time.Since(start).Seconds()) }()

	span, ctx := tracing.StartSpan(ctx, "runner.scan")
	defer tracing.Finish(span, nil)

	snap := s.store.Snapshot(now)
	base := s.marketContext(snap, now)

	opened := 0
	for _, inst := range s.cfg.Feed.Instruments {
		if ctx.Err() != nil {
			break
		}
		if s.evaluate(ctx, snap, base, inst) {
			opened++
		}
	}
	return opened
}

func (s *Scheduler) marketContext(snap market.Snapshot, now time.Time) models.MarketContext {
	mc := models.MarketContext{Now: now}
	if b := s.cfg.Feed.Benchmark; b != "" {
		mc.Benchmark = snap.Primary[b]
		// benchmark RSI is the sentiment proxy
		if closes := strategy.Closes(mc.Benchmark); len(closes) > s.cfg.Strategy.RSIPeriod {
			mc.Sentiment = strategy.RSI(closes, s.cfg.Strategy.RSIPeriod)
			mc.HasSentiment = true
		}
	}
	mc.BreadthUp, mc.BreadthDown, mc.BreadthSize = market.Breadth(snap.Primary, s.cfg.Feed.Benchmark, s.cfg.Validation.RelStrengthLookback)
	return mc
}

// evaluate runs detect, validate, size, screen, limits and open for one
// instrument. Each sealed bar is evaluated once: a signal it produced is either
// opened or rejected, and is not generated again by later scans.
func (s *Scheduler) evaluate(ctx context.Context, snap market.Snapshot, base models.MarketContext, inst string) bool {
	bars := snap.Primary[inst]
	if len(bars) < s.detector.MinBars() {
		return false
	}
	if !s.markBar(inst, bars[len(bars)-1].Start) {
		return false
	}
	if _, held := s.positions.Get(inst); held {
		return false
	}

	sig, ok := s.detector.Detect(bars)
	if !ok {
		return false
	}
	metrics.SignalsTotal.WithLabelValues(sig.Pattern, string(sig.Direction)).Inc()
	s.events.Publish(models.EventSignalGenerated, inst, sig)

	span, ctx := tracing.StartSpan(ctx, "runner.evaluate",
		opentracing.Tag{Key: "inst", Value: inst},
		opentracing.Tag{Key: "pattern", Value: sig.Pattern},
	)
	var spanErr error
	defer func() { tracing.Finish(span, spanErr) }()

	mc := base
	mc.Quote = snap.Quotes[inst]
	mc.HigherTF = snap.Higher[inst]
	in := validation.Input{Signal: sig, Bars: bars, Risk: s.risk.State(), Market: mc}

	if passed, audit := s.validator.Run(in); !passed {
		s.reject(sig, s.validator.Stage(), audit)
		return false
	}

	atrPct := 0.0
	if atr := strategy.ATR(bars, s.cfg.Strategy.ATRPeriod); atr > 0 && sig.Entry > 0 {
		atrPct = atr / sig.Entry
	}
	qty, err := s.risk.SizePosition(sig, s.risk.Equity(), atrPct)
	if err != nil {
		s.rejectErr(sig, "risk", "size_position", err)
		return false
	}
	in.Qty = qty

	if passed, audit := s.screener.Run(in); !passed {
		s.reject(sig, s.screener.Stage(), audit)
		return false
	}

	cand := risk.Candidate{InstID: inst, Notional: qty * sig.Entry, Risk: qty * sig.RiskDist()}
	if err := s.risk.CheckPortfolioLimits(cand); err != nil {
		s.rejectErr(sig, "risk", limitName(err), err)
		return false
	}

	if _, err := s.positions.Open(ctx, sig, qty); err != nil {
		spanErr = err
		s.rejectErr(sig, "execution", "order", err)
		return false
	}
	return true
}

// markBar records start as the last bar evaluated for inst. It reports false
// when that bar was already evaluated.
func (s *Scheduler) markBar(inst string, start time.Time) bool {
	s.barsMu.Lock()
	defer s.barsMu.Unlock()
	if last, ok := s.lastBar[inst]; ok && !start.After(last) {
		return false
	}
	s.lastBar[inst] = start
	return true
}

func (s *Scheduler) reject(sig models.Signal, stage string, audit []models.CheckResult) {
	var last models.CheckResult
	if len(audit) > 0 {
		last = audit[len(audit)-1]
	}
	s.log.Info("signal rejected",
		zap.String("inst", sig.InstID),
		zap.String("pattern", sig.Pattern),
		zap.String("stage", stage),
		zap.String("checker", last.Checker),
		zap.String("reason", last.Reason),
	)
	s.events.Publish(models.EventSignalRejected, sig.InstID, Rejection{
		Signal:  sig,
		Stage:   stage,
		Checker: last.Checker,
		Reason:  last.Reason,
		Audit:   audit,
	})
}

func (s *Scheduler) rejectErr(sig models.Signal, stage, checker string, err error) {
	metrics.RejectionsTotal.WithLabelValues(stage, checker).Inc()
	s.reject(sig, stage, []models.CheckResult{models.Fail(checker, err.Error())})
}

func limitName(err error) string {
	switch {
	case errors.Is(err, risk.ErrDailyLossLatched):
		return "daily_loss"
	case errors.Is(err, risk.ErrCooldown):
		return "cooldown"
	case errors.Is(err, risk.ErrLimitMaxPositions), errors.Is(err, positions.ErrMaxPositions):
		return "max_positions"
	case errors.Is(err, risk.ErrLimitExposure):
		return "max_exposure"
	default:
		return "portfolio_limits"
	}
}
