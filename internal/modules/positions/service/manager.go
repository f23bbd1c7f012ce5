package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"trade_agent/internal/helper"
	"trade_agent/internal/metrics"
	"trade_agent/internal/models"
	"trade_agent/internal/modules/config"
	execution "trade_agent/internal/modules/execution/service"
	"trade_agent/pkg/tracing"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"
)

var (
	ErrDuplicatePosition = errors.New("instrument already has an open position")
	ErrMaxPositions      = errors.New("max open positions reached")
	// ErrPartialExit means the exit order filled only part of the quantity; the
	// remainder stays OPEN and is retried on the next monitor pass.
	ErrPartialExit = errors.New("exit partially filled")
)

// qtyEps absorbs float noise when comparing filled and held quantity.
const qtyEps = 1e-9

const closedHistory = 200

type PriceSource interface {
	Get(instID string) (models.Quote, bool)
}

type Hook func(p models.Position)

// Manager owns every Position. A position moves NONE -> OPEN -> CLOSED, and both
// transitions go through the execution gateway. The lock is never held while an
// order is in flight: instruments with an order in flight are reserved instead.
type Manager struct {
	log     *zap.Logger
	gw      execution.Gateway
	trail   config.TrailingConfig
	max     int
	feePct  float64
	session helper.Session
	now     func() time.Time

	mu       sync.RWMutex
	open     map[string]*models.Position // by instrument
	inflight map[string]bool
	closed   []models.Position

	hooksMu  sync.RWMutex
	onOpen   []Hook
	onClose  []Hook
	onStop   []Hook
	onReduce []Hook
}

func NewManager(cfg *config.Config, gw execution.Gateway, session helper.Session, log *zap.Logger) *Manager {
	return &Manager{
		log:      log,
		gw:       gw,
		trail:    cfg.Trailing,
		max:      cfg.Risk.MaxPositions,
		feePct:   cfg.Execution.FeePct,
		session:  session,
		now:      time.Now,
		open:     make(map[string]*models.Position),
		inflight: make(map[string]bool),
	}
}

func (m *Manager) OnOpened(h Hook) {
	m.hooksMu.Lock()
	m.onOpen = append(m.onOpen, h)
	m.hooksMu.Unlock()
}

func (m *Manager) OnClosed(h Hook) {
	m.hooksMu.Lock()
	m.onClose = append(m.onClose, h)
	m.hooksMu.Unlock()
}

func (m *Manager) OnStopMoved(h Hook) {
	m.hooksMu.Lock()
	m.onStop = append(m.onStop, h)
	m.hooksMu.Unlock()
}

// OnReduced is called after a partial exit with the remaining position.
func (m *Manager) OnReduced(h Hook) {
	m.hooksMu.Lock()
	m.onReduce = append(m.onReduce, h)
	m.hooksMu.Unlock()
}

func (m *Manager) fire(hooks *[]Hook, p models.Position) {
	m.hooksMu.RLock()
	hs := append([]Hook(nil), (*hooks)...)
	m.hooksMu.RUnlock()
	for _, h := range hs {
		h(p)
	}
}

// reserve claims inst for an entry order.
func (m *Manager) reserve(inst string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.open[inst]; ok || m.inflight[inst] {
		return fmt.Errorf("%w: %s", ErrDuplicatePosition, inst)
	}
	held := len(m.open)
	for inst := range m.inflight {
		// exits in flight are already counted in open
		if _, ok := m.open[inst]; !ok {
			held++
		}
	}
	if held >= m.max {
		return fmt.Errorf("%w: %d", ErrMaxPositions, m.max)
	}
	m.inflight[inst] = true
	return nil
}

func (m *Manager) release(inst string) {
	m.mu.Lock()
	delete(m.inflight, inst)
	m.mu.Unlock()
}

// Open submits the entry order and registers the position once filled. On any
// error the position never becomes OPEN.
func (m *Manager) Open(ctx context.Context, sig models.Signal, qty float64) (models.Position, error) {
	if err := m.reserve(sig.InstID); err != nil {
		return models.Position{}, err
	}

	span, ctx := tracing.StartSpan(ctx, "positions.open", opentracing.Tag{Key: "inst", Value: sig.InstID})
	fill, err := m.gw.Submit(ctx, execution.Order{
		ClientID: uuid.NewString(),
		InstID:   sig.InstID,
		Side:     execution.EntrySide(sig.Direction),
		Qty:      qty,
		RefPrice: sig.Entry,
	})
	tracing.Finish(span, err)
	if err != nil {
		m.release(sig.InstID)
		return models.Position{}, fmt.Errorf("entry %s: %w", sig.InstID, err)
	}

	p := &models.Position{
		ID:          uuid.NewString(),
		InstID:      sig.InstID,
		Direction:   sig.Direction,
		Qty:         fill.Qty,
		Entry:       fill.Price,
		Stop:        sig.Stop,
		Target:      sig.Target,
		OpenedAt:    fill.At,
		Status:      models.PositionOpen,
		Pattern:     sig.Pattern,
		InitialStop: sig.Stop,
		MFE:         fill.Price,
		LastPrice:   fill.Price,
		Fees:        fill.Fee,
	}
	p.RiskDist = (p.Entry - p.Stop) * p.Direction.Sign()
	if p.RiskDist < 0 {
		p.RiskDist = 0
	}

	m.mu.Lock()
	delete(m.inflight, sig.InstID)
	m.open[sig.InstID] = p
	n := len(m.open)
	out := *p
	m.mu.Unlock()

	metrics.OpenPositions.Set(float64(n))
	m.log.Info("position opened",
		zap.String("id", out.ID),
		zap.String("inst", out.InstID),
		zap.String("dir", string(out.Direction)),
		zap.Float64("qty", out.Qty),
		zap.Float64("entry", out.Entry),
		zap.Float64("stop", out.Stop),
		zap.Float64("target", out.Target),
		zap.String("pattern", out.Pattern),
	)
	m.fire(&m.onOpen, out)
	return out, nil
}

type exitReq struct {
	pos    models.Position
	price  float64
	reason models.ExitReason
}

// Monitor re-evaluates every open position against the latest price. Exits are
// decided under the lock and executed after releasing it.
func (m *Manager) Monitor(ctx context.Context, prices PriceSource) []models.Position {
	now := m.now()
	force := !m.session.AllDay() && m.session.PastForceExit(now)

	var exits []exitReq
	var moved []models.Position

	m.mu.Lock()
	for inst, p := range m.open {
		if m.inflight[inst] {
			continue
		}
		q, ok := prices.Get(inst)
		if !ok || q.Price <= 0 {
			if force {
				exits = append(exits, exitReq{pos: *p, price: p.LastPrice, reason: models.ExitSessionEnd})
				m.inflight[inst] = true
			}
			continue
		}
		p.LastPrice = q.Price
		updateMFE(p, q.Price)

		if force {
			exits = append(exits, exitReq{pos: *p, price: q.Price, reason: models.ExitSessionEnd})
			m.inflight[inst] = true
			continue
		}
		if reason, hit := exitFor(*p, q.Price); hit {
			exits = append(exits, exitReq{pos: *p, price: q.Price, reason: reason})
			m.inflight[inst] = true
			continue
		}
		if dec := decideTrail(p, m.trail); dec.Move {
			old := p.Stop
			p.Stop = dec.NewStop
			moved = append(moved, *p)
			m.log.Info("stop moved",
				zap.String("inst", inst),
				zap.Float64("from", old),
				zap.Float64("to", p.Stop),
				zap.String("reason", dec.Reason),
			)
		}
	}
	m.mu.Unlock()

	for _, p := range moved {
		m.fire(&m.onStop, p)
	}

	var closed []models.Position
	for _, e := range exits {
		p, err := m.close(ctx, e)
		if errors.Is(err, ErrPartialExit) {
			continue
		}
		if err != nil {
			m.log.Error("exit order failed, position stays open",
				zap.String("inst", e.pos.InstID),
				zap.String("reason", string(e.reason)),
				zap.Error(err),
			)
			continue
		}
		closed = append(closed, p)
	}
	return closed
}

// CloseAll exits every open position with the given reason.
func (m *Manager) CloseAll(ctx context.Context, prices PriceSource, reason models.ExitReason) []models.Position {
	var exits []exitReq
	m.mu.Lock()
	for inst, p := range m.open {
		if m.inflight[inst] {
			continue
		}
		px := p.LastPrice
		if q, ok := prices.Get(inst); ok && q.Price > 0 {
			px = q.Price
		}
		exits = append(exits, exitReq{pos: *p, price: px, reason: reason})
		m.inflight[inst] = true
	}
	m.mu.Unlock()

	var closed []models.Position
	for _, e := range exits {
		if p, err := m.close(ctx, e); err == nil {
			closed = append(closed, p)
		} else if !errors.Is(err, ErrPartialExit) {
			m.log.Error("close failed", zap.String("inst", e.pos.InstID), zap.Error(err))
		}
	}
	return closed
}

func (m *Manager) close(ctx context.Context, e exitReq) (models.Position, error) {
	span, ctx := tracing.StartSpan(ctx, "positions.close",
		opentracing.Tag{Key: "inst", Value: e.pos.InstID},
		opentracing.Tag{Key: "reason", Value: string(e.reason)},
	)
	fill, err := m.gw.Submit(ctx, execution.Order{
		ClientID:   uuid.NewString(),
		InstID:     e.pos.InstID,
		Side:       execution.ExitSide(e.pos.Direction),
		Qty:        e.pos.Qty,
		RefPrice:   e.price,
		ReduceOnly: true,
	})
	tracing.Finish(span, err)
	if err != nil {
		m.release(e.pos.InstID)
		return models.Position{}, err
	}

	m.mu.Lock()
	p, ok := m.open[e.pos.InstID]
	if !ok || p.ID != e.pos.ID {
		delete(m.inflight, e.pos.InstID)
		m.mu.Unlock()
		return models.Position{}, fmt.Errorf("position %s vanished while closing", e.pos.ID)
	}
	qty := fill.Qty
	if qty <= 0 || qty > p.Qty {
		qty = p.Qty
	}
	gross := (fill.Price - p.Entry) * p.Direction.Sign() * qty
	p.Fees += fill.Fee

	if p.Qty-qty > qtyEps {
		p.Qty -= qty
		p.Realized += gross
		out := *p
		delete(m.inflight, e.pos.InstID)
		m.mu.Unlock()

		m.log.Warn("exit partially filled, remainder stays open",
			zap.String("id", out.ID),
			zap.String("inst", out.InstID),
			zap.String("reason", string(e.reason)),
			zap.Float64("filled", qty),
			zap.Float64("remaining", out.Qty),
			zap.Float64("price", fill.Price),
		)
		m.fire(&m.onReduce, out)
		return out, fmt.Errorf("%w: %s %v of %v", ErrPartialExit, out.InstID, qty, e.pos.Qty)
	}

	p.Status = models.PositionClosed
	p.ClosedAt = fill.At
	p.ExitPrice = fill.Price
	p.ExitReason = e.reason
	p.Qty = qty
	p.PnL = p.Realized + gross - p.Fees
	out := *p
	delete(m.open, e.pos.InstID)
	delete(m.inflight, e.pos.InstID)
	m.closed = append(m.closed, out)
	if len(m.closed) > closedHistory {
		m.closed = m.closed[len(m.closed)-closedHistory:]
	}
	n := len(m.open)
	m.mu.Unlock()

	metrics.OpenPositions.Set(float64(n))
	metrics.ExitsTotal.WithLabelValues(string(e.reason)).Inc()
	m.log.Info("position closed",
		zap.String("id", out.ID),
		zap.String("inst", out.InstID),
		zap.String("reason", string(out.ExitReason)),
		zap.Float64("exit", out.ExitPrice),
		zap.Float64("pnl", out.PnL),
	)
	m.fire(&m.onClose, out)
	return out, nil
}

// Open positions sorted by instrument.
func (m *Manager) Positions() []models.Position {
	m.mu.RLock()
	out := make([]models.Position, 0, len(m.open))
	for _, p := range m.open {
		out = append(out, *p)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].InstID < out[j].InstID })
	return out
}

func (m *Manager) Get(inst string) (models.Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.open[inst]
	if !ok {
		return models.Position{}, false
	}
	return *p, true
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.open)
}

func (m *Manager) Closed() []models.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Position(nil), m.closed...)
}

// Unrealized P&L of all open positions at their last seen price. Gains and
// losses of partial exits count here until the position closes and risk books them.
func (m *Manager) Unrealized() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sum float64
	for _, p := range m.open {
		sum += p.Realized
		if p.LastPrice > 0 {
			sum += p.UnrealizedPnL(p.LastPrice)
		}
	}
	return sum
}
