package service

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"trade_agent/internal/helper"
	"trade_agent/internal/models"
	"trade_agent/internal/modules/config"

	"go.uber.org/zap"
)

var (
	ErrLimitMaxPositions = errors.New("max open positions reached")
	ErrLimitExposure     = errors.New("max exposure exceeded")
	ErrDailyLossLatched  = errors.New("daily loss limit latched")
	ErrCooldown          = errors.New("instrument in cooldown")
	ErrSizeTooSmall      = errors.New("position size rounds to zero")
)

// Candidate is a sized trade asking for portfolio room.
type Candidate struct {
	InstID   string
	Notional float64
	Risk     float64
}

// Manager owns the session RiskState. All methods are safe for concurrent use.
type Manager struct {
	log     *zap.Logger
	cfg     config.RiskConfig
	slip    float64
	fee     float64
	session helper.Session
	now     func() time.Time

	mu            sync.Mutex
	state         models.RiskState
	sessionEquity float64
	realizedTotal float64
	open          map[string]models.Position
	cooldown      map[string]time.Time
}

func NewManager(cfg *config.Config, session helper.Session, log *zap.Logger) *Manager {
	m := &Manager{
		log:      log,
		cfg:      cfg.Risk,
		slip:     cfg.Execution.SlippagePct,
		fee:      cfg.Execution.FeePct,
		session:  session,
		now:      time.Now,
		open:     make(map[string]models.Position),
		cooldown: make(map[string]time.Time),
	}
	m.state.Equity = cfg.Risk.StartingEquity
	m.state.PeakEquity = cfg.Risk.StartingEquity
	m.sessionEquity = cfg.Risk.StartingEquity
	m.state.SessionDay = session.Day(m.now())
	return m
}

// SizePosition returns the quantity for sig: risk budget over the per-unit loss at the stop,
// clipped to the per-position equity fraction, then scaled down when ATR% exceeds the
// volatility target, then rounded down to the lot step. The per-unit loss assumes both
// fills slip against the order and pays fees on both legs. Every step only shrinks the
// size, so the loss at the stop never exceeds equity * risk_fraction.
func (m *Manager) SizePosition(sig models.Signal, equity, atrPct float64) (float64, error) {
	if sig.Entry <= 0 || sig.Stop <= 0 {
		return 0, fmt.Errorf("entry/stop <= 0")
	}
	if equity <= 0 {
		return 0, fmt.Errorf("equity <= 0")
	}
	stopDist := math.Abs(sig.Entry - sig.Stop)
	if stopDist <= 0 {
		return 0, fmt.Errorf("zero stop distance")
	}

	// 1) risk
	qty := equity * m.cfg.RiskFraction / m.lossPerUnit(sig.Entry, sig.Stop)

	// 2) max notional per position
	if f := m.cfg.MaxPositionFraction; f > 0 {
		qty = math.Min(qty, equity*f/(sig.Entry*(1+m.slip)))
	}

	// 3) volatility
	if target := m.cfg.VolTargetATRPct; target > 0 && atrPct > target {
		qty *= target / atrPct
	}

	// 4) lot
	if m.cfg.LotStep > 0 {
		qty = helper.RoundDownToLot(qty, m.cfg.LotStep)
	}

	if qty <= 0 || !helper.Finite(qty) {
		return 0, ErrSizeTooSmall
	}
	return qty, nil
}

// lossPerUnit is the loss of one unit entered at entry and stopped at stop. Slippage
// moves both fills against the position, so it widens the distance by slip*(entry+stop)
// for either direction; fees are charged on both fill prices.
func (m *Manager) lossPerUnit(entry, stop float64) float64 {
	dist := math.Abs(entry - stop)
	in := entry + m.slip*entry
	out := stop - m.slip*stop
	if stop > entry {
		in, out = entry-m.slip*entry, stop+m.slip*stop
	}
	return dist + m.slip*(entry+stop) + m.fee*(in+out)
}

// CheckPortfolioLimits rejects c when the daily loss latch is set, the instrument is cooling
// down, or adding it would exceed max positions or max exposure.
func (m *Manager) CheckPortfolioLimits(c Candidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.DailyLossLatched {
		return ErrDailyLossLatched
	}
	if until, ok := m.cooldown[c.InstID]; ok && m.now().Before(until) {
		return fmt.Errorf("%w: %s until %s", ErrCooldown, c.InstID, until.Format(time.RFC3339))
	}
	if m.state.OpenPositions+1 > m.cfg.MaxPositions {
		return fmt.Errorf("%w: %d/%d", ErrLimitMaxPositions, m.state.OpenPositions, m.cfg.MaxPositions)
	}
	maxExp := m.state.Equity * m.cfg.MaxExposureFraction
	if m.state.OpenExposure+c.Notional > maxExp {
		return fmt.Errorf("%w: %.2f+%.2f > %.2f", ErrLimitExposure, m.state.OpenExposure, c.Notional, maxExp)
	}
	return nil
}

func (m *Manager) OnOpen(p models.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open[p.ID] = p
	m.recalc()
}

// OnPositionUpdate keeps OpenExposure and OpenRisk in line with trailing stop
// moves and partial exits.
func (m *Manager) OnPositionUpdate(p models.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.open[p.ID]; !ok {
		return
	}
	m.open[p.ID] = p
	m.recalc()
}

// OnClose books the realized P&L (net of fees) and starts the instrument cooldown.
func (m *Manager) OnClose(p models.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.open, p.ID)
	m.realizedTotal += p.PnL
	m.state.RealizedPnLToday += p.PnL
	m.state.Equity = m.cfg.StartingEquity + m.realizedTotal
	if m.cfg.CooldownPerSymbol > 0 {
		m.cooldown[p.InstID] = m.now().Add(m.cfg.CooldownPerSymbol)
	}
	m.recalc()
	m.checkLoss(m.state.RealizedPnLToday)
}

// MarkToMarket checks the daily loss limit against realized plus unrealized P&L.
// A breach latches; a later recovery does not clear it.
func (m *Manager) MarkToMarket(unrealized float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkLoss(m.state.RealizedPnLToday + unrealized)

	eq := m.state.Equity + unrealized
	if eq > m.state.PeakEquity {
		m.state.PeakEquity = eq
	}
	if dd := m.state.PeakEquity - eq; dd > m.state.MaxDrawdownSeen {
		m.state.MaxDrawdownSeen = dd
	}
}

func (m *Manager) checkLoss(pnl float64) {
	if m.state.DailyLossLatched {
		return
	}
	limit := m.sessionEquity * m.cfg.DailyLossFraction
	if limit > 0 && pnl <= -limit {
		m.state.DailyLossLatched = true
		m.log.Warn("daily loss limit breached, new entries halted for the session",
			zap.Float64("pnl", pnl),
			zap.Float64("limit", limit),
			zap.Time("session_day", m.state.SessionDay),
		)
	}
}

// MaybeResetSession starts a new session when now falls on a later session day.
// It reports whether a reset happened.
func (m *Manager) MaybeResetSession(now time.Time) bool {
	day := m.session.Day(now)
	m.mu.Lock()
	defer m.mu.Unlock()
	if !day.After(m.state.SessionDay) {
		return false
	}
	m.resetLocked(day)
	return true
}

func (m *Manager) ResetSession(day time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked(day)
}

func (m *Manager) resetLocked(day time.Time) {
	was := m.state.DailyLossLatched
	m.state.SessionDay = day
	m.state.RealizedPnLToday = 0
	m.state.DailyLossLatched = false
	m.sessionEquity = m.state.Equity
	m.log.Info("risk session reset",
		zap.Time("day", day),
		zap.Float64("equity", m.state.Equity),
		zap.Bool("was_latched", was),
	)
}

func (m *Manager) recalc() {
	var exp, risk float64
	for _, p := range m.open {
		exp += p.Notional()
		risk += p.RiskAtStop()
	}
	m.state.OpenExposure = exp
	m.state.OpenRisk = risk
	m.state.OpenPositions = len(m.open)
}

func (m *Manager) State() models.RiskState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Equity() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Equity
}

func (m *Manager) Latched() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.DailyLossLatched
}
