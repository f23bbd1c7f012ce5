package models

import "time"

type PositionStatus string

const (
	PositionNone   PositionStatus = ""
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

type ExitReason string

const (
	ExitStop       ExitReason = "stop"
	ExitTarget     ExitReason = "target"
	ExitTrailing   ExitReason = "trailing_stop"
	ExitSessionEnd ExitReason = "session_end"
)

type Position struct {
	ID        string         `json:"id"`
	InstID    string         `json:"instrument"`
	Direction Direction      `json:"direction"`
	Qty       float64        `json:"quantity"`
	Entry     float64        `json:"entry_price"`
	Stop      float64        `json:"stop_price"`
	Target    float64        `json:"target_price"`
	OpenedAt  time.Time      `json:"opened_at"`
	Status    PositionStatus `json:"status"`
	Pattern   string         `json:"pattern_name,omitempty"`

	// trailing state
	InitialStop  float64 `json:"initial_stop"`
	RiskDist     float64 `json:"risk_dist"`
	MFE          float64 `json:"mfe"`
	MovedToBE    bool    `json:"moved_to_be"`
	LockedProfit bool    `json:"locked_profit"`
	Trailing     bool    `json:"trailing"`
	LastPrice    float64 `json:"last_price"`

	ClosedAt   time.Time  `json:"closed_at,omitempty"`
	ExitPrice  float64    `json:"exit_price,omitempty"`
	ExitReason ExitReason `json:"exit_reason,omitempty"`
	PnL        float64    `json:"pnl"`
	Fees       float64    `json:"fees"`
	// Realized is the gross P&L of quantity already exited by partial fills.
	Realized float64 `json:"realized_pnl,omitempty"`
}

// Notional = qty * entry.
func (p Position) Notional() float64 { return p.Qty * p.Entry }

// RiskAtStop is the loss if the current stop is hit.
func (p Position) RiskAtStop() float64 {
	d := (p.Entry - p.Stop) * p.Direction.Sign()
	if d < 0 {
		return 0
	}
	return d * p.Qty
}

// UnrealizedPnL at the given price.
func (p Position) UnrealizedPnL(price float64) float64 {
	return (price - p.Entry) * p.Direction.Sign() * p.Qty
}

// RiskState is the process-lifetime aggregate reset at every session boundary.
type RiskState struct {
	SessionDay       time.Time `json:"session_day"`
	OpenExposure     float64   `json:"open_exposure"`
	OpenRisk         float64   `json:"open_risk"`
	OpenPositions    int       `json:"open_positions"`
	RealizedPnLToday float64   `json:"realized_pnl_today"`
	PeakEquity       float64   `json:"peak_equity"`
	MaxDrawdownSeen  float64   `json:"max_drawdown_seen"`
	DailyLossLatched bool      `json:"daily_loss_latched"`
	Equity           float64   `json:"equity"`
}
