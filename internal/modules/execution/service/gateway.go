package service

import (
	"context"
	"errors"
	"time"

	"trade_agent/internal/models"
	"trade_agent/internal/modules/config"

	"go.uber.org/zap"
)

var (
	ErrOrderRejected = errors.New("order rejected")
	ErrOrderTimeout  = errors.New("order not filled in time")
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// EntrySide is the order side that opens a position in dir.
func EntrySide(dir models.Direction) Side {
	if dir == models.DirShort {
		return SideSell
	}
	return SideBuy
}

// ExitSide is the order side that closes a position in dir.
func ExitSide(dir models.Direction) Side {
	if dir == models.DirShort {
		return SideBuy
	}
	return SideSell
}

func (s Side) sign() float64 {
	if s == SideSell {
		return -1
	}
	return 1
}

// Order is one logical order. ClientID makes placement idempotent at the venue.
type Order struct {
	ClientID   string  `json:"client_id"`
	InstID     string  `json:"instrument"`
	Side       Side    `json:"side"`
	Qty        float64 `json:"quantity"`
	RefPrice   float64 `json:"ref_price"`
	ReduceOnly bool    `json:"reduce_only"`
}

type Fill struct {
	ClientID string
	VenueID  string
	InstID   string
	Side     Side
	Qty      float64
	Price    float64
	Fee      float64
	At       time.Time
}

// Gateway places orders. Paper and live implementations return the same Fill shape
// so position state transitions do not depend on the mode.
type Gateway interface {
	Submit(ctx context.Context, o Order) (Fill, error)
	Mode() string
}

func NewGateway(cfg *config.Config, log *zap.Logger) (Gateway, error) {
	if cfg.Execution.Mode == config.ModeLive {
		venue, err := NewHTTPVenue(cfg.Execution)
		if err != nil {
			return nil, err
		}
		log.Info("execution gateway", zap.String("mode", config.ModeLive), zap.String("venue", cfg.Execution.VenueURL))
		return NewLiveGateway(cfg.Execution, venue, log), nil
	}
	log.Info("execution gateway", zap.String("mode", config.ModePaper),
		zap.Float64("fee_pct", cfg.Execution.FeePct),
		zap.Float64("slippage_pct", cfg.Execution.SlippagePct),
	)
	return NewPaperGateway(cfg.Execution), nil
}
