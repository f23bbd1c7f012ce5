package service

import (
	"context"
	"fmt"
	"time"

	"trade_agent/internal/metrics"
	"trade_agent/internal/modules/config"

	"github.com/google/uuid"
)

// PaperGateway fills every order immediately at the reference price moved
// against the order by the configured slippage.
type PaperGateway struct {
	feePct      float64
	slippagePct float64
	now         func() time.Time
}

func NewPaperGateway(cfg config.ExecutionConfig) *PaperGateway {
	return &PaperGateway{feePct: cfg.FeePct, slippagePct: cfg.SlippagePct, now: time.Now}
}

func (g *PaperGateway) Mode() string { return config.ModePaper }

func (g *PaperGateway) Submit(ctx context.Context, o Order) (Fill, error) {
	if err := ctx.Err(); err != nil {
		return Fill{}, err
	}
	if o.Qty <= 0 || o.RefPrice <= 0 {
		metrics.OrdersTotal.WithLabelValues(config.ModePaper, string(o.Side), "rejected").Inc()
		return Fill{}, fmt.Errorf("%w: qty=%v price=%v", ErrOrderRejected, o.Qty, o.RefPrice)
	}
	if o.ClientID == "" {
		o.ClientID = uuid.NewString()
	}
	px := o.RefPrice * (1 + o.Side.sign()*g.slippagePct)
	metrics.OrdersTotal.WithLabelValues(config.ModePaper, string(o.Side), "filled").Inc()
	return Fill{
		ClientID: o.ClientID,
		VenueID:  "paper-" + o.ClientID,
		InstID:   o.InstID,
		Side:     o.Side,
		Qty:      o.Qty,
		Price:    px,
		Fee:      o.Qty * px * g.feePct,
		At:       g.now(),
	}, nil
}
