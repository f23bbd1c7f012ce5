package service

import (
	"context"
	"time"

	"trade_agent/internal/metrics"
	"trade_agent/internal/modules/config"
	"trade_agent/pkg/tracing"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type OrderState string

const (
	OrderPending  OrderState = "pending"
	OrderFilled   OrderState = "filled"
	OrderRejected OrderState = "rejected"
	OrderCanceled OrderState = "canceled"
)

type OrderStatus struct {
	VenueID   string     `json:"order_id"`
	State     OrderState `json:"state"`
	FilledQty float64    `json:"filled_qty"`
	AvgPrice  float64    `json:"avg_price"`
	Fee       float64    `json:"fee"`
	Reason    string     `json:"reason,omitempty"`
}

// Venue is the order venue. PlaceOrder must be idempotent per Order.ClientID.
type Venue interface {
	PlaceOrder(ctx context.Context, o Order) (string, error)
	CancelOrder(ctx context.Context, instID, venueID string) error
	OrderStatus(ctx context.Context, instID, venueID string) (OrderStatus, error)
}

// LiveGateway places an order and polls until it reaches a terminal state or the
// order timeout expires, in which case the order is canceled.
type LiveGateway struct {
	log       *zap.Logger
	venue     Venue
	timeout   time.Duration
	pollEvery time.Duration
	now       func() time.Time
}

func NewLiveGateway(cfg config.ExecutionConfig, venue Venue, log *zap.Logger) *LiveGateway {
	g := &LiveGateway{
		log:       log,
		venue:     venue,
		timeout:   cfg.OrderTimeout,
		pollEvery: cfg.PollEvery,
		now:       time.Now,
	}
	if g.timeout <= 0 {
		g.timeout = 10 * time.Second
	}
	if g.pollEvery <= 0 {
		g.pollEvery = 250 * time.Millisecond
	}
	return g
}

func (g *LiveGateway) Mode() string { return config.ModeLive }

func (g *LiveGateway) Submit(ctx context.Context, o Order) (fill Fill, err error) {
	span, ctx := tracing.StartSpan(ctx, "execution.submit",
		opentracing.Tag{Key: "inst", Value: o.InstID},
		opentracing.Tag{Key: "side", Value: string(o.Side)},
	)
	defer func() {
		result := "filled"
		if err != nil {
			result = "failed"
			if errors.Is(err, ErrOrderRejected) {
				result = "rejected"
			}
		}
		metrics.OrdersTotal.WithLabelValues(config.ModeLive, string(o.Side), result).Inc()
		tracing.Finish(span, err)
	}()

	if o.ClientID == "" {
		o.ClientID = uuid.NewString()
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	venueID, err := g.place(ctx, o)
	if err != nil {
		return Fill{}, err
	}

	ticker := time.NewTicker(g.pollEvery)
	defer ticker.Stop()
	for {
		st, err := g.venue.OrderStatus(ctx, o.InstID, venueID)
		if err != nil {
			g.log.Warn("order status failed", zap.String("client_id", o.ClientID), zap.Error(err))
		} else {
			switch st.State {
			case OrderFilled:
				return g.fill(o, venueID, st), nil
			case OrderRejected:
				return Fill{}, errors.Wrapf(ErrOrderRejected, "%s %s: %s", o.InstID, venueID, st.Reason)
			case OrderCanceled:
				if st.FilledQty > 0 {
					return g.fill(o, venueID, st), nil
				}
				return Fill{}, errors.Wrapf(ErrOrderRejected, "%s %s canceled", o.InstID, venueID)
			}
		}

		select {
		case <-ctx.Done():
			return g.expire(o, venueID)
		case <-ticker.C:
		}
	}
}

// place retries once with the same client id; the venue dedupes on it.
func (g *LiveGateway) place(ctx context.Context, o Order) (string, error) {
	id, err := g.venue.PlaceOrder(ctx, o)
	if err == nil {
		return id, nil
	}
	if errors.Is(err, ErrOrderRejected) || ctx.Err() != nil {
		return "", errors.Wrap(err, "place order")
	}
	g.log.Warn("place order failed, retrying", zap.String("client_id", o.ClientID), zap.Error(err))
	id, err = g.venue.PlaceOrder(ctx, o)
	if err != nil {
		return "", errors.Wrap(err, "place order")
	}
	return id, nil
}

// expire cancels a working order after the timeout. A partial fill reported by the
// final status is still returned as a fill.
func (g *LiveGateway) expire(o Order, venueID string) (Fill, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := g.venue.CancelOrder(ctx, o.InstID, venueID); err != nil {
		g.log.Error("cancel after timeout failed",
			zap.String("inst", o.InstID),
			zap.String("venue_id", venueID),
			zap.Error(err),
		)
	}
	st, err := g.venue.OrderStatus(ctx, o.InstID, venueID)
	if err == nil && st.FilledQty > 0 {
		return g.fill(o, venueID, st), nil
	}
	return Fill{}, errors.Wrapf(ErrOrderTimeout, "%s %s after %s", o.InstID, venueID, g.timeout)
}

func (g *LiveGateway) fill(o Order, venueID string, st OrderStatus) Fill {
	qty := st.FilledQty
	if qty <= 0 {
		qty = o.Qty
	}
	px := st.AvgPrice
	if px <= 0 {
		px = o.RefPrice
	}
	return Fill{
		ClientID: o.ClientID,
		VenueID:  venueID,
		InstID:   o.InstID,
		Side:     o.Side,
		Qty:      qty,
		Price:    px,
		Fee:      st.Fee,
		At:       g.now(),
	}
}
