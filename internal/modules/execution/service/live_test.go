package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"trade_agent/internal/modules/config"

	"go.uber.org/zap"
)

type fakeVenue struct {
	mu        sync.Mutex
	placeErrs []error
	statuses  []OrderStatus
	placed    []Order
	canceled  []string
	polls     int
}

func (f *fakeVenue) PlaceOrder(_ context.Context, o Order) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, o)
	if len(f.placeErrs) > 0 {
		err := f.placeErrs[0]
		f.placeErrs = f.placeErrs[1:]
		if err != nil {
			return "", err
		}
	}
	return "v-1", nil
}

func (f *fakeVenue) CancelOrder(_ context.Context, _ string, venueID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, venueID)
	return nil
}

func (f *fakeVenue) OrderStatus(context.Context, string, string) (OrderStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if len(f.statuses) == 0 {
		return OrderStatus{State: OrderPending}, nil
	}
	st := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return st, nil
}

func liveCfg() config.ExecutionConfig {
	return config.ExecutionConfig{OrderTimeout: 200 * time.Millisecond, PollEvery: 5 * time.Millisecond}
}

func TestLiveFillAfterPolling(t *testing.T) {
	v := &fakeVenue{statuses: []OrderStatus{
		{State: OrderPending},
		{State: OrderPending},
		{State: OrderFilled, FilledQty: 3, AvgPrice: 100.5, Fee: 0.3},
	}}
	g := NewLiveGateway(liveCfg(), v, zap.NewNop())

	f, err := g.Submit(context.Background(), Order{InstID: "AAA", Side: SideBuy, Qty: 3, RefPrice: 100})
	if err != nil {
		t.Fatal(err)
	}
	if f.Qty != 3 || f.Price != 100.5 || f.Fee != 0.3 || f.VenueID != "v-1" {
		t.Fatalf("fill %+v", f)
	}
	if v.polls != 3 {
		t.Fatalf("polls %d", v.polls)
	}
	if v.placed[0].ClientID == "" {
		t.Fatal("client id must be generated")
	}
}

func TestLiveRetriesPlacementWithSameClientID(t *testing.T) {
	v := &fakeVenue{
		placeErrs: []error{errors.New("connection reset")},
		statuses:  []OrderStatus{{State: OrderFilled}},
	}
	g := NewLiveGateway(liveCfg(), v, zap.NewNop())
	if _, err := g.Submit(context.Background(), Order{InstID: "AAA", Side: SideBuy, Qty: 1, RefPrice: 100}); err != nil {
		t.Fatal(err)
	}
	if len(v.placed) != 2 || v.placed[0].ClientID != v.placed[1].ClientID {
		t.Fatalf("placements %+v", v.placed)
	}
}

func TestLiveRejected(t *testing.T) {
	v := &fakeVenue{statuses: []OrderStatus{{State: OrderRejected, Reason: "insufficient margin"}}}
	g := NewLiveGateway(liveCfg(), v, zap.NewNop())
	_, err := g.Submit(context.Background(), Order{InstID: "AAA", Side: SideBuy, Qty: 1, RefPrice: 100})
	if !errors.Is(err, ErrOrderRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
}

func TestLiveRejectedAtPlacementIsNotRetried(t *testing.T) {
	v := &fakeVenue{placeErrs: []error{ErrOrderRejected}}
	g := NewLiveGateway(liveCfg(), v, zap.NewNop())
	if _, err := g.Submit(context.Background(), Order{InstID: "AAA", Side: SideBuy, Qty: 1, RefPrice: 100}); !errors.Is(err, ErrOrderRejected) {
		t.Fatalf("got %v", err)
	}
	if len(v.placed) != 1 {
		t.Fatalf("placements %d", len(v.placed))
	}
}

func TestLiveTimeoutCancels(t *testing.T) {
	v := &fakeVenue{}
	g := NewLiveGateway(liveCfg(), v, zap.NewNop())
	_, err := g.Submit(context.Background(), Order{InstID: "AAA", Side: SideSell, Qty: 1, RefPrice: 100})
	if !errors.Is(err, ErrOrderTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if len(v.canceled) != 1 || v.canceled[0] != "v-1" {
		t.Fatalf("cancel %v", v.canceled)
	}
}
