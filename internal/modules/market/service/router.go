package service

import (
	"sync"

	"trade_agent/internal/models"
)

type TickObserver func(models.Tick)

// Router fans a tick out to the price table and every aggregator.
type Router struct {
	prices *PriceTable
	aggs   []*Aggregator

	mu        sync.RWMutex
	observers []TickObserver
}

func NewRouter(prices *PriceTable, aggs ...*Aggregator) *Router {
	return &Router{prices: prices, aggs: aggs}
}

func (r *Router) Observe(o TickObserver) {
	r.mu.Lock()
	r.observers = append(r.observers, o)
	r.mu.Unlock()
}

func (r *Router) OnTick(t models.Tick) {
	r.prices.Update(t)
	for _, a := range r.aggs {
		a.Ingest(t)
	}
	r.mu.RLock()
	obs := r.observers
	r.mu.RUnlock()
	for _, o := range obs {
		o(t)
	}
}
