package service

import (
	"sync"

	"trade_agent/internal/models"
)

// PriceTable is the shared last-price table. Writers are the tick router,
// readers are the monitor and scan loops.
type PriceTable struct {
	mu sync.RWMutex
	q  map[string]models.Quote
}

func NewPriceTable() *PriceTable {
	return &PriceTable{q: make(map[string]models.Quote)}
}

// Update stores the tick unless it is older than the stored quote.
func (p *PriceTable) Update(t models.Tick) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cur, ok := p.q[t.InstID]
	if ok && t.Ts.Before(cur.Ts) {
		return
	}
	q := models.Quote{InstID: t.InstID, Price: t.Price, Bid: cur.Bid, Ask: cur.Ask, Ts: t.Ts}
	if t.Bid > 0 && t.Ask > 0 {
		q.Bid, q.Ask = t.Bid, t.Ask
	}
	p.q[t.InstID] = q
}

func (p *PriceTable) Get(instID string) (models.Quote, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	q, ok := p.q[instID]
	return q, ok
}

// Snapshot copies the whole table.
func (p *PriceTable) Snapshot() map[string]models.Quote {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]models.Quote, len(p.q))
	for k, v := range p.q {
		out[k] = v
	}
	return out
}
