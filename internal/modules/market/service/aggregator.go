package service

import (
	"sort"
	"sync"
	"time"

	"trade_agent/internal/helper"
	"trade_agent/internal/metrics"
	"trade_agent/internal/models"
)

// Aggregator buckets ticks into fixed-interval OHLCV bars per instrument.
//
// Gap policy: intervals without ticks produce no candle (series may be irregular).
// Ticks older than the last ingested one are dropped; a tick identical to one
// already seen at the same timestamp is dropped as a replay.
type Aggregator struct {
	interval time.Duration
	label    string
	maxBars  int

	mu     sync.RWMutex
	series map[string]*instSeries
}

type instSeries struct {
	bars   []models.Candle
	open   *models.Candle
	lastTs time.Time
	seenAt [][2]float64 // (price, volume) of ticks at lastTs
}

func NewAggregator(interval time.Duration, maxBars int) *Aggregator {
	if maxBars <= 0 {
		maxBars = 1000
	}
	return &Aggregator{
		interval: interval,
		label:    interval.String(),
		maxBars:  maxBars,
		series:   make(map[string]*instSeries),
	}
}

func (a *Aggregator) Interval() time.Duration { return a.interval }

func (a *Aggregator) get(instID string) *instSeries {
	s, ok := a.series[instID]
	if !ok {
		s = &instSeries{}
		a.series[instID] = s
	}
	return s
}

// Ingest folds a tick into the open bucket. It returns the candle sealed by this
// tick, if the tick opened a new bucket.
func (a *Aggregator) Ingest(t models.Tick) (models.Candle, bool) {
	if t.InstID == "" || t.Price <= 0 || t.Volume < 0 {
		metrics.TicksDropped.WithLabelValues("invalid").Inc()
		return models.Candle{}, false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.get(t.InstID)
	switch {
	case t.Ts.Before(s.lastTs):
		metrics.TicksDropped.WithLabelValues("out_of_order").Inc()
		return models.Candle{}, false
	case t.Ts.Equal(s.lastTs):
		for _, pv := range s.seenAt {
			if pv[0] == t.Price && pv[1] == t.Volume {
				metrics.TicksDropped.WithLabelValues("replay").Inc()
				return models.Candle{}, false
			}
		}
		s.seenAt = append(s.seenAt, [2]float64{t.Price, t.Volume})
	default:
		s.lastTs = t.Ts
		s.seenAt = append(s.seenAt[:0], [2]float64{t.Price, t.Volume})
	}

	start := helper.BucketStart(t.Ts, a.interval)
	if n := len(s.bars); n > 0 && !start.After(s.bars[n-1].Start) {
		// bucket already sealed (e.g. seeded from history)
		metrics.TicksDropped.WithLabelValues("sealed_bucket").Inc()
		return models.Candle{}, false
	}

	var sealed models.Candle
	var didSeal bool
	if s.open != nil && start.After(s.open.Start) {
		sealed = a.seal(t.InstID, s)
		didSeal = true
	}

	if s.open == nil {
		s.open = &models.Candle{
			InstID: t.InstID,
			Start:  start,
			End:    start.Add(a.interval),
			Open:   t.Price,
			High:   t.Price,
			Low:    t.Price,
			Close:  t.Price,
		}
	}
	o := s.open
	if t.Price > o.High {
		o.High = t.Price
	}
	if t.Price < o.Low {
		o.Low = t.Price
	}
	o.Close = t.Price
	o.Volume += t.Volume
	o.Ticks++

	return sealed, didSeal
}

func (a *Aggregator) seal(instID string, s *instSeries) models.Candle {
	c := *s.open
	s.open = nil
	s.bars = append(s.bars, c)
	if len(s.bars) > a.maxBars {
		trimmed := make([]models.Candle, a.maxBars, a.maxBars+a.maxBars/4)
		copy(trimmed, s.bars[len(s.bars)-a.maxBars:])
		s.bars = trimmed
	}
	metrics.CandlesSealed.WithLabelValues(a.label).Inc()
	return c
}

// Seal closes every open bucket whose interval ended at or before now.
func (a *Aggregator) Seal(now time.Time) []models.Candle {
	cur := helper.BucketStart(now, a.interval)

	a.mu.Lock()
	defer a.mu.Unlock()

	var out []models.Candle
	for id, s := range a.series {
		if s.open != nil && cur.After(s.open.Start) {
			out = append(out, a.seal(id, s))
		}
	}
	return out
}

// Series returns a copy of the sealed bars of instID, oldest first.
func (a *Aggregator) Series(instID string) []models.Candle {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.series[instID]
	if !ok {
		return nil
	}
	return append([]models.Candle(nil), s.bars...)
}

// Forming returns a copy of the still-open bucket.
func (a *Aggregator) Forming(instID string) (models.Candle, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.series[instID]
	if !ok || s.open == nil {
		return models.Candle{}, false
	}
	return *s.open, true
}

// Snapshot copies the sealed series of every instrument under one lock.
func (a *Aggregator) Snapshot() map[string][]models.Candle {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string][]models.Candle, len(a.series))
	for id, s := range a.series {
		out[id] = append([]models.Candle(nil), s.bars...)
	}
	return out
}

// Seed pre-loads historical bars. Only bars strictly older than anything already
// held for the instrument are taken, so ordering survives a late bootstrap.
// Returns the number of bars accepted.
func (a *Aggregator) Seed(instID string, bars []models.Candle) int {
	if len(bars) == 0 {
		return 0
	}
	sorted := append([]models.Candle(nil), bars...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.get(instID)

	var limit time.Time
	switch {
	case len(s.bars) > 0:
		limit = s.bars[0].Start
	case s.open != nil:
		limit = s.open.Start
	}

	accepted := make([]models.Candle, 0, len(sorted))
	var prev time.Time
	for _, c := range sorted {
		if c.Close <= 0 || c.High < c.Low {
			continue
		}
		start := helper.BucketStart(c.Start, a.interval)
		if !limit.IsZero() && !start.Before(limit) {
			continue
		}
		if len(accepted) > 0 && !start.After(prev) {
			continue
		}
		c.InstID = instID
		c.Start = start
		c.End = start.Add(a.interval)
		accepted = append(accepted, c)
		prev = start
	}
	if len(accepted) == 0 {
		return 0
	}
	s.bars = append(accepted, s.bars...)
	if len(s.bars) > a.maxBars {
		s.bars = append([]models.Candle(nil), s.bars[len(s.bars)-a.maxBars:]...)
	}
	return len(accepted)
}
