package service

import (
	"fmt"
	"time"

	"trade_agent/internal/helper"
	"trade_agent/internal/modules/config"
	"trade_agent/internal/models"
)

// Store owns the shared market state: last prices plus the primary and
// higher-timeframe candle series.
type Store struct {
	Prices  *PriceTable
	Primary *Aggregator
	Higher  *Aggregator
}

func NewStore(cfg *config.Config) (*Store, error) {
	ltf, err := helper.ParseTF(cfg.Candles.Interval)
	if err != nil {
		return nil, fmt.Errorf("candles.interval: %w", err)
	}
	st := &Store{
		Prices:  NewPriceTable(),
		Primary: NewAggregator(ltf, cfg.Candles.MaxBars),
	}
	if cfg.Candles.HigherInterval != "" {
		htf, err := helper.ParseTF(cfg.Candles.HigherInterval)
		if err != nil {
			return nil, fmt.Errorf("candles.higher_interval: %w", err)
		}
		if htf <= ltf {
			return nil, fmt.Errorf("candles.higher_interval %s must be longer than interval %s", htf, ltf)
		}
		st.Higher = NewAggregator(htf, cfg.Candles.MaxBars)
	}
	return st, nil
}

func (s *Store) aggregators() []*Aggregator {
	if s.Higher == nil {
		return []*Aggregator{s.Primary}
	}
	return []*Aggregator{s.Primary, s.Higher}
}

func (s *Store) NewRouter() *Router { return NewRouter(s.Prices, s.aggregators()...) }

// Seal seals every aggregator against the wall clock.
func (s *Store) Seal(now time.Time) []models.Candle {
	var out []models.Candle
	for _, a := range s.aggregators() {
		out = append(out, a.Seal(now)...)
	}
	return out
}

// Snapshot is a consistent per-scan copy of the market state.
type Snapshot struct {
	At      time.Time
	Primary map[string][]models.Candle
	Higher  map[string][]models.Candle
	Quotes  map[string]models.Quote
}

func (s *Store) Snapshot(now time.Time) Snapshot {
	snap := Snapshot{
		At:      now,
		Primary: s.Primary.Snapshot(),
		Quotes:  s.Prices.Snapshot(),
	}
	if s.Higher != nil {
		snap.Higher = s.Higher.Snapshot()
	}
	return snap
}
