package models

import "time"

// Tick is one price update for an instrument. Never persisted.
type Tick struct {
	InstID string    `json:"instrument"`
	Price  float64   `json:"price"`
	Volume float64   `json:"volume"`
	Bid    float64   `json:"bid,omitempty"`
	Ask    float64   `json:"ask,omitempty"`
	Ts     time.Time `json:"ts"`
}

// Candle is a sealed OHLCV bar. Start is the interval boundary, End = Start + interval.
type Candle struct {
	InstID string    `json:"instrument"`
	Start  time.Time `json:"interval_start"`
	End    time.Time `json:"interval_end"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
	Ticks  int       `json:"ticks"`
}

func (c Candle) Body() float64 {
	if c.Close > c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

func (c Candle) Range() float64 { return c.High - c.Low }

// Quote is the last known price of an instrument together with the top of book
// when the feed provides it.
type Quote struct {
	InstID string
	Price  float64
	Bid    float64
	Ask    float64
	Ts     time.Time
}

// SpreadPct returns (ask-bid)/mid, or -1 when the book side is unknown.
func (q Quote) SpreadPct() float64 {
	if q.Bid <= 0 || q.Ask <= 0 || q.Ask < q.Bid {
		return -1
	}
	mid := (q.Bid + q.Ask) / 2
	return (q.Ask - q.Bid) / mid
}

// MarketContext is the external, optional context handed to checkers.
// Zero values mean "unknown".
type MarketContext struct {
	Now time.Time
	// Benchmark is the reference series (index) used for regime and relative strength checks.
	Benchmark []Candle
	// BreadthUp / BreadthDown are fractions of the tracked universe trending up / down.
	BreadthUp   float64
	BreadthDown float64
	BreadthSize int
	// Sentiment is a 0..100 fear/greed style index, HasSentiment tells whether it is known.
	Sentiment    float64
	HasSentiment bool
	Quote        Quote
	// HigherTF is the higher timeframe series of the signal instrument.
	HigherTF []Candle
}
