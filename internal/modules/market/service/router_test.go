package service

import (
	"testing"
	"time"

	"trade_agent/internal/modules/config"
	"trade_agent/internal/models"
)

func TestRouterFeedsPricesAndAggregators(t *testing.T) {
	cfg := &config.Config{Candles: config.CandlesConfig{Interval: "1m", HigherInterval: "5m", MaxBars: 100}}
	st, err := NewStore(cfg)
	if err != nil {
		t.Fatal(err)
	}
	r := st.NewRouter()
	var seen int
	r.Observe(func(models.Tick) { seen++ })

	for i := 0; i < 11; i++ {
		r.OnTick(models.Tick{InstID: "A", Price: float64(10 + i), Volume: 1, Bid: 9, Ask: 11, Ts: t0.Add(time.Duration(i) * time.Minute)})
	}
	st.Seal(t0.Add(15 * time.Minute))

	q, ok := st.Prices.Get("A")
	if !ok || q.Price != 20 || q.SpreadPct() <= 0 {
		t.Fatalf("quote %+v", q)
	}
	snap := st.Snapshot(t0.Add(15 * time.Minute))
	if len(snap.Primary["A"]) != 11 {
		t.Fatalf("primary bars %d", len(snap.Primary["A"]))
	}
	if len(snap.Higher["A"]) != 3 {
		t.Fatalf("higher bars %d", len(snap.Higher["A"]))
	}
	if snap.Higher["A"][0].Volume != 5 || snap.Higher["A"][0].High != 14 {
		t.Fatalf("higher bar %+v", snap.Higher["A"][0])
	}
	if seen != 11 {
		t.Fatalf("observer saw %d", seen)
	}
}

func TestNewStoreRejectsBadIntervals(t *testing.T) {
	for _, c := range []config.CandlesConfig{
		{Interval: "nope"},
		{Interval: "5m", HigherInterval: "1m"},
	} {
		if _, err := NewStore(&config.Config{Candles: c}); err == nil {
			t.Fatalf("expected error for %+v", c)
		}
	}
}

func TestPriceTableIgnoresOlderTicks(t *testing.T) {
	p := NewPriceTable()
	p.Update(models.Tick{InstID: "A", Price: 2, Ts: t0.Add(time.Second)})
	p.Update(models.Tick{InstID: "A", Price: 1, Ts: t0})
	if q, _ := p.Get("A"); q.Price != 2 {
		t.Fatalf("price %v", q.Price)
	}
}

func TestBreadth(t *testing.T) {
	mk := func(closes ...float64) []models.Candle {
		out := make([]models.Candle, len(closes))
		for i, c := range closes {
			out[i] = models.Candle{Close: c}
		}
		return out
	}
	series := map[string][]models.Candle{
		"UP1":   mk(1, 2, 3, 4),
		"UP2":   mk(2, 2, 2, 5),
		"DOWN":  mk(5, 4, 3, 2),
		"SHORT": mk(1),
		"IDX":   mk(9, 1, 1, 1),
	}
	up, down, n := Breadth(series, "IDX", 4)
	if n != 3 || up < 0.66 || up > 0.67 || down < 0.33 || down > 0.34 {
		t.Fatalf("up=%v down=%v n=%d", up, down, n)
	}
}
