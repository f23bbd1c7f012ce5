package service

import (
	"time"

	"trade_agent/internal/models"
)

var base = time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)

// fromCloses builds 1m bars: open halfway from the previous close, wicks of spread.
func fromCloses(closes []float64, spread float64) []models.Candle {
	out := make([]models.Candle, len(closes))
	prev := closes[0]
	for i, c := range closes {
		o := (prev + c) / 2
		hi, lo := c+spread, c-spread
		if o+spread > hi {
			hi = o + spread
		}
		if o-spread < lo {
			lo = o - spread
		}
		start := base.Add(time.Duration(i) * time.Minute)
		out[i] = models.Candle{
			InstID: "TEST", Start: start, End: start.Add(time.Minute),
			Open: o, High: hi, Low: lo, Close: c, Volume: 100,
		}
		prev = c
	}
	return out
}

func line(from, to float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = from + (to-from)*float64(i)/float64(n-1)
	}
	return out
}

func concat(parts ...[]float64) []float64 {
	var out []float64
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// doubleBottomCloses: decline, first low, rally to the neckline, second low, breakout on the last bar.
func doubleBottomCloses() []float64 {
	return concat(
		line(130, 101, 40),
		[]float64{100},
		[]float64{102, 104, 106, 108, 110},
		[]float64{108, 106, 104, 102, 100.3},
		[]float64{102, 104, 106, 108, 109.9},
		[]float64{111},
	)
}

// mirror reflects prices around m, turning bullish shapes into bearish ones.
func mirror(closes []float64, m float64) []float64 {
	out := make([]float64, len(closes))
	for i, c := range closes {
		out[i] = 2*m - c
	}
	return out
}

func testParams() Params {
	return Params{
		MinBars:        30,
		EMAFast:        9,
		EMASlow:        21,
		RSIPeriod:      14,
		BBPeriod:       20,
		BBStdDev:       2,
		ATRPeriod:      14,
		ADXPeriod:      14,
		DonchianPeriod: 20,
		PivotWindow:    2,
		LevelTolerance: 0.01,
		MinRR:          1.5,
		MinStopATR:     0.5,
		MinConfidence:  0.5,
	}
}

func bullFlagCloses() []float64 {
	flat := make([]float64, 30)
	for i := range flat {
		flat[i] = 100 + 0.4*float64(i%2)
	}
	return concat(
		flat,
		line(101, 108, 8),
		[]float64{107.5, 107.8, 107.4, 107.7, 107.5, 107.6},
		[]float64{109},
	)
}
