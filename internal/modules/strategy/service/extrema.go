package service

import "trade_agent/internal/models"

type Pivot struct {
	Index int
	Price float64
	High  bool
}

// Pivots finds swing highs and lows: bar i is a swing high when its high is the
// strict maximum of the window [i-w, i+w] (lows mirrored). Consecutive pivots of
// the same kind are merged keeping the more extreme one, so the result alternates.
func Pivots(bars []models.Candle, w int) []Pivot {
	if w <= 0 {
		w = 2
	}
	var raw []Pivot
	for i := w; i < len(bars)-w; i++ {
		isHigh, isLow := true, true
		for j := i - w; j <= i+w; j++ {
			if j == i {
				continue
			}
			if bars[j].High >= bars[i].High {
				isHigh = false
			}
			if bars[j].Low <= bars[i].Low {
				isLow = false
			}
		}
		if isHigh {
			raw = append(raw, Pivot{Index: i, Price: bars[i].High, High: true})
		}
		if isLow {
			raw = append(raw, Pivot{Index: i, Price: bars[i].Low, High: false})
		}
	}

	out := make([]Pivot, 0, len(raw))
	for _, p := range raw {
		if n := len(out); n > 0 && out[n-1].High == p.High {
			last := out[n-1]
			if (p.High && p.Price > last.Price) || (!p.High && p.Price < last.Price) {
				out[n-1] = p
			}
			continue
		}
		out = append(out, p)
	}
	return out
}

// lastPivots returns the last k pivots, or nil when there are fewer.
func lastPivots(ps []Pivot, k int) []Pivot {
	if len(ps) < k {
		return nil
	}
	return ps[len(ps)-k:]
}

func near(a, b, tol float64) bool {
	m := (a + b) / 2
	if m == 0 {
		return a == b
	}
	d := a - b
	if d < 0 {
		d = -d
	}
	return d/m <= tol
}
