package service

import (
	"fmt"
	"math"

	"trade_agent/internal/models"
)

// match is one recognizer hit before confidence scoring.
type match struct {
	name    string
	dir     models.Direction
	entry   float64
	stop    float64
	target  float64
	quality float64 // 0..1, geometry only
	reason  string
}

// view is the precomputed input every recognizer reads.
type view struct {
	bars   []models.Candle
	pivots []Pivot
	atr    float64
	tol    float64
	cfg    Params
}

func (v *view) last() models.Candle { return v.bars[len(v.bars)-1] }
func (v *view) prev() models.Candle { return v.bars[len(v.bars)-2] }

type recognizer func(v *view) (match, bool)

func recognizers() []recognizer {
	return []recognizer{
		doubleBottom,
		doubleTop,
		inverseHeadShoulders,
		headShoulders,
		bullFlag,
		bearFlag,
		ascendingTriangle,
		descendingTriangle,
		donchianBreakout,
	}
}

// crossedUp: the last bar closed above level and the previous one did not.
func (v *view) crossedUp(level float64) bool {
	return v.last().Close > level && v.prev().Close <= level
}

func (v *view) crossedDown(level float64) bool {
	return v.last().Close < level && v.prev().Close >= level
}

// levelQuality maps a relative level mismatch to 0..1 (1 = identical).
func levelQuality(a, b, tol float64) float64 {
	if tol <= 0 {
		return 0
	}
	m := (a + b) / 2
	if m == 0 {
		return 0
	}
	d := math.Abs(a-b) / m
	return math.Max(0, 1-d/tol)
}

func doubleBottom(v *view) (match, bool) {
	ps := lastPivots(v.pivots, 3)
	if ps == nil || ps[0].High || !ps[1].High || ps[2].High {
		return match{}, false
	}
	l1, neck, l2 := ps[0], ps[1], ps[2]
	if !near(l1.Price, l2.Price, v.tol) || neck.Price <= math.Max(l1.Price, l2.Price) {
		return match{}, false
	}
	if !v.crossedUp(neck.Price) {
		return match{}, false
	}
	bottom := math.Min(l1.Price, l2.Price)
	// stop halfway between the neckline and the bottom
	return match{
		name:    "double_bottom",
		dir:     models.DirLong,
		entry:   v.last().Close,
		stop:    neck.Price - 0.5*(neck.Price-bottom),
		target:  neck.Price + (neck.Price - bottom),
		quality: 0.5 + 0.5*levelQuality(l1.Price, l2.Price, v.tol),
		reason:  fmt.Sprintf("lows %.6f/%.6f neckline %.6f", l1.Price, l2.Price, neck.Price),
	}, true
}

func doubleTop(v *view) (match, bool) {
	ps := lastPivots(v.pivots, 3)
	if ps == nil || !ps[0].High || ps[1].High || !ps[2].High {
		return match{}, false
	}
	h1, neck, h2 := ps[0], ps[1], ps[2]
	if !near(h1.Price, h2.Price, v.tol) || neck.Price >= math.Min(h1.Price, h2.Price) {
		return match{}, false
	}
	if !v.crossedDown(neck.Price) {
		return match{}, false
	}
	top := math.Max(h1.Price, h2.Price)
	return match{
		name:    "double_top",
		dir:     models.DirShort,
		entry:   v.last().Close,
		stop:    neck.Price + 0.5*(top-neck.Price),
		target:  neck.Price - (top - neck.Price),
		quality: 0.5 + 0.5*levelQuality(h1.Price, h2.Price, v.tol),
		reason:  fmt.Sprintf("highs %.6f/%.6f neckline %.6f", h1.Price, h2.Price, neck.Price),
	}, true
}

// inverseHeadShoulders: low, high, lower low (head), high, low, then a close over the neckline.
func inverseHeadShoulders(v *view) (match, bool) {
	ps := lastPivots(v.pivots, 5)
	if ps == nil || ps[0].High || !ps[1].High || ps[2].High || !ps[3].High || ps[4].High {
		return match{}, false
	}
	ls, n1, head, n2, rs := ps[0], ps[1], ps[2], ps[3], ps[4]
	if head.Price >= ls.Price || head.Price >= rs.Price || !near(ls.Price, rs.Price, 2*v.tol) {
		return match{}, false
	}
	neck := (n1.Price + n2.Price) / 2
	if !v.crossedUp(neck) {
		return match{}, false
	}
	return match{
		name:    "inverse_head_shoulders",
		dir:     models.DirLong,
		entry:   v.last().Close,
		stop:    rs.Price - 0.1*v.atr,
		target:  neck + (neck - head.Price),
		quality: 0.6 + 0.4*levelQuality(ls.Price, rs.Price, 2*v.tol),
		reason:  fmt.Sprintf("head %.6f shoulders %.6f/%.6f neckline %.6f", head.Price, ls.Price, rs.Price, neck),
	}, true
}

func headShoulders(v *view) (match, bool) {
	ps := lastPivots(v.pivots, 5)
	if ps == nil || !ps[0].High || ps[1].High || !ps[2].High || ps[3].High || !ps[4].High {
		return match{}, false
	}
	ls, n1, head, n2, rs := ps[0], ps[1], ps[2], ps[3], ps[4]
	if head.Price <= ls.Price || head.Price <= rs.Price || !near(ls.Price, rs.Price, 2*v.tol) {
		return match{}, false
	}
	neck := (n1.Price + n2.Price) / 2
	if !v.crossedDown(neck) {
		return match{}, false
	}
	return match{
		name:    "head_shoulders",
		dir:     models.DirShort,
		entry:   v.last().Close,
		stop:    rs.Price + 0.1*v.atr,
		target:  neck - (head.Price - neck),
		quality: 0.6 + 0.4*levelQuality(ls.Price, rs.Price, 2*v.tol),
		reason:  fmt.Sprintf("head %.6f shoulders %.6f/%.6f neckline %.6f", head.Price, ls.Price, rs.Price, neck),
	}, true
}

const (
	flagPole = 8
	flagBody = 6
)

// flag returns pole move and consolidation box ending one bar before the last.
func (v *view) flag() (pole float64, boxHi, boxLo float64, ok bool) {
	n := len(v.bars)
	if n < flagPole+flagBody+1 || v.atr <= 0 {
		return 0, 0, 0, false
	}
	box := v.bars[n-1-flagBody : n-1]
	poleBars := v.bars[n-1-flagBody-flagPole : n-1-flagBody]
	pole = poleBars[len(poleBars)-1].Close - poleBars[0].Open
	boxHi = maxSlice(highs(box))
	boxLo = minSlice(lows(box))
	return pole, boxHi, boxLo, true
}

func bullFlag(v *view) (match, bool) {
	pole, hi, lo, ok := v.flag()
	if !ok || pole < 3*v.atr {
		return match{}, false
	}
	if hi-lo > 0.5*pole || v.last().Close <= hi {
		return match{}, false
	}
	tight := 1 - (hi-lo)/(0.5*pole)
	return match{
		name:    "bull_flag",
		dir:     models.DirLong,
		entry:   v.last().Close,
		stop:    lo,
		target:  v.last().Close + pole,
		quality: 0.5 + 0.5*tight,
		reason:  fmt.Sprintf("pole %.6f box %.6f..%.6f", pole, lo, hi),
	}, true
}

func bearFlag(v *view) (match, bool) {
	pole, hi, lo, ok := v.flag()
	if !ok || -pole < 3*v.atr {
		return match{}, false
	}
	if hi-lo > 0.5*-pole || v.last().Close >= lo {
		return match{}, false
	}
	tight := 1 - (hi-lo)/(0.5*-pole)
	return match{
		name:    "bear_flag",
		dir:     models.DirShort,
		entry:   v.last().Close,
		stop:    hi,
		target:  v.last().Close + pole,
		quality: 0.5 + 0.5*tight,
		reason:  fmt.Sprintf("pole %.6f box %.6f..%.6f", pole, lo, hi),
	}, true
}

// splitPivots returns the last k highs and k lows (oldest first).
func splitPivots(ps []Pivot, k int) (hs, ls []Pivot) {
	for i := len(ps) - 1; i >= 0 && (len(hs) < k || len(ls) < k); i-- {
		if ps[i].High && len(hs) < k {
			hs = append([]Pivot{ps[i]}, hs...)
		}
		if !ps[i].High && len(ls) < k {
			ls = append([]Pivot{ps[i]}, ls...)
		}
	}
	return hs, ls
}

// ascendingTriangle: flat resistance from two highs, rising lows, close above resistance.
func ascendingTriangle(v *view) (match, bool) {
	hs, ls := splitPivots(v.pivots, 2)
	if len(hs) < 2 || len(ls) < 2 {
		return match{}, false
	}
	if !near(hs[0].Price, hs[1].Price, v.tol) || ls[1].Price <= ls[0].Price {
		return match{}, false
	}
	res := math.Max(hs[0].Price, hs[1].Price)
	if ls[1].Price >= res || !v.crossedUp(res) {
		return match{}, false
	}
	return match{
		name:    "ascending_triangle",
		dir:     models.DirLong,
		entry:   v.last().Close,
		stop:    ls[1].Price,
		target:  v.last().Close + (res - ls[0].Price),
		quality: 0.5 + 0.5*levelQuality(hs[0].Price, hs[1].Price, v.tol),
		reason:  fmt.Sprintf("resistance %.6f lows %.6f<%.6f", res, ls[0].Price, ls[1].Price),
	}, true
}

func descendingTriangle(v *view) (match, bool) {
	hs, ls := splitPivots(v.pivots, 2)
	if len(hs) < 2 || len(ls) < 2 {
		return match{}, false
	}
	if !near(ls[0].Price, ls[1].Price, v.tol) || hs[1].Price >= hs[0].Price {
		return match{}, false
	}
	sup := math.Min(ls[0].Price, ls[1].Price)
	if hs[1].Price <= sup || !v.crossedDown(sup) {
		return match{}, false
	}
	return match{
		name:    "descending_triangle",
		dir:     models.DirShort,
		entry:   v.last().Close,
		stop:    hs[1].Price,
		target:  v.last().Close - (hs[0].Price - sup),
		quality: 0.5 + 0.5*levelQuality(ls[0].Price, ls[1].Price, v.tol),
		reason:  fmt.Sprintf("support %.6f highs %.6f>%.6f", sup, hs[0].Price, hs[1].Price),
	}, true
}

// donchianBreakout: close beyond the channel of the previous N bars in the direction
// of the EMA trend, with a real body.
func donchianBreakout(v *view) (match, bool) {
	n := v.cfg.DonchianPeriod
	if n <= 0 || len(v.bars) < n+1 || v.atr <= 0 {
		return match{}, false
	}
	window := v.bars[len(v.bars)-1-n : len(v.bars)-1]
	dh := maxSlice(highs(window))
	dl := minSlice(lows(window))
	if dh <= dl {
		return match{}, false
	}
	last := v.last()
	if last.Body() < 0.5*v.atr {
		return match{}, false
	}
	closes := Closes(v.bars)
	fast, _ := EMA(closes, v.cfg.EMAFast)
	slow, _ := EMA(closes, v.cfg.EMASlow)

	chPct := (dh - dl) / last.Close
	switch {
	case fast > slow && last.Close > dh:
		return match{
			name:    "donchian_breakout",
			dir:     models.DirLong,
			entry:   last.Close,
			stop:    last.Close - 2*v.atr,
			target:  last.Close + 2*v.atr*v.cfg.MinRR,
			quality: 0.5,
			reason:  fmt.Sprintf("Don[%d] dh=%.6f dl=%.6f chPct=%.4f", n, dh, dl, chPct),
		}, true
	case fast < slow && last.Close < dl:
		return match{
			name:    "donchian_breakout",
			dir:     models.DirShort,
			entry:   last.Close,
			stop:    last.Close + 2*v.atr,
			target:  last.Close - 2*v.atr*v.cfg.MinRR,
			quality: 0.5,
			reason:  fmt.Sprintf("Don[%d] dh=%.6f dl=%.6f chPct=%.4f", n, dh, dl, chPct),
		}, true
	}
	return match{}, false
}
