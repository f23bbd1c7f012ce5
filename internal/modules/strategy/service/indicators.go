package service

import (
	"math"

	"trade_agent/internal/models"
)

func Closes(bars []models.Candle) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// SMA of the last n values; 0 when there are fewer than n.
func SMA(values []float64, n int) float64 {
	if n <= 0 || len(values) < n {
		return 0
	}
	var sum float64
	for _, v := range values[len(values)-n:] {
		sum += v
	}
	return sum / float64(n)
}

// RSI with Wilder smoothing. Returns 50 (neutral) when there is not enough data.
func RSI(values []float64, n int) float64 {
	if n <= 0 || len(values) <= n {
		return 50
	}
	var gain, loss float64
	for i := 1; i <= n; i++ {
		d := values[i] - values[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain, avgLoss := gain/float64(n), loss/float64(n)
	for i := n + 1; i < len(values); i++ {
		d := values[i] - values[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(n-1) + g) / float64(n)
		avgLoss = (avgLoss*float64(n-1) + l) / float64(n)
	}
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

type MACDValue struct {
	MACD, Signal, Hist float64
}

func MACD(values []float64, fast, slow, signal int) MACDValue {
	if len(values) < slow {
		return MACDValue{}
	}
	f := EMASeries(values, fast)
	s := EMASeries(values, slow)
	line := make([]float64, len(values))
	for i := range values {
		line[i] = f[i] - s[i]
	}
	sig := EMASeries(line, signal)
	last := len(values) - 1
	return MACDValue{MACD: line[last], Signal: sig[last], Hist: line[last] - sig[last]}
}

type Bands struct {
	Mid, Upper, Lower float64
	// Width is (upper-lower)/mid.
	Width float64
}

func Bollinger(values []float64, n int, k float64) (Bands, bool) {
	if n <= 1 || len(values) < n {
		return Bands{}, false
	}
	mid := SMA(values, n)
	sd := StdDev(values[len(values)-n:])
	b := Bands{Mid: mid, Upper: mid + k*sd, Lower: mid - k*sd}
	if mid != 0 {
		b.Width = (b.Upper - b.Lower) / mid
	}
	return b, true
}

// BandWidthSeries is the Bollinger width at each index from n-1 on.
func BandWidthSeries(values []float64, n int, k float64) []float64 {
	if n <= 1 || len(values) < n {
		return nil
	}
	out := make([]float64, 0, len(values)-n+1)
	for i := n; i <= len(values); i++ {
		b, _ := Bollinger(values[:i], n, k)
		out = append(out, b.Width)
	}
	return out
}

func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	var ss float64
	for _, v := range values {
		ss += (v - mean) * (v - mean)
	}
	return math.Sqrt(ss / float64(len(values)))
}

func trueRange(cur, prev models.Candle) float64 {
	return math.Max(cur.High-cur.Low, math.Max(math.Abs(cur.High-prev.Close), math.Abs(cur.Low-prev.Close)))
}

// ATR with Wilder smoothing; 0 when there are fewer than n+1 bars.
func ATR(bars []models.Candle, n int) float64 {
	if n <= 0 || len(bars) < n+1 {
		return 0
	}
	var atr float64
	for i := 1; i <= n; i++ {
		atr += trueRange(bars[i], bars[i-1])
	}
	atr /= float64(n)
	for i := n + 1; i < len(bars); i++ {
		atr = (atr*float64(n-1) + trueRange(bars[i], bars[i-1])) / float64(n)
	}
	return atr
}

type ADXValue struct {
	ADX, PlusDI, MinusDI float64
}

// ADX (Wilder). Needs 2n+1 bars, otherwise returns zero values.
func ADX(bars []models.Candle, n int) ADXValue {
	if n <= 0 || len(bars) < 2*n+1 {
		return ADXValue{}
	}
	var tr, pdm, mdm float64
	dxs := make([]float64, 0, len(bars))
	var plusDI, minusDI float64
	for i := 1; i < len(bars); i++ {
		up := bars[i].High - bars[i-1].High
		down := bars[i-1].Low - bars[i].Low
		p, m := 0.0, 0.0
		if up > down && up > 0 {
			p = up
		}
		if down > up && down > 0 {
			m = down
		}
		t := trueRange(bars[i], bars[i-1])
		if i <= n {
			tr += t
			pdm += p
			mdm += m
			if i < n {
				continue
			}
		} else {
			tr = tr - tr/float64(n) + t
			pdm = pdm - pdm/float64(n) + p
			mdm = mdm - mdm/float64(n) + m
		}
		if tr == 0 {
			dxs = append(dxs, 0)
			continue
		}
		plusDI = 100 * pdm / tr
		minusDI = 100 * mdm / tr
		sum := plusDI + minusDI
		dx := 0.0
		if sum > 0 {
			dx = 100 * math.Abs(plusDI-minusDI) / sum
		}
		dxs = append(dxs, dx)
	}
	if len(dxs) < n {
		return ADXValue{}
	}
	var adx float64
	for _, d := range dxs[:n] {
		adx += d
	}
	adx /= float64(n)
	for _, d := range dxs[n:] {
		adx = (adx*float64(n-1) + d) / float64(n)
	}
	return ADXValue{ADX: adx, PlusDI: plusDI, MinusDI: minusDI}
}

// VWAP over the last n bars using the typical price; falls back to the last close on zero volume.
func VWAP(bars []models.Candle, n int) float64 {
	if len(bars) == 0 {
		return 0
	}
	if n <= 0 || n > len(bars) {
		n = len(bars)
	}
	var pv, v float64
	for _, b := range bars[len(bars)-n:] {
		tp := (b.High + b.Low + b.Close) / 3
		pv += tp * b.Volume
		v += b.Volume
	}
	if v == 0 {
		return bars[len(bars)-1].Close
	}
	return pv / v
}

// RelVolume is the last bar volume over the mean of the n bars before it.
// Returns 1 when volume history is missing.
func RelVolume(bars []models.Candle, n int) float64 {
	if n <= 0 || len(bars) < n+1 {
		return 1
	}
	var sum float64
	for _, b := range bars[len(bars)-n-1 : len(bars)-1] {
		sum += b.Volume
	}
	if sum == 0 {
		return 1
	}
	return bars[len(bars)-1].Volume / (sum / float64(n))
}

// Returns are simple close-to-close returns.
func Returns(bars []models.Candle) []float64 {
	if len(bars) < 2 {
		return nil
	}
	out := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		if bars[i-1].Close == 0 {
			continue
		}
		out = append(out, bars[i].Close/bars[i-1].Close-1)
	}
	return out
}

func maxSlice(a []float64) float64 {
	if len(a) == 0 {
		return 0
	}
	m := a[0]
	for _, v := range a[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minSlice(a []float64) float64 {
	if len(a) == 0 {
		return 0
	}
	m := a[0]
	for _, v := range a[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func highs(bars []models.Candle) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.High
	}
	return out
}

func lows(bars []models.Candle) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Low
	}
	return out
}
