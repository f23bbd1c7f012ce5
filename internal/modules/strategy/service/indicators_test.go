package service

import (
	"math"
	"testing"
)

func approx(a, b, eps float64) bool { return math.Abs(a-b) <= eps }

func TestSMAAndEMA(t *testing.T) {
	v := []float64{1, 2, 3, 4, 5}
	if got := SMA(v, 5); got != 3 {
		t.Fatalf("sma %v", got)
	}
	if got := SMA(v, 6); got != 0 {
		t.Fatalf("short sma %v", got)
	}
	flat := []float64{7, 7, 7, 7, 7, 7}
	if got, ok := EMA(flat, 3); !ok || got != 7 {
		t.Fatalf("ema %v %v", got, ok)
	}
	if _, ok := EMA([]float64{1, 2}, 5); ok {
		t.Fatal("ema should not be ready")
	}
}

func TestRSIExtremes(t *testing.T) {
	up := line(1, 30, 30)
	if got := RSI(up, 14); got != 100 {
		t.Fatalf("rsi up %v", got)
	}
	down := line(30, 1, 30)
	if got := RSI(down, 14); got != 0 {
		t.Fatalf("rsi down %v", got)
	}
	if got := RSI([]float64{1, 2}, 14); got != 50 {
		t.Fatalf("rsi short %v", got)
	}
}

func TestATRAndBollinger(t *testing.T) {
	bars := fromCloses(make([]float64, 30), 0)
	for i := range bars {
		bars[i].Close, bars[i].Open, bars[i].High, bars[i].Low = 100, 100, 101, 99
	}
	if got := ATR(bars, 14); !approx(got, 2, 1e-9) {
		t.Fatalf("atr %v", got)
	}
	b, ok := Bollinger(Closes(bars), 20, 2)
	if !ok || b.Width != 0 || b.Mid != 100 {
		t.Fatalf("bands %+v", b)
	}
	if _, ok := Bollinger([]float64{1}, 20, 2); ok {
		t.Fatal("short series must not produce bands")
	}
}

func TestADXTrendVersusChop(t *testing.T) {
	trend := fromCloses(line(100, 160, 60), 0.3)
	a := ADX(trend, 14)
	if a.ADX < 25 || a.PlusDI <= a.MinusDI {
		t.Fatalf("trend adx %+v", a)
	}
	chop := make([]float64, 60)
	for i := range chop {
		chop[i] = 100 + float64(i%2)
	}
	c := ADX(fromCloses(chop, 0.3), 14)
	if c.ADX >= a.ADX {
		t.Fatalf("chop adx %v should be below trend adx %v", c.ADX, a.ADX)
	}
	if z := ADX(trend[:10], 14); z.ADX != 0 {
		t.Fatalf("short adx %+v", z)
	}
}

func TestMACDSign(t *testing.T) {
	if m := MACD(line(100, 150, 60), 12, 26, 9); m.MACD <= 0 {
		t.Fatalf("rising macd %+v", m)
	}
	if m := MACD(line(150, 100, 60), 12, 26, 9); m.MACD >= 0 {
		t.Fatalf("falling macd %+v", m)
	}
}

func TestVWAPAndRelVolume(t *testing.T) {
	bars := fromCloses([]float64{10, 10, 10, 20}, 0)
	bars[3].Open, bars[3].High, bars[3].Low, bars[3].Volume = 20, 20, 20, 300
	if got := VWAP(bars, 0); !approx(got, (10*100*3+20*300)/600.0, 1e-9) {
		t.Fatalf("vwap %v", got)
	}
	if got := RelVolume(bars, 3); got != 3 {
		t.Fatalf("relvol %v", got)
	}
	if got := RelVolume(bars[:1], 3); got != 1 {
		t.Fatalf("relvol short %v", got)
	}
}

func TestPivotsAlternate(t *testing.T) {
	bars := fromCloses(doubleBottomCloses(), 0.2)
	ps := Pivots(bars, 2)
	if len(ps) != 3 {
		t.Fatalf("pivots %+v", ps)
	}
	if ps[0].High || !ps[1].High || ps[2].High {
		t.Fatalf("expected low/high/low, got %+v", ps)
	}
	for i := 1; i < len(ps); i++ {
		if ps[i].High == ps[i-1].High {
			t.Fatal("pivots must alternate")
		}
	}
}
