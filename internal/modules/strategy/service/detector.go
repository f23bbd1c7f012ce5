package service

import (
	"fmt"
	"math"
	"sort"

	"trade_agent/internal/modules/config"
	"trade_agent/internal/models"
)

type Params struct {
	MinBars        int
	EMAFast        int
	EMASlow        int
	RSIPeriod      int
	BBPeriod       int
	BBStdDev       float64
	ATRPeriod      int
	ADXPeriod      int
	DonchianPeriod int
	PivotWindow    int
	LevelTolerance float64
	MinRR          float64
	MinStopATR     float64
	MinConfidence  float64
}

func ParamsFromConfig(c config.StrategyConfig) Params {
	return Params{
		MinBars:        c.MinBars,
		EMAFast:        c.EMAFast,
		EMASlow:        c.EMASlow,
		RSIPeriod:      c.RSIPeriod,
		BBPeriod:       c.BBPeriod,
		BBStdDev:       c.BBStdDev,
		ATRPeriod:      c.ATRPeriod,
		ADXPeriod:      c.ADXPeriod,
		DonchianPeriod: c.DonchianPeriod,
		PivotWindow:    c.PivotWindow,
		LevelTolerance: c.LevelTolerance,
		MinRR:          c.MinRR,
		MinStopATR:     c.MinStopATR,
		MinConfidence:  c.MinConfidence,
	}
}

// Detector is stateless: Detect depends on its input series only.
type Detector struct {
	p    Params
	recs []recognizer
}

func NewDetector(cfg *config.Config) *Detector {
	return NewDetectorWithParams(ParamsFromConfig(cfg.Strategy))
}

func NewDetectorWithParams(p Params) *Detector {
	if p.MinBars < 2 {
		p.MinBars = 2
	}
	if p.PivotWindow <= 0 {
		p.PivotWindow = 3
	}
	if p.LevelTolerance <= 0 {
		p.LevelTolerance = 0.004
	}
	return &Detector{p: p, recs: recognizers()}
}

func (d *Detector) MinBars() int { return d.p.MinBars }

func (d *Detector) Params() Params { return d.p }

// Detect returns the best pattern signal on the last bar of bars.
func (d *Detector) Detect(bars []models.Candle) (models.Signal, bool) {
	cands := d.Candidates(bars)
	if len(cands) == 0 {
		return models.Signal{}, false
	}
	return cands[0], true
}

// Candidates returns every qualifying signal, best first.
func (d *Detector) Candidates(bars []models.Candle) []models.Signal {
	if len(bars) < d.p.MinBars || len(bars) < 3 {
		return nil
	}
	atr := ATR(bars, d.p.ATRPeriod)
	if atr <= 0 {
		return nil
	}
	v := &view{
		bars:   bars,
		pivots: Pivots(bars, d.p.PivotWindow),
		atr:    atr,
		tol:    d.p.LevelTolerance,
		cfg:    d.p,
	}
	ctx := d.confluence(bars)
	last := bars[len(bars)-1]

	var out []models.Signal
	for _, rec := range d.recs {
		m, ok := rec(v)
		if !ok {
			continue
		}
		m, ok = d.normalize(m, atr)
		if !ok {
			continue
		}
		conf := 0.5*m.quality + 0.5*ctx.score(m.dir)
		if conf < d.p.MinConfidence {
			continue
		}
		out = append(out, models.Signal{
			InstID:      last.InstID,
			Direction:   m.dir,
			Entry:       m.entry,
			Stop:        m.stop,
			Target:      m.target,
			Confidence:  math.Round(conf*1000) / 1000,
			Pattern:     m.name,
			Reason:      m.reason,
			GeneratedAt: last.End,
			BarStart:    last.Start,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

// normalize enforces level ordering, the minimum stop distance and the reward:risk floor.
func (d *Detector) normalize(m match, atr float64) (match, bool) {
	sign := m.dir.Sign()
	if sign == 0 || m.entry <= 0 {
		return m, false
	}
	if (m.entry-m.stop)*sign <= 0 || (m.target-m.entry)*sign <= 0 {
		return m, false
	}
	if minDist := d.p.MinStopATR * atr; minDist > 0 && math.Abs(m.entry-m.stop) < minDist {
		m.stop = m.entry - sign*minDist
	}
	if m.stop <= 0 || m.target <= 0 {
		return m, false
	}
	rr := math.Abs(m.target-m.entry) / math.Abs(m.entry-m.stop)
	if d.p.MinRR > 0 && rr < d.p.MinRR {
		return m, false
	}
	m.reason = fmt.Sprintf("%s rr=%.2f", m.reason, rr)
	return m, true
}

type confluence struct {
	emaFast, emaSlow float64
	rsi              float64
	macd             MACDValue
	adx              ADXValue
}

func (d *Detector) confluence(bars []models.Candle) confluence {
	closes := Closes(bars)
	fast, _ := EMA(closes, d.p.EMAFast)
	slow, _ := EMA(closes, d.p.EMASlow)
	return confluence{
		emaFast: fast,
		emaSlow: slow,
		rsi:     RSI(closes, d.p.RSIPeriod),
		macd:    MACD(closes, 12, 26, 9),
		adx:     ADX(bars, d.p.ADXPeriod),
	}
}

// score is the 0..1 indicator agreement with dir.
func (c confluence) score(dir models.Direction) float64 {
	sign := dir.Sign()
	var trend, mom, macd, strength float64
	if (c.emaFast-c.emaSlow)*sign > 0 {
		trend = 1
	}
	r := c.rsi
	if sign < 0 {
		r = 100 - r
	}
	switch {
	case r > 75:
		mom = 0.3
	case r >= 45:
		mom = 1
	default:
		mom = 0.5
	}
	if c.macd.Hist*sign > 0 {
		macd = 1
	}
	strength = math.Min(1, c.adx.ADX/20)
	return (trend + mom + macd + strength) / 4
}
