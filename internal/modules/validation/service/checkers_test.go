package service

import (
	"strings"
	"testing"
	"time"

	"trade_agent/internal/helper"
	"trade_agent/internal/models"
	"trade_agent/internal/modules/config"
)

var t0 = time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC)

func trendBars(n int, from, step float64) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		c := from + step*float64(i)
		start := t0.Add(time.Duration(i) * time.Minute)
		out[i] = models.Candle{
			InstID: "AAA", Start: start, End: start.Add(time.Minute),
			Open: c - step/2, High: c + 0.3, Low: c - 0.3, Close: c, Volume: 100,
		}
	}
	return out
}

func longSignal(bars []models.Candle) models.Signal {
	last := bars[len(bars)-1]
	return models.Signal{
		InstID:    "AAA",
		Direction: models.DirLong,
		Entry:     last.Close,
		Stop:      last.Close - 2,
		Target:    last.Close + 4,
		BarStart:  last.Start,
	}
}

func allDay(t *testing.T) helper.Session {
	t.Helper()
	s, err := helper.NewSession("UTC", "", "", "")
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestCheckersNeverPanicOnEmptyInput(t *testing.T) {
	cfg := config.Defaults("AAA")
	for _, c := range DefaultCheckers(cfg, allDay(t)) {
		res := c.Evaluate(Input{})
		if res.Checker != c.Name() {
			t.Fatalf("%s reported as %q", c.Name(), res.Checker)
		}
	}
}

func TestDefaultOrder(t *testing.T) {
	want := []string{
		"trend", "relative_strength", "abnormal_move", "volatility_regime",
		"pattern_consistency", "multi_timeframe", "sentiment_extreme",
		"time_of_day", "slippage", "liquidity", "fee_coverage", "capital",
	}
	got := NewPipeline(nil, Stage, DefaultCheckers(config.Defaults("AAA"), allDay(t))).Names()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("order %v", got)
	}
}

func TestTrendChecker(t *testing.T) {
	up := trendBars(80, 100, 0.5)
	c := trendChecker{period: 50}
	if r := c.Evaluate(Input{Signal: longSignal(up), Bars: up}); !r.Passed {
		t.Fatalf("long in uptrend: %+v", r)
	}
	short := longSignal(up)
	short.Direction = models.DirShort
	if r := c.Evaluate(Input{Signal: short, Bars: up}); r.Passed {
		t.Fatal("short in uptrend should fail")
	}
	if r := c.Evaluate(Input{Signal: short, Bars: up[:10]}); !r.Passed || !strings.HasPrefix(r.Reason, "skipped") {
		t.Fatalf("short series should skip: %+v", r)
	}
}

func TestRelativeStrength(t *testing.T) {
	inst := trendBars(40, 100, 1)
	bench := trendBars(40, 100, 0.1)
	c := relativeStrengthChecker{lookback: 20}
	in := Input{Signal: longSignal(inst), Bars: inst, Market: models.MarketContext{Benchmark: bench}}
	if r := c.Evaluate(in); !r.Passed {
		t.Fatalf("outperformer: %+v", r)
	}
	in.Bars, in.Market.Benchmark = bench, inst
	if r := c.Evaluate(in); r.Passed {
		t.Fatal("underperformer long should fail")
	}
	in.Market.Benchmark = nil
	if r := c.Evaluate(in); !r.Passed {
		t.Fatal("missing benchmark should skip")
	}
}

func TestAbnormalMove(t *testing.T) {
	bars := trendBars(30, 100, 0.1)
	c := abnormalMoveChecker{atrPeriod: 14, maxATR: 4}
	if r := c.Evaluate(Input{Bars: bars}); !r.Passed {
		t.Fatalf("calm: %+v", r)
	}
	bars[len(bars)-1].High += 20
	if r := c.Evaluate(Input{Bars: bars}); r.Passed {
		t.Fatal("spike should fail")
	}
}

func TestPatternConsistency(t *testing.T) {
	bars := trendBars(30, 100, 0.1)
	c := patternConsistencyChecker{minRR: 1.5, atrPeriod: 14}
	s := longSignal(bars)
	if r := c.Evaluate(Input{Signal: s, Bars: bars}); !r.Passed {
		t.Fatalf("good signal: %+v", r)
	}
	bad := s
	bad.Stop = s.Entry + 1
	if r := c.Evaluate(Input{Signal: bad, Bars: bars}); r.Passed {
		t.Fatal("stop above entry on a long should fail")
	}
	stale := s
	stale.BarStart = bars[len(bars)-2].Start
	if r := c.Evaluate(Input{Signal: stale, Bars: bars}); r.Passed {
		t.Fatal("stale signal should fail")
	}
	lowRR := s
	lowRR.Target = s.Entry + 1
	if r := c.Evaluate(Input{Signal: lowRR, Bars: bars}); r.Passed {
		t.Fatal("rr below floor should fail")
	}
}

func TestMultiTimeframe(t *testing.T) {
	bars := trendBars(30, 100, 0.1)
	c := multiTimeframeChecker{fast: 9, slow: 21}
	in := Input{Signal: longSignal(bars), Bars: bars, Market: models.MarketContext{HigherTF: trendBars(30, 120, -1)}}
	if r := c.Evaluate(in); r.Passed {
		t.Fatal("higher timeframe downtrend should block a long")
	}
	in.Market.HigherTF = trendBars(5, 100, 1)
	if r := c.Evaluate(in); !r.Passed {
		t.Fatal("short higher timeframe should skip")
	}
}

func TestSentimentExtreme(t *testing.T) {
	c := sentimentExtremeChecker{low: 10, high: 90}
	in := Input{Signal: models.Signal{Direction: models.DirLong}, Market: models.MarketContext{Sentiment: 95, HasSentiment: true}}
	if r := c.Evaluate(in); r.Passed {
		t.Fatal("long into euphoria should fail")
	}
	in.Signal.Direction = models.DirShort
	if r := c.Evaluate(in); !r.Passed {
		t.Fatal("short into euphoria is fine")
	}
	in.Market.HasSentiment = false
	in.Market.Sentiment = 0
	if r := c.Evaluate(in); !r.Passed {
		t.Fatal("unknown sentiment should skip")
	}
}

func TestTimeOfDay(t *testing.T) {
	s, err := helper.NewSession("UTC", "09:30", "16:00", "")
	if err != nil {
		t.Fatal(err)
	}
	c := timeOfDayChecker{session: s, avoidOpen: 15, avoidClose: 30}
	at := func(h, m int) models.CheckResult {
		return c.Evaluate(Input{Market: models.MarketContext{Now: time.Date(2024, 3, 4, h, m, 0, 0, time.UTC)}})
	}
	if at(9, 35).Passed {
		t.Fatal("too close to the open")
	}
	if !at(11, 0).Passed {
		t.Fatal("mid session should pass")
	}
	if at(15, 45).Passed {
		t.Fatal("too close to the close")
	}
	if at(20, 0).Passed {
		t.Fatal("closed session")
	}
	if c.Evaluate(Input{}).Passed {
		t.Fatal("missing clock must fail")
	}
}

func TestSlippageAndLiquidity(t *testing.T) {
	sig := models.Signal{Direction: models.DirLong, Entry: 100, Stop: 99.9, Target: 101}
	slip := slippageChecker{slippagePct: 0.0005, maxStopFrac: 0.25}
	if r := slip.Evaluate(Input{Signal: sig}); r.Passed {
		t.Fatal("0.05 slippage on a 0.1 stop should fail")
	}
	sig.Stop = 98
	if r := slip.Evaluate(Input{Signal: sig}); !r.Passed {
		t.Fatalf("wide stop: %+v", r)
	}

	liq := liquidityChecker{maxSpreadPct: 0.002, minRelVolume: 0.5, volPeriod: 20}
	in := Input{Signal: sig, Market: models.MarketContext{Quote: models.Quote{Bid: 99, Ask: 101}}}
	if r := liq.Evaluate(in); r.Passed {
		t.Fatal("2% spread should fail")
	}
	in.Market.Quote = models.Quote{}
	in.Bars = trendBars(30, 100, 0.1)
	in.Bars[len(in.Bars)-1].Volume = 10
	if r := liq.Evaluate(in); r.Passed {
		t.Fatal("thin last bar should fail")
	}
}

func TestFeeCoverage(t *testing.T) {
	c := feeCoverageChecker{feePct: 0.001, minCover: 3}
	if r := c.Evaluate(Input{Signal: models.Signal{Direction: models.DirLong, Entry: 100, Stop: 99, Target: 100.5}}); r.Passed {
		t.Fatal("0.5 reward vs 0.2 fees is 2.5x")
	}
	if r := c.Evaluate(Input{Signal: models.Signal{Direction: models.DirLong, Entry: 100, Stop: 99, Target: 102}}); !r.Passed {
		t.Fatalf("10x coverage: %+v", r)
	}
}

func TestCapital(t *testing.T) {
	cfg := config.Defaults("AAA")
	c := capitalChecker{risk: cfg.Risk}
	sig := models.Signal{Direction: models.DirLong, Entry: 100, Stop: 98, Target: 106}

	if r := c.Evaluate(Input{Signal: sig}); r.Passed {
		t.Fatal("no equity must fail")
	}
	full := models.RiskState{Equity: 10000, OpenExposure: 10000}
	if r := c.Evaluate(Input{Signal: sig, Risk: full}); r.Passed {
		t.Fatal("fully deployed capital must fail")
	}
	if r := c.Evaluate(Input{Signal: sig, Risk: models.RiskState{Equity: 10000}}); !r.Passed {
		t.Fatalf("free capital: %+v", r)
	}

	// 500 free against a 1000 position
	tight := models.RiskState{Equity: 10000, OpenExposure: 9500}
	c.risk.MaxExposureFraction = 1
	c.risk.LotStep = 0
	if r := c.Evaluate(Input{Signal: sig, Qty: 10, Risk: tight}); r.Passed {
		t.Fatalf("underfunded entry without lot step passed: %+v", r)
	}
	c.risk.LotStep = 1
	if r := c.Evaluate(Input{Signal: sig, Qty: 10, Risk: tight}); !r.Passed {
		t.Fatalf("one lot fits, want pass: %+v", r)
	}
	c.risk.LotStep = 6
	if r := c.Evaluate(Input{Signal: sig, Qty: 10, Risk: tight}); r.Passed {
		t.Fatalf("lot of 600 does not fit in 500: %+v", r)
	}
}

func TestValidatorHonorsDisabled(t *testing.T) {
	cfg := config.Defaults("AAA")
	cfg.Validation.Disabled = []string{"sentiment_extreme", "time_of_day"}
	v := NewValidator(cfg, allDay(t), zapNop())
	for _, n := range v.Names() {
		if n == "sentiment_extreme" || n == "time_of_day" {
			t.Fatalf("%s still registered", n)
		}
	}
	if len(v.Names()) != 10 {
		t.Fatalf("names %v", v.Names())
	}
}
