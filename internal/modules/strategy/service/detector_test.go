package service

import (
	"reflect"
	"testing"

	"trade_agent/internal/models"
)

func hasPattern(sigs []models.Signal, name string) (models.Signal, bool) {
	for _, s := range sigs {
		if s.Pattern == name {
			return s, true
		}
	}
	return models.Signal{}, false
}

func TestDetectRequiresMinBars(t *testing.T) {
	d := NewDetectorWithParams(testParams())
	bars := fromCloses(doubleBottomCloses(), 0.2)

	if _, ok := d.Detect(nil); ok {
		t.Fatal("empty series must not signal")
	}
	if _, ok := d.Detect(bars[:d.MinBars()-1]); ok {
		t.Fatal("series below min bars must not signal")
	}
}

func TestDetectFlatSeries(t *testing.T) {
	d := NewDetectorWithParams(testParams())
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100
	}
	if sigs := d.Candidates(fromCloses(closes, 0)); len(sigs) != 0 {
		t.Fatalf("flat series produced %+v", sigs)
	}
}

func TestDetectDoubleBottom(t *testing.T) {
	d := NewDetectorWithParams(testParams())
	bars := fromCloses(doubleBottomCloses(), 0.2)

	sig, ok := d.Detect(bars)
	if !ok {
		t.Fatal("expected a signal")
	}
	if sig.Pattern != "double_bottom" || sig.Direction != models.DirLong {
		t.Fatalf("got %s %s", sig.Pattern, sig.Direction)
	}
	if !(sig.Stop < sig.Entry && sig.Entry < sig.Target) {
		t.Fatalf("level ordering: %+v", sig)
	}
	if sig.RR() < testParams().MinRR {
		t.Fatalf("rr %v", sig.RR())
	}
	last := bars[len(bars)-1]
	if !sig.GeneratedAt.Equal(last.End) || !sig.BarStart.Equal(last.Start) || sig.InstID != "TEST" {
		t.Fatalf("signal metadata %+v", sig)
	}
	if sig.Confidence < testParams().MinConfidence || sig.Confidence > 1 {
		t.Fatalf("confidence %v", sig.Confidence)
	}
}

func TestDetectDoubleTopMirrorsBottom(t *testing.T) {
	d := NewDetectorWithParams(testParams())
	bars := fromCloses(mirror(doubleBottomCloses(), 125), 0.2)

	sig, ok := hasPattern(d.Candidates(bars), "double_top")
	if !ok {
		t.Fatal("expected double_top")
	}
	if sig.Direction != models.DirShort || !(sig.Target < sig.Entry && sig.Entry < sig.Stop) {
		t.Fatalf("short levels %+v", sig)
	}
}

func TestDetectBullFlag(t *testing.T) {
	d := NewDetectorWithParams(testParams())
	sig, ok := hasPattern(d.Candidates(fromCloses(bullFlagCloses(), 0.2)), "bull_flag")
	if !ok {
		t.Fatal("expected bull_flag")
	}
	if sig.Direction != models.DirLong || sig.Stop >= sig.Entry {
		t.Fatalf("flag %+v", sig)
	}
}

func TestDetectIsDeterministic(t *testing.T) {
	d := NewDetectorWithParams(testParams())
	bars := fromCloses(doubleBottomCloses(), 0.2)
	cp := append([]models.Candle(nil), bars...)

	a := d.Candidates(bars)
	b := d.Candidates(bars)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("same input gave different output")
	}
	if !reflect.DeepEqual(bars, cp) {
		t.Fatal("detector mutated its input")
	}
}

func TestRRFloorRejects(t *testing.T) {
	p := testParams()
	p.MinRR = 5
	d := NewDetectorWithParams(p)
	if _, ok := hasPattern(d.Candidates(fromCloses(doubleBottomCloses(), 0.2)), "double_bottom"); ok {
		t.Fatal("double_bottom should fail a 5R floor")
	}
}

func TestCandidatesSortedByConfidence(t *testing.T) {
	p := testParams()
	p.MinConfidence = 0
	d := NewDetectorWithParams(p)
	sigs := d.Candidates(fromCloses(bullFlagCloses(), 0.2))
	for i := 1; i < len(sigs); i++ {
		if sigs[i].Confidence > sigs[i-1].Confidence {
			t.Fatalf("not sorted: %+v", sigs)
		}
	}
}
