package helper

import (
	"testing"
	"time"
)

func TestParseTF(t *testing.T) {
	cases := map[string]time.Duration{
		"1m":       time.Minute,
		"candle5m": 5 * time.Minute,
		"60m":      time.Hour,
		"1H":       time.Hour,
		"4h":       4 * time.Hour,
		"1d":       24 * time.Hour,
		"30s":      30 * time.Second,
	}
	for in, want := range cases {
		got, err := ParseTF(in)
		if err != nil {
			t.Fatalf("ParseTF(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseTF(%q) = %v, want %v", in, got, want)
		}
	}
	for _, bad := range []string{"", "xm", "-1m", "0d"} {
		if _, err := ParseTF(bad); err == nil {
			t.Fatalf("ParseTF(%q) expected error", bad)
		}
	}
}

func TestBucketStart(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 7, 42, 0, time.UTC)
	got := BucketStart(ts, 5*time.Minute)
	want := time.Date(2024, 3, 1, 10, 5, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestRounding(t *testing.T) {
	if v := RoundDownToTick(100.037, 0.01); v < 100.029 || v > 100.031 {
		t.Fatalf("down: %v", v)
	}
	if v := RoundUpToTick(100.031, 0.01); v < 100.039 || v > 100.041 {
		t.Fatalf("up: %v", v)
	}
	if v := RoundDownToLot(7.9, 0.5); v != 7.5 {
		t.Fatalf("lot: %v", v)
	}
	if v := RoundDownToLot(7.9, 0); v != 7.9 {
		t.Fatalf("no lot: %v", v)
	}
}
