package models

import "time"

type Direction string

const (
	DirNone  Direction = ""
	DirLong  Direction = "long"
	DirShort Direction = "short"
)

// Sign returns +1 for long and -1 for short.
func (d Direction) Sign() float64 {
	switch d {
	case DirLong:
		return 1
	case DirShort:
		return -1
	}
	return 0
}

func (d Direction) Opposite() Direction {
	switch d {
	case DirLong:
		return DirShort
	case DirShort:
		return DirLong
	}
	return DirNone
}

type Signal struct {
	InstID      string    `json:"instrument"`
	Direction   Direction `json:"direction"`
	Entry       float64   `json:"entry_price"`
	Stop        float64   `json:"stop_price"`
	Target      float64   `json:"target_price"`
	Confidence  float64   `json:"confidence"`
	Pattern     string    `json:"pattern_name"`
	Reason      string    `json:"reason,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
	// BarStart is the start of the last sealed bar the signal was computed on.
	BarStart time.Time `json:"bar_start"`
}

func (s Signal) RiskDist() float64 {
	d := s.Entry - s.Stop
	if d < 0 {
		d = -d
	}
	return d
}

func (s Signal) RewardDist() float64 {
	d := s.Target - s.Entry
	if d < 0 {
		d = -d
	}
	return d
}

// RR is reward:risk, 0 when the stop distance is zero.
func (s Signal) RR() float64 {
	r := s.RiskDist()
	if r <= 0 {
		return 0
	}
	return s.RewardDist() / r
}

// CheckResult is one checker verdict, the pipeline keeps them in order for audit.
type CheckResult struct {
	Checker string `json:"checker"`
	Passed  bool   `json:"passed"`
	Reason  string `json:"reason"`
}

func Pass(name, reason string) CheckResult { return CheckResult{Checker: name, Passed: true, Reason: reason} }
func Fail(name, reason string) CheckResult { return CheckResult{Checker: name, Passed: false, Reason: reason} }
