package service

import (
	"testing"
	"time"
)

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Base: 2 * time.Second, Cap: 60 * time.Second}
	want := []time.Duration{0, 2, 4, 8, 16, 32, 60, 60, 60}
	for n, w := range want {
		if got := b.Delay(n); got != w*time.Second {
			t.Fatalf("attempt %d: got %v want %v", n, got, w*time.Second)
		}
	}
	// far attempts must not overflow
	if got := b.Delay(500); got != 60*time.Second {
		t.Fatalf("attempt 500: %v", got)
	}
}

func TestBackoffMatchesFormula(t *testing.T) {
	b := Backoff{Base: 2 * time.Second, Cap: 60 * time.Second}
	for n := 1; n <= 20; n++ {
		exp := b.Base
		for i := 1; i < n && exp < b.Cap; i++ {
			exp *= 2
		}
		if exp > b.Cap {
			exp = b.Cap
		}
		if got := b.Delay(n); got != exp {
			t.Fatalf("n=%d got %v want %v", n, got, exp)
		}
	}
}

func TestFSMTransitions(t *testing.T) {
	f := NewFSM(Backoff{Base: time.Second, Cap: time.Minute}, 2)
	steps := []struct {
		ev   Event
		want State
	}{
		{EvDialOK, StateConnected},
		{EvLost, StateReconnecting},
		{EvDialFailed, StateReconnecting},
		{EvDialOK, StateConnected},
	}
	for i, s := range steps {
		if s.ev == EvDialFailed || (s.ev == EvDialOK && f.State() == StateReconnecting) {
			f.NextAttempt()
		}
		if _, to, err := f.Fire(s.ev); err != nil || to != s.want {
			t.Fatalf("step %d: to=%s err=%v", i, to, err)
		}
	}
	if f.Attempt() != 0 {
		t.Fatalf("attempt not reset after connect: %d", f.Attempt())
	}
}

func TestFSMExhaustsIntoFailed(t *testing.T) {
	f := NewFSM(Backoff{Base: time.Second, Cap: time.Minute}, 2)
	f.Fire(EvDialOK)
	f.Fire(EvLost)

	f.NextAttempt()
	if _, to, _ := f.Fire(EvDialFailed); to != StateReconnecting {
		t.Fatalf("after 1st failure: %s", to)
	}
	f.NextAttempt()
	if _, to, _ := f.Fire(EvDialFailed); to != StateFailed {
		t.Fatalf("after 2nd failure: %s", to)
	}
	if _, _, err := f.Fire(EvDialOK); err == nil {
		t.Fatal("FAILED must be terminal")
	}
}

func TestFSMRejectsUnknownTransition(t *testing.T) {
	f := NewFSM(Backoff{}, 1)
	if _, _, err := f.Fire(EvLost); err == nil {
		t.Fatal("IDLE + lost should be rejected")
	}
	if f.State() != StateIdle {
		t.Fatalf("state changed: %s", f.State())
	}
}
