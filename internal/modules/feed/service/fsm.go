package service

import (
	"fmt"
	"sync"
	"time"
)

type State string

const (
	StateIdle         State = "IDLE"
	StateConnected    State = "CONNECTED"
	StateReconnecting State = "RECONNECTING"
	StateFailed       State = "FAILED"
	StateClosed       State = "CLOSED"
)

type Event string

const (
	EvDialOK     Event = "dial_ok"
	EvDialFailed Event = "dial_failed"
	EvLost       Event = "lost"
	EvExhausted  Event = "exhausted"
	EvStop       Event = "stop"
)

// FAILED and CLOSED are terminal: the feed has to be rebuilt from scratch.
var transitions = map[State]map[Event]State{
	StateIdle: {
		EvDialOK:     StateConnected,
		EvDialFailed: StateReconnecting,
		EvStop:       StateClosed,
	},
	StateConnected: {
		EvLost: StateReconnecting,
		EvStop: StateClosed,
	},
	StateReconnecting: {
		EvDialOK:     StateConnected,
		EvDialFailed: StateReconnecting,
		EvExhausted:  StateFailed,
		EvStop:       StateClosed,
	},
}

// Backoff yields min(Base * 2^(attempt-1), Cap).
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
}

func (b Backoff) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		if d >= b.Cap/2 {
			return b.Cap
		}
		d *= 2
	}
	if d > b.Cap {
		return b.Cap
	}
	return d
}

// FSM is the reconnect state machine. attempt counts reconnect dials since the last
// successful connection and resets to zero on EvDialOK.
type FSM struct {
	mu          sync.Mutex
	state       State
	attempt     int
	maxAttempts int
	backoff     Backoff
}

func NewFSM(b Backoff, maxAttempts int) *FSM {
	return &FSM{state: StateIdle, backoff: b, maxAttempts: maxAttempts}
}

func (f *FSM) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *FSM) Attempt() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempt
}

// NextAttempt bumps the attempt counter and returns it with the delay to wait before dialing.
func (f *FSM) NextAttempt() (int, time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempt++
	return f.attempt, f.backoff.Delay(f.attempt)
}

// Fire applies ev and returns (from, to). A failed dial that used up the budget
// is turned into EvExhausted.
func (f *FSM) Fire(ev Event) (State, State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if ev == EvDialFailed && f.state == StateReconnecting && f.maxAttempts > 0 && f.attempt >= f.maxAttempts {
		ev = EvExhausted
	}

	from := f.state
	to, ok := transitions[from][ev]
	if !ok {
		return from, from, fmt.Errorf("feed fsm: no transition from %s on %s", from, ev)
	}
	f.state = to
	if to == StateConnected {
		f.attempt = 0
	}
	return from, to, nil
}
