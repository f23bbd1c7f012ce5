package service

import (
	"sync/atomic"
	"time"
)

// State is what the health endpoints report. Writers are the feed, the market
// store and the runner.
type State struct {
	ready     atomic.Bool
	startedAt time.Time

	feedState     atomic.Value // string
	lastTickUnix  atomic.Int64 // unix seconds
	openPositions atomic.Int64
	latched       atomic.Bool
}

func NewState() *State {
	s := &State{startedAt: time.Now()}
	s.feedState.Store("IDLE")
	return s
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

// SetFeedState also drives readiness: ready only while the feed is CONNECTED.
func (s *State) SetFeedState(st string) {
	s.feedState.Store(st)
	s.ready.Store(st == "CONNECTED")
}

func (s *State) FeedState() string { return s.feedState.Load().(string) }

func (s *State) TouchTick(t time.Time) { s.lastTickUnix.Store(t.Unix()) }
func (s *State) LastTick() time.Time {
	u := s.lastTickUnix.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

func (s *State) SetOpenPositions(n int) { s.openPositions.Store(int64(n)) }
func (s *State) OpenPositions() int     { return int(s.openPositions.Load()) }

func (s *State) SetLatched(v bool) { s.latched.Store(v) }
func (s *State) Latched() bool     { return s.latched.Load() }

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }
