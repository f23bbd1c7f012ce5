package helper

import (
	"fmt"
	"time"
)

// Session describes the daily trading window in a fixed location.
// An empty Open/Close pair means the market trades around the clock and the
// session day rolls at local midnight.
type Session struct {
	loc       *time.Location
	open      clock
	close     clock
	forceExit clock
	allDay    bool
}

type clock struct {
	set bool
	min int // minutes after midnight
}

func parseClock(s string) (clock, error) {
	if s == "" {
		return clock{}, nil
	}
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return clock{}, fmt.Errorf("bad clock %q, want HH:MM", s)
	}
	return clock{set: true, min: h*60 + m}, nil
}

func NewSession(tz, open, close, forceExit string) (Session, error) {
	loc := time.UTC
	if tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return Session{}, fmt.Errorf("session tz: %w", err)
		}
		loc = l
	}
	o, err := parseClock(open)
	if err != nil {
		return Session{}, err
	}
	c, err := parseClock(close)
	if err != nil {
		return Session{}, err
	}
	f, err := parseClock(forceExit)
	if err != nil {
		return Session{}, err
	}
	if o.set != c.set {
		return Session{}, fmt.Errorf("session open and close must be set together")
	}
	if o.set && c.min <= o.min {
		return Session{}, fmt.Errorf("session close %s must be after open %s", close, open)
	}
	return Session{loc: loc, open: o, close: c, forceExit: f, allDay: !o.set}, nil
}

func (s Session) Location() *time.Location {
	if s.loc == nil {
		return time.UTC
	}
	return s.loc
}

func (s Session) minuteOfDay(t time.Time) int {
	lt := t.In(s.Location())
	return lt.Hour()*60 + lt.Minute()
}

// Day is the session key of t: local midnight of the trading day.
func (s Session) Day(t time.Time) time.Time {
	lt := t.In(s.Location())
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, s.Location())
}

func (s Session) AllDay() bool { return s.allDay }

func (s Session) IsOpen(t time.Time) bool {
	if s.allDay {
		return true
	}
	m := s.minuteOfDay(t)
	return m >= s.open.min && m < s.close.min
}

// SinceOpen is the number of minutes since the session opened; -1 when closed or all-day.
func (s Session) SinceOpen(t time.Time) int {
	if s.allDay || !s.IsOpen(t) {
		return -1
	}
	return s.minuteOfDay(t) - s.open.min
}

// ToClose is the number of minutes until the session closes; -1 when closed or all-day.
func (s Session) ToClose(t time.Time) int {
	if s.allDay || !s.IsOpen(t) {
		return -1
	}
	return s.close.min - s.minuteOfDay(t)
}

// PastForceExit reports whether t is at or after the forced exit time of its day.
// Without a configured force exit time the session close is used; all-day sessions never force exit.
func (s Session) PastForceExit(t time.Time) bool {
	at := s.forceExit
	if !at.set {
		at = s.close
	}
	if !at.set {
		return false
	}
	return s.minuteOfDay(t) >= at.min
}
