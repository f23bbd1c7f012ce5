package runner

import (
	"trade_agent/internal/modules/telegram_bot/service"
)

func (s *Scheduler) StatusText() string {
	feedState := "unknown"
	if s.feed != nil {
		feedState = string(s.feed.State())
	}
	return service.FormatStatus(feedState, s.gw.Mode(), s.risk.State(), s.positions.Count())
}

func (s *Scheduler) PositionsText() string {
	return service.FormatPositions(s.positions.Positions())
}
