package service

import (
	"fmt"
	"strings"
	"time"

	"trade_agent/internal/models"
)

const helpText = "*Trade agent*\n\n" +
	"/status - feed, equity and risk latch\n" +
	"/positions - open positions"

func FormatOpened(p models.Position) string {
	return fmt.Sprintf(
		"*🟢 Opened %s %s*\n\n"+
			"Pattern: `%s`\n"+
			"Qty: `%s`\n"+
			"Entry: `%s`\n"+
			"Stop: `%s`\n"+
			"Target: `%s`\n",
		p.InstID,
		strings.ToUpper(string(p.Direction)),
		p.Pattern,
		f4(p.Qty),
		f4(p.Entry),
		f4(p.Stop),
		f4(p.Target),
	)
}

func FormatClosed(p models.Position) string {
	icon := "🔴"
	if p.PnL > 0 {
		icon = "✅"
	}
	return fmt.Sprintf(
		"*%s Closed %s %s*\n\n"+
			"Reason: `%s`\n"+
			"Entry: `%s` Exit: `%s`\n"+
			"PnL: `%s` (fees `%s`)\n"+
			"Held: `%s`\n",
		icon,
		p.InstID,
		strings.ToUpper(string(p.Direction)),
		p.ExitReason,
		f4(p.Entry),
		f4(p.ExitPrice),
		f2(p.PnL),
		f2(p.Fees),
		p.ClosedAt.Sub(p.OpenedAt).Truncate(time.Second),
	)
}

func FormatStatus(feedState string, mode string, rs models.RiskState, open int) string {
	return fmt.Sprintf(
		"*📊 Status*\n\n"+
			"Feed: `%s`\n"+
			"Mode: `%s`\n"+
			"Equity: `%s`\n"+
			"Realized today: `%s`\n"+
			"Open positions: `%d` (exposure `%s`)\n"+
			"Max drawdown: `%s%%`\n"+
			"Daily loss latch: *%s*\n",
		feedState,
		mode,
		f2(rs.Equity),
		f2(rs.RealizedPnLToday),
		open,
		f2(rs.OpenExposure),
		f2(rs.MaxDrawdownSeen*100),
		onOff(rs.DailyLossLatched),
	)
}

func FormatPositions(ps []models.Position) string {
	if len(ps) == 0 {
		return "📭 No open positions"
	}
	var b strings.Builder
	b.WriteString("*📈 Open positions*\n")
	for _, p := range ps {
		fmt.Fprintf(&b, "\n`%s` %s qty=%s entry=%s stop=%s target=%s last=%s uPnL=%s",
			p.InstID, strings.ToUpper(string(p.Direction)),
			f4(p.Qty), f4(p.Entry), f4(p.Stop), f4(p.Target), f4(p.LastPrice), f2(p.UnrealizedPnL(p.LastPrice)))
	}
	return b.String()
}
