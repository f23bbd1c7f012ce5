package service

import "trade_agent/internal/models"

// Breadth counts the share of instruments whose last close is above / below their
// simple average over lookback bars. Instruments with short series are skipped.
func Breadth(series map[string][]models.Candle, exclude string, lookback int) (up, down float64, n int) {
	if lookback <= 0 {
		lookback = 20
	}
	var ups, downs int
	for id, bars := range series {
		if id == exclude || len(bars) < lookback {
			continue
		}
		var sum float64
		for _, c := range bars[len(bars)-lookback:] {
			sum += c.Close
		}
		avg := sum / float64(lookback)
		last := bars[len(bars)-1].Close
		n++
		switch {
		case last > avg:
			ups++
		case last < avg:
			downs++
		}
	}
	if n == 0 {
		return 0, 0, 0
	}
	return float64(ups) / float64(n), float64(downs) / float64(n), n
}
