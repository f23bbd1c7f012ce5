package service

// emaTracker is an incremental EMA. The first sample seeds the value; it is
// considered settled once period samples have been seen.
type emaTracker struct {
	period int
	k      float64
	value  float64
	seen   int
}

func newEMATracker(period int) *emaTracker {
	if period < 1 {
		period = 1
	}
	return &emaTracker{period: period, k: 2.0 / float64(period+1)}
}

// Next folds v in and returns the updated average.
func (e *emaTracker) Next(v float64) float64 {
	if e.seen == 0 {
		e.value = v
	} else {
		e.value += e.k * (v - e.value)
	}
	if e.seen < e.period {
		e.seen++
	}
	return e.value
}

func (e *emaTracker) Settled() bool { return e.seen >= e.period }

// EMASeries returns the EMA at every index. Values before the period is reached are
// warm-up estimates.
func EMASeries(values []float64, n int) []float64 {
	out := make([]float64, len(values))
	e := newEMATracker(n)
	for i, v := range values {
		out[i] = e.Next(v)
	}
	return out
}

// EMA returns the last EMA value and whether it is warmed up.
func EMA(values []float64, n int) (float64, bool) {
	e := newEMATracker(n)
	var last float64
	for _, v := range values {
		last = e.Next(v)
	}
	return last, len(values) > 0 && e.Settled()
}
