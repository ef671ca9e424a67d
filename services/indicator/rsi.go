package indicator

// rsi is an incremental relative strength index with Wilder smoothing of
// average gain and loss. Needs period price changes, so it defines after
// period+1 candles. All-gain streams report 100, all-loss streams 0.
type rsi struct {
	period    int
	prevClose float64
	hasPrev   bool
	seedGain  float64
	seedLoss  float64
	seen      int
	avgGain   float64
	avgLoss   float64
	ready     bool
}

func newRSI(period int) *rsi {
	return &rsi{period: period}
}

func (r *rsi) update(closePx float64) Value {
	if !r.hasPrev {
		r.prevClose = closePx
		r.hasPrev = true
		return Undefined()
	}
	change := closePx - r.prevClose
	r.prevClose = closePx

	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}

	if !r.ready {
		r.seedGain += gain
		r.seedLoss += loss
		r.seen++
		if r.seen < r.period {
			return Undefined()
		}
		r.avgGain = r.seedGain / float64(r.period)
		r.avgLoss = r.seedLoss / float64(r.period)
		r.ready = true
		return Defined(r.value())
	}

	n := float64(r.period)
	r.avgGain = (r.avgGain*(n-1) + gain) / n
	r.avgLoss = (r.avgLoss*(n-1) + loss) / n
	return Defined(r.value())
}

func (r *rsi) value() float64 {
	if r.avgLoss == 0 {
		if r.avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := r.avgGain / r.avgLoss
	return 100 - 100/(1+rs)
}
