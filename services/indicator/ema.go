package indicator

// ema is an incremental exponential moving average. Seeded with the SMA
// of the first period closes, then smoothed with alpha = 2/(period+1),
// matching TradingView's ema().
type ema struct {
	period int
	alpha  float64
	seed   []float64
	value  float64
	ready  bool
}

func newEMA(period int) *ema {
	return &ema{
		period: period,
		alpha:  2.0 / float64(period+1),
		seed:   make([]float64, 0, period),
	}
}

func (e *ema) update(closePx float64) Value {
	if !e.ready {
		e.seed = append(e.seed, closePx)
		if len(e.seed) < e.period {
			return Undefined()
		}
		var sum float64
		for _, v := range e.seed {
			sum += v
		}
		e.value = sum / float64(e.period)
		e.ready = true
		e.seed = nil
		return Defined(e.value)
	}
	e.value = closePx*e.alpha + e.value*(1.0-e.alpha)
	return Defined(e.value)
}
