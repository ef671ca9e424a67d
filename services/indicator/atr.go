package indicator

import "math"

// trueRange is max(high-low, |high-prevClose|, |low-prevClose|).
func trueRange(high, low, prevClose float64) float64 {
	tr := high - low
	if d := math.Abs(high - prevClose); d > tr {
		tr = d
	}
	if d := math.Abs(low - prevClose); d > tr {
		tr = d
	}
	return tr
}

// atr is an incremental average true range using Wilder's smoothing:
// seeded with the SMA of the first period true ranges, then
// RMA = (RMA*(period-1) + TR) / period. The first candle has no
// previous close, so ATR defines after period+1 candles.
type atr struct {
	period    int
	prevClose float64
	hasPrev   bool
	seed      []float64
	value     float64
	ready     bool
}

func newATR(period int) *atr {
	return &atr{period: period, seed: make([]float64, 0, period)}
}

func (a *atr) update(high, low, closePx float64) Value {
	if !a.hasPrev {
		a.prevClose = closePx
		a.hasPrev = true
		return Undefined()
	}
	tr := trueRange(high, low, a.prevClose)
	a.prevClose = closePx

	if !a.ready {
		a.seed = append(a.seed, tr)
		if len(a.seed) < a.period {
			return Undefined()
		}
		var sum float64
		for _, v := range a.seed {
			sum += v
		}
		a.value = sum / float64(a.period)
		a.ready = true
		a.seed = nil
		return Defined(a.value)
	}
	a.value = (a.value*float64(a.period-1) + tr) / float64(a.period)
	return Defined(a.value)
}
