package strategy

import (
	"backtester/services/indicator"
)

func init() {
	Register("trend_follow", func(p Params) (Evaluator, error) { return NewTrend(p) })
}

// Trend is a price-action follower on the Supertrend band: long while
// the band is bullish, short while bearish, always flat in between. A
// direction flip first unwinds the open position one lot per call; once
// flat, the same snapshot yields the opposite entry.
type Trend struct {
	p Params
}

// NewTrend validates the trend-following subset of params.
func NewTrend(p Params) (*Trend, error) {
	if err := p.validateCommon(); err != nil {
		return nil, err
	}
	if p.Pyramiding {
		if err := p.validateVolatility(); err != nil {
			return nil, err
		}
	}
	return &Trend{p: p}, nil
}

func (t *Trend) Name() string { return "trend_follow" }

// Evaluate implements Evaluator.
func (t *Trend) Evaluate(snap *indicator.Snapshot, pos PositionState) []Signal {
	if !snap.TrendBand.IsDefined() {
		return nil
	}

	if !pos.Flat() {
		against := (pos.Direction == Long && !snap.TrendBullish) ||
			(pos.Direction == Short && snap.TrendBullish)
		if !against {
			if sig, add := pyramidSignal(t.p, snap, pos, ReasonVolExpandAdd); add {
				return []Signal{sig}
			}
			return nil
		}
		return []Signal{{
			Kind:      KindExit,
			Direction: pos.Direction,
			Price:     snap.Candle.Close,
			Quantity:  t.p.BaseQuantity,
			Timestamp: snap.Candle.Timestamp,
			Reason:    ReasonTrendFlipExit,
		}}
	}

	if !snap.TrendChanged {
		return nil
	}
	dir := Short
	if snap.TrendBullish {
		dir = Long
	}
	if dir == Short && !t.p.AllowShort {
		return nil
	}
	return []Signal{{
		Kind:      KindEntry,
		Direction: dir,
		Price:     snap.Candle.Close,
		Quantity:  t.p.BaseQuantity,
		Timestamp: snap.Candle.Timestamp,
		Reason:    ReasonTrendFlipEntry,
	}}
}
