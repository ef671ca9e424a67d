package strategy

import (
	"backtester/services/indicator"
)

func init() {
	Register("vol_expansion", func(p Params) (Evaluator, error) { return NewVolatility(p) })
}

// Volatility enters in the direction of the trend band when volatility
// is already expanding, pyramids on further expansion, and unwinds when
// volatility contracts back below the mirror threshold or the trend
// flips against the position.
type Volatility struct {
	p Params
}

// NewVolatility validates the volatility subset of params.
func NewVolatility(p Params) (*Volatility, error) {
	if err := p.validateCommon(); err != nil {
		return nil, err
	}
	if err := p.validateVolatility(); err != nil {
		return nil, err
	}
	return &Volatility{p: p}, nil
}

func (v *Volatility) Name() string { return "vol_expansion" }

// Evaluate implements Evaluator.
func (v *Volatility) Evaluate(snap *indicator.Snapshot, pos PositionState) []Signal {
	atrNow, ok := snap.ATR.Float()
	if !ok || !snap.TrendBand.IsDefined() {
		return nil
	}

	if !pos.Flat() {
		if sig, exited := v.exitSignal(snap, pos, atrNow); exited {
			return []Signal{sig}
		}
		if sig, add := pyramidSignal(v.p, snap, pos, ReasonVolExpandAdd); add {
			return []Signal{sig}
		}
		return nil
	}

	// Entry on a fresh trend flip; the flip candle fixes the ATR
	// reference for later expansion/contraction comparisons.
	if !snap.TrendChanged {
		return nil
	}
	dir := Short
	if snap.TrendBullish {
		dir = Long
	}
	if dir == Short && !v.p.AllowShort {
		return nil
	}
	return []Signal{{
		Kind:      KindEntry,
		Direction: dir,
		Price:     snap.Candle.Close,
		Quantity:  v.p.BaseQuantity,
		Timestamp: snap.Candle.Timestamp,
		Reason:    ReasonVolExpandEntry,
	}}
}

func (v *Volatility) exitSignal(snap *indicator.Snapshot, pos PositionState, atrNow float64) (Signal, bool) {
	var reason string
	trendAgainst := (pos.Direction == Long && !snap.TrendBullish) ||
		(pos.Direction == Short && snap.TrendBullish)
	switch {
	case trendAgainst:
		reason = ReasonTrendFlipExit
	case pos.ATRAtLastEntry > 0 && (pos.ATRAtLastEntry-atrNow)/pos.ATRAtLastEntry > v.p.VolContraction:
		// Volatility collapsed relative to the last entry: the
		// expansion thesis is gone.
		reason = ReasonVolContractExit
	default:
		return Signal{}, false
	}
	return Signal{
		Kind:      KindExit,
		Direction: pos.Direction,
		Price:     snap.Candle.Close,
		Quantity:  v.p.BaseQuantity,
		Timestamp: snap.Candle.Timestamp,
		Reason:    reason,
	}, true
}
