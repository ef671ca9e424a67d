package strategy

import (
	"backtester/services/indicator"
)

func init() {
	Register("ema_crossover", func(p Params) (Evaluator, error) { return NewCrossover(p) })
}

// Crossover enters when the fast EMA crosses the slow EMA and the RSI
// directional filter passes, exits on the opposite crossover or on the
// RSI reaching its exit threshold, and optionally pyramids on ATR
// expansion.
type Crossover struct {
	p Params
}

// NewCrossover validates the crossover subset of params.
func NewCrossover(p Params) (*Crossover, error) {
	if err := p.validateCommon(); err != nil {
		return nil, err
	}
	if err := p.validateOscillator(); err != nil {
		return nil, err
	}
	if p.Pyramiding {
		if err := p.validateVolatility(); err != nil {
			return nil, err
		}
	}
	return &Crossover{p: p}, nil
}

func (c *Crossover) Name() string { return "ema_crossover" }

// Evaluate implements Evaluator. Exit conditions are checked before
// pyramid conditions: when both hold on one candle only the exit fires.
func (c *Crossover) Evaluate(snap *indicator.Snapshot, pos PositionState) []Signal {
	rsi, ok := snap.RSI.Float()
	if !ok || !snap.FastEMA.IsDefined() || !snap.SlowEMA.IsDefined() {
		return nil
	}

	if !pos.Flat() {
		if sig, exited := c.exitSignal(snap, pos, rsi); exited {
			return []Signal{sig}
		}
		if sig, add := pyramidSignal(c.p, snap, pos, ReasonVolExpandAdd); add {
			return []Signal{sig}
		}
		return nil
	}

	if snap.FastCrossedAbove() && c.rsiFilterPasses(rsi) {
		return []Signal{{
			Kind:      KindEntry,
			Direction: Long,
			Price:     snap.Candle.Close,
			Quantity:  c.p.BaseQuantity,
			Timestamp: snap.Candle.Timestamp,
			Reason:    ReasonCrossoverEntry,
		}}
	}
	if c.p.AllowShort && snap.FastCrossedBelow() && c.rsiFilterPasses(rsi) {
		return []Signal{{
			Kind:      KindEntry,
			Direction: Short,
			Price:     snap.Candle.Close,
			Quantity:  c.p.BaseQuantity,
			Timestamp: snap.Candle.Timestamp,
			Reason:    ReasonCrossoverEntry,
		}}
	}
	return nil
}

// rsiFilterPasses requires the oscillator strictly inside the
// oversold/overbought channel; entries at extremes are skipped.
func (c *Crossover) rsiFilterPasses(rsi float64) bool {
	return rsi > c.p.RSIOversold && rsi < c.p.RSIOverbought
}

func (c *Crossover) exitSignal(snap *indicator.Snapshot, pos PositionState, rsi float64) (Signal, bool) {
	var reason string
	switch pos.Direction {
	case Long:
		if snap.FastCrossedBelow() {
			reason = ReasonCrossoverExit
		} else if rsi > c.p.RSIOverbought {
			reason = ReasonOscillatorExit
		}
	case Short:
		if snap.FastCrossedAbove() {
			reason = ReasonCrossoverExit
		} else if rsi < c.p.RSIOversold {
			reason = ReasonOscillatorExit
		}
	}
	if reason == "" {
		return Signal{}, false
	}
	return Signal{
		Kind:      KindExit,
		Direction: pos.Direction,
		Price:     snap.Candle.Close,
		Quantity:  c.p.BaseQuantity,
		Timestamp: snap.Candle.Timestamp,
		Reason:    reason,
	}, true
}

// pyramidSignal is shared by variants that add lots on volatility
// expansion: the current ATR must exceed the ATR recorded at the last
// entry by more than the configured fraction.
func pyramidSignal(p Params, snap *indicator.Snapshot, pos PositionState, reason string) (Signal, bool) {
	if !p.Pyramiding || pos.LotCount >= p.MaxLots {
		return Signal{}, false
	}
	atrNow, ok := snap.ATR.Float()
	if !ok || pos.ATRAtLastEntry <= 0 {
		return Signal{}, false
	}
	if (atrNow-pos.ATRAtLastEntry)/pos.ATRAtLastEntry <= p.VolExpansion {
		return Signal{}, false
	}
	return Signal{
		Kind:      KindPyramid,
		Direction: pos.Direction,
		Price:     snap.Candle.Close,
		Quantity:  p.BaseQuantity,
		Timestamp: snap.Candle.Timestamp,
		Reason:    reason,
	}, true
}
