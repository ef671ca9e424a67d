// Package strategy turns indicator snapshots into entry, exit and
// pyramid signals. Evaluators are pure functions of (config, snapshot,
// position state): they hold no mutable state, so many strategies can
// run concurrently over the same candle stream.
package strategy

import (
	"github.com/shopspring/decimal"
)

// Kind labels what a signal asks the ledger to do.
type Kind string

const (
	KindEntry   Kind = "ENTRY"
	KindExit    Kind = "EXIT"
	KindPyramid Kind = "PYRAMID"
)

// Direction of a position or signal.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == Long {
		return Short
	}
	return Long
}

// Signal is one instruction emitted for the current candle. It is
// consumed by the position ledger and not retained afterwards.
type Signal struct {
	Kind      Kind
	Direction Direction
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Timestamp int64
	Reason    string
}

// Reason tags attached to signals, carried through to closed trades.
const (
	ReasonCrossoverEntry  = "crossover_entry"
	ReasonCrossoverExit   = "crossover_exit"
	ReasonOscillatorExit  = "oscillator_exit"
	ReasonTrendFlipEntry  = "trend_flip_entry"
	ReasonTrendFlipExit   = "trend_flip_exit"
	ReasonVolExpandEntry  = "vol_expansion_entry"
	ReasonVolExpandAdd    = "vol_expansion_pyramid"
	ReasonVolContractExit = "vol_contraction_exit"
)

// PositionState is the symbolic view of the ledger an evaluator sees:
// flat, or n lots in one direction, plus the reference values recorded
// at the most recent entry for expansion/contraction conditions.
type PositionState struct {
	Direction      Direction // empty while flat
	LotCount       int
	LastEntryPrice decimal.Decimal
	ATRAtLastEntry float64
}

// Flat reports whether no lots are open.
func (p PositionState) Flat() bool { return p.LotCount == 0 }
