// Package executor models order execution. The backtest engine only
// ever talks to the Executor interface; the simulator here applies
// deterministic slippage and commission, while a live deployment would
// substitute a broker adapter behind the same contract.
package executor

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Side of an order at the execution layer.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Fill is the confirmation for one executed order.
type Fill struct {
	Price      decimal.Decimal
	Commission decimal.Decimal
}

// Executor fills orders. Implementations must be deterministic for
// identical inputs and must never consult future candles.
type Executor interface {
	Fill(side Side, quantity, requestedPrice decimal.Decimal) (Fill, error)
}

// Simulator is the backtest executor: fills at the requested price
// shifted against the taker by a fixed slippage, and charges a
// proportional commission on the filled notional.
type Simulator struct {
	// SlippageBps shifts the fill price in basis points: buys fill
	// higher, sells lower. Zero means fills at the requested price.
	SlippageBps decimal.Decimal
	// CommissionRate is a fraction of filled notional (0.001 = 0.1%).
	CommissionRate decimal.Decimal
}

// NewSimulator builds a frictionless simulator; callers override the
// rates for realistic runs.
func NewSimulator() *Simulator {
	return &Simulator{SlippageBps: decimal.Zero, CommissionRate: decimal.Zero}
}

var tenThousand = decimal.NewFromInt(10_000)

// Fill implements Executor.
func (s *Simulator) Fill(side Side, quantity, requestedPrice decimal.Decimal) (Fill, error) {
	if !quantity.IsPositive() {
		return Fill{}, fmt.Errorf("executor: quantity must be positive, got %s", quantity)
	}
	if !requestedPrice.IsPositive() {
		return Fill{}, fmt.Errorf("executor: price must be positive, got %s", requestedPrice)
	}

	shift := requestedPrice.Mul(s.SlippageBps).Div(tenThousand)
	price := requestedPrice
	switch side {
	case SideBuy:
		price = price.Add(shift)
	case SideSell:
		price = price.Sub(shift)
	default:
		return Fill{}, errors.New("executor: unknown side")
	}

	commission := price.Mul(quantity).Mul(s.CommissionRate)
	return Fill{Price: price, Commission: commission}, nil
}
