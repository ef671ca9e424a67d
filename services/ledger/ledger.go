// Package ledger owns the authoritative list of open lots for one
// backtest run and turns signals into closed trades. A ledger is
// constructed once per run and touched only by the run's replay
// goroutine; it needs no locking.
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"backtester/services/executor"
	"backtester/services/strategy"
)

var (
	// ErrCapacityExceeded rejects a PYRAMID once max lots are open.
	// Non-fatal: the replay continues.
	ErrCapacityExceeded = errors.New("capacity exceeded")
	// ErrDirectionConflict rejects an ENTRY while an opposite-direction
	// lot is open. Flipping requires flattening first.
	ErrDirectionConflict = errors.New("direction conflict")
	// ErrNoOpenLots rejects an EXIT or PYRAMID with nothing open.
	ErrNoOpenLots = errors.New("no open lots")
)

// Lot is one unit of an open position. Lots are kept in entry order so
// FIFO closes the head and LIFO the tail in O(1).
type Lot struct {
	Direction      strategy.Direction
	EntryPrice     decimal.Decimal
	EntryTimestamp int64
	Quantity       decimal.Decimal
	Reason         string

	// watermark is the trailing-stop reference: highest high since
	// entry for longs, lowest low for shorts. Seeded with the entry
	// price and advanced once per candle after stop checks.
	watermark decimal.Decimal

	// entryCommission is the opening leg's fee, carried until close so
	// the trade reports both legs.
	entryCommission decimal.Decimal
}

// Trade is a closed round trip. Immutable once created. PnL is the
// gross price difference times quantity; Commission carries the
// executor fees for both legs.
type Trade struct {
	Direction      strategy.Direction `json:"direction"`
	EntryPrice     decimal.Decimal    `json:"entryPrice"`
	EntryTimestamp int64              `json:"entryTimestamp"`
	ExitPrice      decimal.Decimal    `json:"exitPrice"`
	ExitTimestamp  int64              `json:"exitTimestamp"`
	Quantity       decimal.Decimal    `json:"quantity"`
	PnL            decimal.Decimal    `json:"pnl"`
	PnLPercentage  decimal.Decimal    `json:"pnlPercentage"`
	Commission     decimal.Decimal    `json:"commission"`
	EntryReason    string             `json:"entryReason"`
	ExitReason     string             `json:"exitReason"`
}

// Config fixes the ledger's unwind discipline and stop parameters for
// the whole run.
type Config struct {
	Unwind  strategy.UnwindMode
	MaxLots int

	// Stop fractions; zero disables the respective stop.
	FixedStopPct    float64
	TrailingStopPct float64
}

// Ledger applies signals and produces trades.
type Ledger struct {
	cfg    Config
	exec   executor.Executor
	logger *zap.Logger

	lots        []Lot
	trades      []Trade
	commissions decimal.Decimal
}

// New constructs a ledger for one run.
func New(cfg Config, exec executor.Executor, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{cfg: cfg, exec: exec, logger: logger, commissions: decimal.Zero}
}

// Apply routes one signal through the executor and mutates the lot
// sequence. EXIT returns the resulting trade; ENTRY and PYRAMID return
// nil. Rejections come back as ErrCapacityExceeded,
// ErrDirectionConflict or ErrNoOpenLots and leave the ledger untouched.
func (l *Ledger) Apply(sig strategy.Signal) (*Trade, error) {
	switch sig.Kind {
	case strategy.KindEntry:
		return nil, l.open(sig)
	case strategy.KindPyramid:
		if len(l.lots) == 0 {
			return nil, fmt.Errorf("%w: pyramid with no position at %d", ErrNoOpenLots, sig.Timestamp)
		}
		if l.lots[0].Direction != sig.Direction {
			return nil, fmt.Errorf("%w: pyramid %s against open %s at %d",
				ErrDirectionConflict, sig.Direction, l.lots[0].Direction, sig.Timestamp)
		}
		return nil, l.open(sig)
	case strategy.KindExit:
		return l.exit(sig)
	default:
		return nil, fmt.Errorf("ledger: unknown signal kind %q", sig.Kind)
	}
}

func (l *Ledger) open(sig strategy.Signal) error {
	if len(l.lots) > 0 && l.lots[0].Direction != sig.Direction {
		return fmt.Errorf("%w: %s entry while %s lots open at %d",
			ErrDirectionConflict, sig.Direction, l.lots[0].Direction, sig.Timestamp)
	}
	if len(l.lots) >= l.cfg.MaxLots {
		return fmt.Errorf("%w: %d lots open, max %d at %d",
			ErrCapacityExceeded, len(l.lots), l.cfg.MaxLots, sig.Timestamp)
	}

	fill, err := l.exec.Fill(entrySide(sig.Direction), sig.Quantity, sig.Price)
	if err != nil {
		return fmt.Errorf("entry fill: %w", err)
	}
	l.commissions = l.commissions.Add(fill.Commission)
	l.lots = append(l.lots, Lot{
		Direction:       sig.Direction,
		EntryPrice:      fill.Price,
		EntryTimestamp:  sig.Timestamp,
		Quantity:        sig.Quantity,
		Reason:          sig.Reason,
		watermark:       fill.Price,
		entryCommission: fill.Commission,
	})
	l.logger.Debug("lot opened",
		zap.String("direction", string(sig.Direction)),
		zap.String("price", fill.Price.String()),
		zap.Int64("ts", sig.Timestamp),
		zap.Int("lots", len(l.lots)),
	)
	return nil
}

// exit closes exactly one lot under the configured unwind order.
// Callers wanting a full flatten re-invoke until ErrNoOpenLots.
func (l *Ledger) exit(sig strategy.Signal) (*Trade, error) {
	if len(l.lots) == 0 {
		return nil, fmt.Errorf("%w: exit at %d", ErrNoOpenLots, sig.Timestamp)
	}
	idx := 0
	if l.cfg.Unwind == strategy.UnwindLIFO {
		idx = len(l.lots) - 1
	}
	return l.closeLotAt(idx, sig.Price, sig.Timestamp, sig.Reason)
}

// closeLotAt fills the closing leg and converts the lot at idx into a
// trade. Used by exit (head/tail) and by stop breaches (specific lot).
func (l *Ledger) closeLotAt(idx int, price decimal.Decimal, ts int64, reason string) (*Trade, error) {
	lot := l.lots[idx]

	fill, err := l.exec.Fill(exitSide(lot.Direction), lot.Quantity, price)
	if err != nil {
		return nil, fmt.Errorf("exit fill: %w", err)
	}
	l.commissions = l.commissions.Add(fill.Commission)

	pnl := fill.Price.Sub(lot.EntryPrice).Mul(lot.Quantity)
	if lot.Direction == strategy.Short {
		pnl = pnl.Neg()
	}
	notional := lot.EntryPrice.Mul(lot.Quantity)
	pnlPct := decimal.Zero
	if !notional.IsZero() {
		pnlPct = pnl.Div(notional)
	}

	trade := Trade{
		Direction:      lot.Direction,
		EntryPrice:     lot.EntryPrice,
		EntryTimestamp: lot.EntryTimestamp,
		ExitPrice:      fill.Price,
		ExitTimestamp:  ts,
		Quantity:       lot.Quantity,
		PnL:            pnl,
		PnLPercentage:  pnlPct,
		Commission:     lot.entryCommission.Add(fill.Commission),
		EntryReason:    lot.Reason,
		ExitReason:     reason,
	}
	l.lots = append(l.lots[:idx], l.lots[idx+1:]...)
	l.trades = append(l.trades, trade)

	l.logger.Debug("lot closed",
		zap.String("direction", string(trade.Direction)),
		zap.String("pnl", trade.PnL.String()),
		zap.String("reason", reason),
		zap.Int64("ts", ts),
		zap.Int("lots", len(l.lots)),
	)
	return &l.trades[len(l.trades)-1], nil
}

// FlattenAll closes every open lot at the given price under the
// configured unwind order, in repeated single-lot exits.
func (l *Ledger) FlattenAll(price decimal.Decimal, ts int64, reason string) ([]Trade, error) {
	var out []Trade
	for len(l.lots) > 0 {
		t, err := l.exit(strategy.Signal{
			Kind:      strategy.KindExit,
			Direction: l.lots[0].Direction,
			Price:     price,
			Timestamp: ts,
			Reason:    reason,
		})
		if err != nil {
			return out, err
		}
		out = append(out, *t)
	}
	return out, nil
}

// Direction of the open position; empty while flat.
func (l *Ledger) Direction() strategy.Direction {
	if len(l.lots) == 0 {
		return ""
	}
	return l.lots[0].Direction
}

// LotCount returns how many lots are open.
func (l *Ledger) LotCount() int { return len(l.lots) }

// OpenLots returns a copy of the open lot sequence in entry order.
func (l *Ledger) OpenLots() []Lot {
	out := make([]Lot, len(l.lots))
	copy(out, l.lots)
	return out
}

// Trades returns the closed-trade ledger in insertion order.
func (l *Ledger) Trades() []Trade { return l.trades }

// Commissions returns the cumulative executor fees for both legs of all
// lots opened so far.
func (l *Ledger) Commissions() decimal.Decimal { return l.commissions }

// RealizedPnL sums gross PnL over closed trades.
func (l *Ledger) RealizedPnL() decimal.Decimal {
	sum := decimal.Zero
	for _, t := range l.trades {
		sum = sum.Add(t.PnL)
	}
	return sum
}

// UnrealizedPnL marks open lots to the given price.
func (l *Ledger) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, lot := range l.lots {
		diff := price.Sub(lot.EntryPrice).Mul(lot.Quantity)
		if lot.Direction == strategy.Short {
			diff = diff.Neg()
		}
		sum = sum.Add(diff)
	}
	return sum
}

// PositionState projects the ledger into the symbolic view evaluators
// consume. The ATR reference is owned by the orchestrator and filled in
// there.
func (l *Ledger) PositionState() strategy.PositionState {
	if len(l.lots) == 0 {
		return strategy.PositionState{}
	}
	last := l.lots[len(l.lots)-1]
	return strategy.PositionState{
		Direction:      last.Direction,
		LotCount:       len(l.lots),
		LastEntryPrice: last.EntryPrice,
	}
}

func entrySide(d strategy.Direction) executor.Side {
	if d == strategy.Long {
		return executor.SideBuy
	}
	return executor.SideSell
}

func exitSide(d strategy.Direction) executor.Side {
	if d == strategy.Long {
		return executor.SideSell
	}
	return executor.SideBuy
}
