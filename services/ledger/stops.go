package ledger

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"backtester/services/candles"
	"backtester/services/strategy"
)

// Exit reasons for stop-driven closes.
const (
	ReasonFixedStop    = "stop_loss"
	ReasonTrailingStop = "trailing_stop"
	ReasonEndOfData    = "end_of_data"
)

// CheckStops evaluates fixed and trailing stops for every open lot
// against the current candle, before any strategy signals for that
// candle are applied. Each lot's stop is independent: a breach closes
// only that lot, regardless of unwind mode. Stops are tested against
// the stop level derived from previous candles' watermarks, then the
// watermarks advance with this candle.
func (l *Ledger) CheckStops(c candles.Candle) ([]Trade, error) {
	var out []Trade

	for i := 0; i < len(l.lots); {
		lot := l.lots[i]
		stop, reason, armed := l.stopLevel(lot)
		if !armed || !breached(lot.Direction, stop, c) {
			i++
			continue
		}
		price := stopFillPrice(lot.Direction, stop, c)
		t, err := l.closeLotAt(i, price, c.Timestamp, reason)
		if err != nil {
			return out, err
		}
		l.logger.Info("stop hit",
			zap.String("reason", reason),
			zap.String("stop", stop.String()),
			zap.String("fill", t.ExitPrice.String()),
			zap.Int64("ts", c.Timestamp),
		)
		out = append(out, *t)
		// Slice shrank; same index now holds the next lot.
	}

	l.advanceWatermarks(c)
	return out, nil
}

// stopLevel combines the fixed and trailing stops into the binding
// level: the tighter of the two wins (higher for longs, lower for
// shorts).
func (l *Ledger) stopLevel(lot Lot) (stop decimal.Decimal, reason string, armed bool) {
	long := lot.Direction == strategy.Long

	if l.cfg.FixedStopPct > 0 {
		frac := decimal.NewFromFloat(l.cfg.FixedStopPct)
		if long {
			stop = lot.EntryPrice.Mul(decimal.NewFromInt(1).Sub(frac))
		} else {
			stop = lot.EntryPrice.Mul(decimal.NewFromInt(1).Add(frac))
		}
		reason = ReasonFixedStop
		armed = true
	}
	if l.cfg.TrailingStopPct > 0 {
		frac := decimal.NewFromFloat(l.cfg.TrailingStopPct)
		var trail decimal.Decimal
		if long {
			trail = lot.watermark.Mul(decimal.NewFromInt(1).Sub(frac))
		} else {
			trail = lot.watermark.Mul(decimal.NewFromInt(1).Add(frac))
		}
		tighter := !armed ||
			(long && trail.GreaterThan(stop)) ||
			(!long && trail.LessThan(stop))
		if tighter {
			stop = trail
			reason = ReasonTrailingStop
		}
		armed = true
	}
	return stop, reason, armed
}

// breached reports whether the candle touched the stop level.
func breached(d strategy.Direction, stop decimal.Decimal, c candles.Candle) bool {
	if d == strategy.Long {
		return c.Low.LessThanOrEqual(stop)
	}
	return c.High.GreaterThanOrEqual(stop)
}

// stopFillPrice is gap-aware: a candle that opens through the stop
// fills at the open, not at the stop level.
func stopFillPrice(d strategy.Direction, stop decimal.Decimal, c candles.Candle) decimal.Decimal {
	if d == strategy.Long {
		if c.Open.LessThanOrEqual(stop) {
			return c.Open
		}
		return stop
	}
	if c.Open.GreaterThanOrEqual(stop) {
		return c.Open
	}
	return stop
}

func (l *Ledger) advanceWatermarks(c candles.Candle) {
	for i := range l.lots {
		if l.lots[i].Direction == strategy.Long {
			if c.High.GreaterThan(l.lots[i].watermark) {
				l.lots[i].watermark = c.High
			}
		} else {
			if c.Low.LessThan(l.lots[i].watermark) {
				l.lots[i].watermark = c.Low
			}
		}
	}
}
