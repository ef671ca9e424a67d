package indicator

import (
	"errors"
	"fmt"

	"backtester/services/candles"
)

// ErrOutOfOrder is returned when Update is called with a candle whose
// timestamp is not strictly after the previous one.
var ErrOutOfOrder = errors.New("candle out of order")

// Periods configures the indicator set computed per candle.
type Periods struct {
	FastEMA              int     `json:"fast_ema" yaml:"fast_ema"`
	SlowEMA              int     `json:"slow_ema" yaml:"slow_ema"`
	ATR                  int     `json:"atr" yaml:"atr"`
	RSI                  int     `json:"rsi" yaml:"rsi"`
	SupertrendMultiplier float64 `json:"supertrend_multiplier" yaml:"supertrend_multiplier"`
}

// Validate checks period sanity. The fast EMA must be strictly shorter
// than the slow EMA.
func (p Periods) Validate() error {
	if p.FastEMA <= 0 || p.SlowEMA <= 0 || p.ATR <= 0 || p.RSI <= 0 {
		return errors.New("indicator periods must be positive")
	}
	if p.FastEMA >= p.SlowEMA {
		return fmt.Errorf("fast EMA period %d must be less than slow EMA period %d", p.FastEMA, p.SlowEMA)
	}
	if p.SupertrendMultiplier <= 0 {
		return errors.New("supertrend multiplier must be positive")
	}
	return nil
}

// WarmupBars is the number of candles needed before every indicator in
// the set is defined. ATR and RSI consume one candle before their first
// delta, hence the +1.
func (p Periods) WarmupBars() int {
	warmup := p.SlowEMA
	if n := p.ATR + 1; n > warmup {
		warmup = n
	}
	if n := p.RSI + 1; n > warmup {
		warmup = n
	}
	return warmup
}

// Snapshot is the indicator state after one candle. Prev points at the
// immediately preceding snapshot so crossovers are detected by a single
// one-step comparison, never by scanning history.
type Snapshot struct {
	Candle  candles.Candle
	FastEMA Value
	SlowEMA Value
	ATR     Value
	RSI     Value

	// TrendBand is the active Supertrend band; TrendBullish and
	// TrendChanged are meaningful only while TrendBand is defined.
	TrendBand    Value
	TrendBullish bool
	TrendChanged bool

	Prev *Snapshot
}

// FastCrossedAbove reports a fast/slow bullish crossover completed on
// this candle: fast at or below slow previously, strictly above now.
func (s *Snapshot) FastCrossedAbove() bool {
	if s.Prev == nil {
		return false
	}
	if !s.FastEMA.GreaterThan(s.SlowEMA) {
		return false
	}
	return !s.Prev.FastEMA.GreaterThan(s.Prev.SlowEMA) &&
		s.Prev.FastEMA.IsDefined() && s.Prev.SlowEMA.IsDefined()
}

// FastCrossedBelow reports a fast/slow bearish crossover completed on
// this candle.
func (s *Snapshot) FastCrossedBelow() bool {
	if s.Prev == nil {
		return false
	}
	if !s.FastEMA.LessThan(s.SlowEMA) {
		return false
	}
	return !s.Prev.FastEMA.LessThan(s.Prev.SlowEMA) &&
		s.Prev.FastEMA.IsDefined() && s.Prev.SlowEMA.IsDefined()
}

// Engine computes the configured indicator set incrementally. Update
// must be called exactly once per candle in strictly increasing
// timestamp order; internal rolling state advances monotonically and
// cannot be rewound.
type Engine struct {
	periods Periods

	fast  *ema
	slow  *ema
	atr   *atr
	rsi   *rsi
	trend *supertrend

	lastTs int64
	seen   int
	prev   *Snapshot
}

// NewEngine constructs an engine for one backtest run. Engines are
// owned per run and never shared.
func NewEngine(p Periods) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		periods: p,
		fast:    newEMA(p.FastEMA),
		slow:    newEMA(p.SlowEMA),
		atr:     newATR(p.ATR),
		rsi:     newRSI(p.RSI),
		trend:   newSupertrend(p.SupertrendMultiplier),
		lastTs:  -1,
	}, nil
}

// WarmupBars returns the engine's longest warm-up requirement.
func (e *Engine) WarmupBars() int { return e.periods.WarmupBars() }

// Update advances every indicator with the next candle and returns the
// resulting snapshot.
func (e *Engine) Update(c candles.Candle) (*Snapshot, error) {
	if c.Timestamp <= e.lastTs {
		return nil, fmt.Errorf("%w: got %d after %d", ErrOutOfOrder, c.Timestamp, e.lastTs)
	}
	e.lastTs = c.Timestamp

	closePx := c.Close.InexactFloat64()
	high := c.High.InexactFloat64()
	low := c.Low.InexactFloat64()

	snap := &Snapshot{Candle: c, Prev: e.prev}
	snap.FastEMA = e.fast.update(closePx)
	snap.SlowEMA = e.slow.update(closePx)
	snap.ATR = e.atr.update(high, low, closePx)
	snap.RSI = e.rsi.update(closePx)
	snap.TrendBand, snap.TrendBullish, snap.TrendChanged = e.trend.update(high, low, closePx, snap.ATR)

	// The whole snapshot stays undefined until the longest warm-up in
	// the set is satisfied. A partially warm set must not leak defined
	// fast values next to undefined slow ones.
	e.seen++
	if e.seen < e.periods.WarmupBars() {
		snap.FastEMA = Undefined()
		snap.SlowEMA = Undefined()
		snap.ATR = Undefined()
		snap.RSI = Undefined()
		snap.TrendBand = Undefined()
		snap.TrendBullish = false
		snap.TrendChanged = false
	}

	// Keep the chain two deep: older snapshots are unreachable and can
	// be collected.
	if e.prev != nil {
		e.prev.Prev = nil
	}
	e.prev = snap
	return snap, nil
}
