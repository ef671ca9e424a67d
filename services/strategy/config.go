package strategy

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"backtester/services/indicator"
)

// ErrInvalidConfig marks malformed or contradictory strategy
// configuration. It always aborts a run before any candle is processed.
var ErrInvalidConfig = errors.New("invalid strategy config")

// UnwindMode picks which open lot an EXIT closes first.
type UnwindMode string

const (
	UnwindFIFO UnwindMode = "FIFO"
	UnwindLIFO UnwindMode = "LIFO"
)

// Params is the flat configuration supplied by callers for any strategy
// variant. Each variant constructor validates the subset it uses;
// unknown-variant field sniffing never drives selection — the registry
// key does.
//
// Percentage thresholds are fractions: 0.08 means 8%.
type Params struct {
	Strategy string `json:"strategy" yaml:"strategy"`

	FastPeriod           int     `json:"fast_period" yaml:"fast_period"`
	SlowPeriod           int     `json:"slow_period" yaml:"slow_period"`
	RSIPeriod            int     `json:"rsi_period" yaml:"rsi_period"`
	RSIOversold          float64 `json:"rsi_oversold" yaml:"rsi_oversold"`
	RSIOverbought        float64 `json:"rsi_overbought" yaml:"rsi_overbought"`
	ATRPeriod            int     `json:"atr_period" yaml:"atr_period"`
	SupertrendMultiplier float64 `json:"supertrend_multiplier" yaml:"supertrend_multiplier"`

	// Volatility expansion/contraction thresholds relative to the ATR
	// recorded at the last entry.
	VolExpansion   float64 `json:"vol_expansion" yaml:"vol_expansion"`
	VolContraction float64 `json:"vol_contraction" yaml:"vol_contraction"`

	Pyramiding bool       `json:"pyramiding" yaml:"pyramiding"`
	MaxLots    int        `json:"max_lots" yaml:"max_lots"`
	Unwind     UnwindMode `json:"unwind" yaml:"unwind"`
	AllowShort bool       `json:"allow_short" yaml:"allow_short"`

	BaseQuantity decimal.Decimal `json:"base_quantity" yaml:"base_quantity"`

	// Stops as fractions of the reference price; zero disables.
	FixedStopPct    float64 `json:"fixed_stop_pct" yaml:"fixed_stop_pct"`
	TrailingStopPct float64 `json:"trailing_stop_pct" yaml:"trailing_stop_pct"`
}

// DefaultParams mirrors the platform's stock EMA/RSI setup.
func DefaultParams() Params {
	return Params{
		Strategy:             "ema_crossover",
		FastPeriod:           9,
		SlowPeriod:           21,
		RSIPeriod:            14,
		RSIOversold:          30,
		RSIOverbought:        70,
		ATRPeriod:            14,
		SupertrendMultiplier: 3,
		VolExpansion:         0.08,
		VolContraction:       0.08,
		Pyramiding:           false,
		MaxLots:              1,
		Unwind:               UnwindFIFO,
		AllowShort:           true,
		BaseQuantity:         decimal.NewFromInt(1),
	}
}

// Periods maps the params onto the indicator set the engine computes.
func (p Params) Periods() indicator.Periods {
	return indicator.Periods{
		FastEMA:              p.FastPeriod,
		SlowEMA:              p.SlowPeriod,
		ATR:                  p.ATRPeriod,
		RSI:                  p.RSIPeriod,
		SupertrendMultiplier: p.SupertrendMultiplier,
	}
}

// validateCommon checks fields every variant depends on.
func (p Params) validateCommon() error {
	if err := p.Periods().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if p.MaxLots < 1 {
		return fmt.Errorf("%w: max_lots must be at least 1, got %d", ErrInvalidConfig, p.MaxLots)
	}
	if p.Unwind != UnwindFIFO && p.Unwind != UnwindLIFO {
		return fmt.Errorf("%w: unwind mode must be FIFO or LIFO, got %q", ErrInvalidConfig, p.Unwind)
	}
	if !p.BaseQuantity.IsPositive() {
		return fmt.Errorf("%w: base_quantity must be positive", ErrInvalidConfig)
	}
	if p.FixedStopPct < 0 || p.FixedStopPct >= 1 {
		return fmt.Errorf("%w: fixed_stop_pct must be in [0,1)", ErrInvalidConfig)
	}
	if p.TrailingStopPct < 0 || p.TrailingStopPct >= 1 {
		return fmt.Errorf("%w: trailing_stop_pct must be in [0,1)", ErrInvalidConfig)
	}
	if p.Pyramiding && p.MaxLots < 2 {
		return fmt.Errorf("%w: pyramiding enabled but max_lots is %d", ErrInvalidConfig, p.MaxLots)
	}
	return nil
}

func (p Params) validateOscillator() error {
	if p.RSIOversold <= 0 || p.RSIOverbought >= 100 || p.RSIOversold >= p.RSIOverbought {
		return fmt.Errorf("%w: rsi thresholds must satisfy 0 < oversold < overbought < 100", ErrInvalidConfig)
	}
	return nil
}

func (p Params) validateVolatility() error {
	if p.VolExpansion <= 0 || p.VolExpansion >= 1 {
		return fmt.Errorf("%w: vol_expansion must be in (0,1)", ErrInvalidConfig)
	}
	if p.VolContraction <= 0 || p.VolContraction >= 1 {
		return fmt.Errorf("%w: vol_contraction must be in (0,1)", ErrInvalidConfig)
	}
	return nil
}
