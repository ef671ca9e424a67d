// Package engine drives the backtest replay loop: for each candle it
// updates indicators, checks stops, evaluates the strategy, applies
// signals through the ledger and executor, and samples equity. The loop
// is strictly sequential; concurrency only exists across independent
// runs (see pool.go).
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"backtester/services/candles"
	"backtester/services/executor"
	"backtester/services/indicator"
	"backtester/services/ledger"
	"backtester/services/metrics"
	"backtester/services/strategy"
)

// ErrInsufficientData aborts a run whose candle stream is shorter than
// the longest indicator warm-up. The result still reports zero trades
// under an explicit status instead of trading on zero-valued
// indicators.
var ErrInsufficientData = errors.New("insufficient data")

// Request configures one backtest run.
type Request struct {
	Symbol         string          `json:"symbol" yaml:"symbol"`
	Timeframe      string          `json:"timeframe" yaml:"timeframe"`
	StartMs        int64           `json:"startMs" yaml:"start_ms"`
	EndMs          int64           `json:"endMs" yaml:"end_ms"`
	InitialBalance decimal.Decimal `json:"initialBalance" yaml:"initial_balance"`
	Params         strategy.Params `json:"params" yaml:"params"`

	// KeepEvents attaches the forensic event log to the result.
	KeepEvents bool `json:"keepEvents" yaml:"keep_events"`
}

func (r Request) validate() error {
	if r.Symbol == "" {
		return fmt.Errorf("%w: symbol required", strategy.ErrInvalidConfig)
	}
	if _, err := candles.TimeframeMs(r.Timeframe); err != nil {
		return fmt.Errorf("%w: %v", strategy.ErrInvalidConfig, err)
	}
	if !r.InitialBalance.IsPositive() {
		return fmt.Errorf("%w: initial balance must be positive", strategy.ErrInvalidConfig)
	}
	return nil
}

// Orchestrator owns the injected collaborators. Each Run builds its own
// indicator engine and ledger, so one orchestrator can serve many
// concurrent runs.
type Orchestrator struct {
	source candles.Source
	exec   executor.Executor
	logger *zap.Logger
}

// New wires an orchestrator. A nil logger disables logging.
func New(source candles.Source, exec executor.Executor, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{source: source, exec: exec, logger: logger}
}

// Run replays the requested window through the configured strategy and
// returns the aggregated result. Config and data-sufficiency problems
// abort the run; per-candle signal rejections are absorbed, logged and
// recorded as events.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	eval, err := strategy.New(req.Params)
	if err != nil {
		return nil, err
	}
	ind, err := indicator.NewEngine(req.Params.Periods())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", strategy.ErrInvalidConfig, err)
	}

	cs, err := o.source.Fetch(ctx, req.Symbol, req.Timeframe, req.StartMs, req.EndMs)
	if err != nil {
		return nil, fmt.Errorf("fetch candles: %w", err)
	}
	cadence, _ := candles.TimeframeMs(req.Timeframe)
	if err := candles.Validate(cs, cadence, o.logger); err != nil {
		return nil, err
	}

	manifest := newManifest(req, req.Params, ind.WarmupBars())
	if len(cs) <= ind.WarmupBars() {
		res := &Result{
			Status:         StatusInsufficientData,
			Manifest:       manifest,
			InitialBalance: req.InitialBalance,
			FinalEquity:    req.InitialBalance,
			Commissions:    decimal.Zero,
			TotalReturn:    decimal.Zero,
			AverageWin:     decimal.Zero,
			AverageLoss:    decimal.Zero,
			Trades:         []ledger.Trade{},
			EquityCurve:    []metrics.EquityPoint{},
		}
		return res, fmt.Errorf("%w: %d candles, need more than %d warm-up bars",
			ErrInsufficientData, len(cs), ind.WarmupBars())
	}

	led := ledger.New(ledger.Config{
		Unwind:          req.Params.Unwind,
		MaxLots:         req.Params.MaxLots,
		FixedStopPct:    req.Params.FixedStopPct,
		TrailingStopPct: req.Params.TrailingStopPct,
	}, o.exec, o.logger)

	evLog := &EventLog{}
	curve := make([]metrics.EquityPoint, 0, len(cs))
	var atrAtLastEntry float64

	for _, c := range cs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		snap, err := ind.Update(c)
		if err != nil {
			return nil, fmt.Errorf("candle %d: %w", c.Timestamp, err)
		}

		// Stops run before strategy signals and take precedence for
		// the lots they hit.
		stopTrades, err := led.CheckStops(c)
		if err != nil {
			return nil, fmt.Errorf("candle %d: stop check: %w", c.Timestamp, err)
		}
		for _, t := range stopTrades {
			evLog.Append(Event{Timestamp: c.Timestamp, Type: EventStopHit, Details: map[string]string{
				"reason": t.ExitReason,
				"pnl":    t.PnL.String(),
			}})
		}

		o.applySignals(eval, led, snap, evLog, &atrAtLastEntry, req.Params.MaxLots)

		equity := req.InitialBalance.
			Add(led.RealizedPnL()).
			Sub(led.Commissions()).
			Add(led.UnrealizedPnL(c.Close))
		curve = append(curve, metrics.EquityPoint{Timestamp: c.Timestamp, Equity: equity})
	}

	// Flatten what is still open at the last close so the final equity
	// and the trade ledger describe the same account.
	if led.LotCount() > 0 {
		last := cs[len(cs)-1]
		flattened, err := led.FlattenAll(last.Close, last.Timestamp, ledger.ReasonEndOfData)
		if err != nil {
			return nil, fmt.Errorf("end of data flatten: %w", err)
		}
		for _, t := range flattened {
			evLog.Append(Event{Timestamp: last.Timestamp, Type: EventEndOfData, Details: map[string]string{
				"pnl": t.PnL.String(),
			}})
		}
		curve[len(curve)-1].Equity = req.InitialBalance.
			Add(led.RealizedPnL()).
			Sub(led.Commissions())
	}

	summary, err := metrics.Calculate(led.Trades(), curve, req.InitialBalance, req.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	res := &Result{
		Status:         StatusCompleted,
		Manifest:       manifest,
		InitialBalance: req.InitialBalance,
		FinalEquity:    curve[len(curve)-1].Equity,
		Commissions:    led.Commissions(),
		Trades:         led.Trades(),
		EquityCurve:    curve,
	}
	res.applySummary(summary)
	if req.KeepEvents {
		res.Events = evLog.Events
	}

	o.logger.Info("backtest completed",
		zap.String("job_id", manifest.JobID),
		zap.String("symbol", req.Symbol),
		zap.String("strategy", eval.Name()),
		zap.Int("candles", len(cs)),
		zap.Int("trades", res.TotalTrades),
		zap.String("total_return", res.TotalReturn.String()),
	)
	return res, nil
}

// applySignals re-invokes the evaluator until it goes quiet or stops
// making progress. Exit signals close one lot per call, so a full
// flatten (and a flip into the opposite direction) takes several
// iterations over the same snapshot.
func (o *Orchestrator) applySignals(
	eval strategy.Evaluator,
	led *ledger.Ledger,
	snap *indicator.Snapshot,
	evLog *EventLog,
	atrAtLastEntry *float64,
	maxLots int,
) {
	for iter := 0; iter < maxLots+2; iter++ {
		pos := led.PositionState()
		pos.ATRAtLastEntry = *atrAtLastEntry
		sigs := eval.Evaluate(snap, pos)
		if len(sigs) == 0 {
			return
		}

		progressed := false
		for _, sig := range sigs {
			trade, err := led.Apply(sig)
			switch {
			case errors.Is(err, ledger.ErrCapacityExceeded),
				errors.Is(err, ledger.ErrDirectionConflict),
				errors.Is(err, ledger.ErrNoOpenLots):
				// Absorbed: one bad signal must not corrupt the run.
				o.logger.Warn("signal rejected",
					zap.String("kind", string(sig.Kind)),
					zap.String("direction", string(sig.Direction)),
					zap.Int64("ts", sig.Timestamp),
					zap.Error(err),
				)
				evLog.Append(Event{Timestamp: sig.Timestamp, Type: EventSignalRejected, Details: map[string]string{
					"kind":   string(sig.Kind),
					"reason": err.Error(),
				}})
			case err != nil:
				o.logger.Error("signal application failed",
					zap.Int64("ts", sig.Timestamp), zap.Error(err))
				return
			default:
				progressed = true
				switch sig.Kind {
				case strategy.KindEntry, strategy.KindPyramid:
					if v, ok := snap.ATR.Float(); ok {
						*atrAtLastEntry = v
					} else {
						*atrAtLastEntry = 0
					}
					evType := EventEntryFill
					if sig.Kind == strategy.KindPyramid {
						evType = EventPyramidFill
					}
					evLog.Append(Event{Timestamp: sig.Timestamp, Type: evType, Details: map[string]string{
						"direction": string(sig.Direction),
						"reason":    sig.Reason,
					}})
				case strategy.KindExit:
					evLog.Append(Event{Timestamp: sig.Timestamp, Type: EventExitFill, Details: map[string]string{
						"reason": sig.Reason,
						"pnl":    trade.PnL.String(),
					}})
				}
			}
		}
		if !progressed {
			return
		}
	}
}
