package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"backtester/services/candles"
	"backtester/services/engine"
	"backtester/services/executor"
	"backtester/services/export"
	"backtester/services/strategy"
)

const timeLayout = "2006-01-02 15:04:05"

func main() {
	// Data source
	csvPath := flag.String("csv", "", "Path to local CSV; if set, skip ClickHouse")
	chAddr := flag.String("ch-addr", "localhost:9000", "ClickHouse native address")
	chDB := flag.String("ch-db", "backtest", "ClickHouse database")
	chTable := flag.String("ch-table", "data", "ClickHouse table")
	chUser := flag.String("ch-user", "backtest", "ClickHouse user")
	chPass := flag.String("ch-pass", "", "ClickHouse password")

	symbol := flag.String("symbol", "BTCUSDT", "Trading symbol")
	timeframe := flag.String("timeframe", "5m", "Candle timeframe (1m 5m 15m 30m 1h 4h 1d)")
	from := flag.String("from", "2020-09-01 00:00:00", "Start UTC (YYYY-MM-DD HH:MM:SS)")
	to := flag.String("to", "2024-10-01 00:00:00", "End UTC (YYYY-MM-DD HH:MM:SS)")

	// Strategy
	strategyName := flag.String("strategy", "ema_crossover", "Strategy name")
	fast := flag.Int("fast", 9, "Fast EMA period")
	slow := flag.Int("slow", 21, "Slow EMA period")
	rsiPeriod := flag.Int("rsi-period", 14, "RSI period")
	rsiOversold := flag.Float64("rsi-oversold", 30, "RSI oversold threshold")
	rsiOverbought := flag.Float64("rsi-overbought", 70, "RSI overbought threshold")
	atrPeriod := flag.Int("atr-period", 14, "ATR period")
	stMult := flag.Float64("st-mult", 3, "Supertrend ATR multiplier")
	volExpansion := flag.Float64("vol-expansion", 0.08, "ATR expansion fraction for pyramiding")
	volContraction := flag.Float64("vol-contraction", 0.08, "ATR contraction fraction for volatility exits")
	pyramiding := flag.Bool("pyramiding", false, "Allow adding lots on volatility expansion")
	maxLots := flag.Int("max-lots", 1, "Maximum simultaneous lots")
	unwind := flag.String("unwind", "FIFO", "Exit unwind order (FIFO or LIFO)")
	allowShort := flag.Bool("allow-short", true, "Allow short entries")
	qty := flag.Float64("qty", 1, "Base quantity per lot")
	fixedStop := flag.Float64("fixed-stop", 0, "Fixed stop fraction of entry price (0 disables)")
	trailingStop := flag.Float64("trailing-stop", 0, "Trailing stop fraction of watermark (0 disables)")

	// Account and execution
	balance := flag.Float64("balance", 10_000, "Initial balance")
	slippageBps := flag.Float64("slippage-bps", 0, "Slippage in basis points")
	commission := flag.Float64("commission", 0, "Commission rate (0.001 = 0.1%)")

	// Outputs
	tradesOut := flag.String("trades-out", "./trades.csv", "Trades CSV output path (empty disables)")
	equityOut := flag.String("equity-out", "", "Equity curve Arrow IPC output path")
	candlesOut := flag.String("candles-out", "", "Candle series Arrow IPC output path")
	keepEvents := flag.Bool("events", false, "Print the replay event log")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	logger := newLogger(*verbose)
	defer logger.Sync()

	startMs, err := parseUTC(*from)
	if err != nil {
		logger.Fatal("bad -from", zap.Error(err))
	}
	endMs, err := parseUTC(*to)
	if err != nil {
		logger.Fatal("bad -to", zap.Error(err))
	}

	ctx := context.Background()
	cs, err := loadCandles(ctx, candleFlags{
		csvPath: *csvPath,
		chCfg: candles.ClickHouseConfig{
			Addr:     *chAddr,
			Database: *chDB,
			Username: *chUser,
			Password: *chPass,
			Table:    *chTable,
		},
		symbol:    *symbol,
		timeframe: *timeframe,
		startMs:   startMs,
		endMs:     endMs,
	})
	if err != nil {
		logger.Fatal("load candles", zap.Error(err))
	}
	fmt.Printf("Loaded candles: %d\n", len(cs))

	params := strategy.Params{
		Strategy:             *strategyName,
		FastPeriod:           *fast,
		SlowPeriod:           *slow,
		RSIPeriod:            *rsiPeriod,
		RSIOversold:          *rsiOversold,
		RSIOverbought:        *rsiOverbought,
		ATRPeriod:            *atrPeriod,
		SupertrendMultiplier: *stMult,
		VolExpansion:         *volExpansion,
		VolContraction:       *volContraction,
		Pyramiding:           *pyramiding,
		MaxLots:              *maxLots,
		Unwind:               strategy.UnwindMode(*unwind),
		AllowShort:           *allowShort,
		BaseQuantity:         decimal.NewFromFloat(*qty),
		FixedStopPct:         *fixedStop,
		TrailingStopPct:      *trailingStop,
	}

	sim := &executor.Simulator{
		SlippageBps:    decimal.NewFromFloat(*slippageBps),
		CommissionRate: decimal.NewFromFloat(*commission),
	}
	orch := engine.New(candles.Slice(cs), sim, logger)

	res, err := orch.Run(ctx, engine.Request{
		Symbol:         *symbol,
		Timeframe:      *timeframe,
		StartMs:        startMs,
		EndMs:          endMs,
		InitialBalance: decimal.NewFromFloat(*balance),
		Params:         params,
		KeepEvents:     *keepEvents,
	})
	if err != nil {
		logger.Fatal("backtest failed", zap.Error(err))
	}

	printSummary(res, *from, *to)

	if *keepEvents {
		for _, ev := range res.Events {
			fmt.Printf("%s  %-20s %v\n",
				time.UnixMilli(ev.Timestamp).UTC().Format(timeLayout), ev.Type, ev.Details)
		}
	}

	if *tradesOut != "" {
		if err := export.TradesCSVFile(*tradesOut, res.Trades); err != nil {
			logger.Error("export trades", zap.Error(err))
		}
	}
	if *equityOut != "" {
		if err := writeArrow(*equityOut, func(w io.Writer) error {
			return export.EquityArrow(w, res.EquityCurve)
		}); err != nil {
			logger.Error("export equity", zap.Error(err))
		}
	}
	if *candlesOut != "" {
		if err := writeArrow(*candlesOut, func(w io.Writer) error {
			return export.CandlesArrow(w, *symbol, cs)
		}); err != nil {
			logger.Error("export candles", zap.Error(err))
		}
	}
}

type candleFlags struct {
	csvPath   string
	chCfg     candles.ClickHouseConfig
	symbol    string
	timeframe string
	startMs   int64
	endMs     int64
}

func loadCandles(ctx context.Context, f candleFlags) ([]candles.Candle, error) {
	if f.csvPath != "" {
		path, err := preprocessCSV(f.csvPath)
		if err != nil {
			return nil, err
		}
		src := &candles.CSVSource{Path: path}
		return src.Fetch(ctx, f.symbol, f.timeframe, f.startMs, f.endMs)
	}
	src, err := candles.NewClickHouseSource(f.chCfg)
	if err != nil {
		return nil, err
	}
	return src.Fetch(ctx, f.symbol, f.timeframe, f.startMs, f.endMs)
}

// preprocessCSV rewrites UTF-16 exchange dumps as clean UTF-8 so the
// candle loader only ever sees plain CSV. UTF-8 files pass through
// untouched.
func preprocessCSV(path string) (string, error) {
	inF, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer inF.Close()

	head := make([]byte, 2)
	n, _ := io.ReadFull(inF, head)
	utf16BOM := n >= 2 && ((head[0] == 0xFF && head[1] == 0xFE) || (head[0] == 0xFE && head[1] == 0xFF))
	if !utf16BOM {
		return path, nil
	}
	if _, err := inF.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	cleanPath := path + ".clean.csv"
	outF, err := os.Create(cleanPath)
	if err != nil {
		return "", err
	}
	defer outF.Close()

	endian := unicode.LittleEndian
	if head[0] == 0xFE {
		endian = unicode.BigEndian
	}
	decoded := transform.NewReader(inF, unicode.UTF16(endian, unicode.ExpectBOM).NewDecoder())

	w := bufio.NewWriter(outF)
	scanner := bufio.NewScanner(decoded)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		w.WriteString(line)
		w.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	if err := w.Flush(); err != nil {
		return "", err
	}
	return cleanPath, nil
}

func printSummary(res *engine.Result, from, to string) {
	fmt.Println("=== Backtest Summary ===")
	fmt.Printf("Period: %s to %s UTC\n", from, to)
	fmt.Printf("Status: %s (job %s)\n", res.Status, res.Manifest.JobID)
	fmt.Printf("Trades: %d, WinRate: %.2f%%, ProfitFactor: %.2f\n",
		res.TotalTrades, res.WinRate*100, res.ProfitFactor)
	fmt.Printf("Return: $%s (%.2f%%), MaxDD: %.2f%%, Sharpe: %.2f\n",
		res.TotalReturn.StringFixed(2), res.TotalReturnPercentage*100,
		res.MaxDrawdown*100, res.SharpeRatio)
	fmt.Printf("Final equity: $%s, Commissions: $%s\n",
		res.FinalEquity.StringFixed(2), res.Commissions.StringFixed(2))
}

func writeArrow(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return fn(f)
}

func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}

func parseUTC(s string) (int64, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}
