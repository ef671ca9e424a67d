package export

import (
	"fmt"
	"io"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"

	"backtester/services/candles"
	"backtester/services/metrics"
)

// CandlesArrow serializes the candle series as one Arrow IPC record
// batch. Prices are downcast to float64; the Arrow output feeds
// columnar tooling, not the replay loop, so decimal exactness is not
// required here.
func CandlesArrow(w io.Writer, symbol string, cs []candles.Candle) error {
	if len(cs) == 0 {
		return fmt.Errorf("no candles to convert")
	}

	schema := arrow.NewSchema([]arrow.Field{
		{Name: "symbol", Type: arrow.BinaryTypes.String},
		{Name: "timestamp", Type: arrow.PrimitiveTypes.Int64},
		{Name: "open", Type: arrow.PrimitiveTypes.Float64},
		{Name: "high", Type: arrow.PrimitiveTypes.Float64},
		{Name: "low", Type: arrow.PrimitiveTypes.Float64},
		{Name: "close", Type: arrow.PrimitiveTypes.Float64},
		{Name: "volume", Type: arrow.PrimitiveTypes.Float64},
	}, nil)

	pool := memory.NewGoAllocator()

	symbols := make([]string, len(cs))
	timestamps := make([]int64, len(cs))
	opens := make([]float64, len(cs))
	highs := make([]float64, len(cs))
	lows := make([]float64, len(cs))
	closes := make([]float64, len(cs))
	volumes := make([]float64, len(cs))
	for i, c := range cs {
		symbols[i] = symbol
		timestamps[i] = c.Timestamp
		opens[i] = c.Open.InexactFloat64()
		highs[i] = c.High.InexactFloat64()
		lows[i] = c.Low.InexactFloat64()
		closes[i] = c.Close.InexactFloat64()
		volumes[i] = c.Volume.InexactFloat64()
	}

	symbolBuilder := array.NewStringBuilder(pool)
	symbolBuilder.AppendValues(symbols, nil)
	symbolArray := symbolBuilder.NewStringArray()

	timestampBuilder := array.NewInt64Builder(pool)
	timestampBuilder.AppendValues(timestamps, nil)
	timestampArray := timestampBuilder.NewInt64Array()

	floatArray := func(vals []float64) arrow.Array {
		b := array.NewFloat64Builder(pool)
		b.AppendValues(vals, nil)
		return b.NewFloat64Array()
	}

	record := array.NewRecord(schema, []arrow.Array{
		symbolArray,
		timestampArray,
		floatArray(opens),
		floatArray(highs),
		floatArray(lows),
		floatArray(closes),
		floatArray(volumes),
	}, int64(len(cs)))
	defer record.Release()

	return writeIPC(w, schema, record)
}

// EquityArrow serializes the per-candle equity curve as one Arrow IPC
// record batch.
func EquityArrow(w io.Writer, curve []metrics.EquityPoint) error {
	if len(curve) == 0 {
		return fmt.Errorf("no equity points to convert")
	}

	schema := arrow.NewSchema([]arrow.Field{
		{Name: "timestamp", Type: arrow.PrimitiveTypes.Int64},
		{Name: "equity", Type: arrow.PrimitiveTypes.Float64},
	}, nil)

	pool := memory.NewGoAllocator()

	timestamps := make([]int64, len(curve))
	equities := make([]float64, len(curve))
	for i, p := range curve {
		timestamps[i] = p.Timestamp
		equities[i] = p.Equity.InexactFloat64()
	}

	timestampBuilder := array.NewInt64Builder(pool)
	timestampBuilder.AppendValues(timestamps, nil)
	equityBuilder := array.NewFloat64Builder(pool)
	equityBuilder.AppendValues(equities, nil)

	record := array.NewRecord(schema, []arrow.Array{
		timestampBuilder.NewInt64Array(),
		equityBuilder.NewFloat64Array(),
	}, int64(len(curve)))
	defer record.Release()

	return writeIPC(w, schema, record)
}

func writeIPC(w io.Writer, schema *arrow.Schema, record arrow.Record) error {
	writer := ipc.NewWriter(w, ipc.WithSchema(schema))
	if err := writer.Write(record); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write Arrow record: %w", err)
	}
	return writer.Close()
}
