// Package export serializes run artifacts for downstream analysis:
// trade ledgers as CSV and candle/equity series as Arrow IPC.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"time"

	"backtester/services/ledger"
)

const timeLayout = "2006-01-02 15:04:05"

func formatMs(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(timeLayout)
}

// TradesCSV writes the closed-trade ledger as CSV, one row per trade in
// close order.
func TradesCSV(w io.Writer, trades []ledger.Trade) error {
	cw := csv.NewWriter(w)

	header := []string{
		"direction", "entry_price", "entry_time_utc", "exit_price", "exit_time_utc",
		"quantity", "pnl", "pnl_pct", "commission", "entry_reason", "exit_reason",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, t := range trades {
		record := []string{
			string(t.Direction),
			t.EntryPrice.String(),
			formatMs(t.EntryTimestamp),
			t.ExitPrice.String(),
			formatMs(t.ExitTimestamp),
			t.Quantity.String(),
			t.PnL.String(),
			t.PnLPercentage.String(),
			t.Commission.String(),
			t.EntryReason,
			t.ExitReason,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// TradesCSVFile writes the trade ledger to the given path.
func TradesCSVFile(filename string, trades []ledger.Trade) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()
	return TradesCSV(file, trades)
}
