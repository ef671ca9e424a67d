package candles

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// CSVSource reads candles from a local CSV file with rows of
// timestamp_ms,open,high,low,close,volume. An optional header row and a
// UTF-8 BOM are tolerated. Rows are sorted by timestamp and duplicate
// timestamps keep the last occurrence.
type CSVSource struct {
	Path string
}

// Fetch implements Source. Symbol and timeframe are ignored; the file is
// assumed to contain a single instrument. Candles outside
// [startMs, endMs) are dropped unless the range is zero.
func (s *CSVSource) Fetch(_ context.Context, _, _ string, startMs, endMs int64) ([]Candle, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	out, err := ParseCSV(f)
	if err != nil {
		return nil, err
	}
	if startMs == 0 && endMs == 0 {
		return out, nil
	}
	filtered := out[:0]
	for _, c := range out {
		if c.Timestamp >= startMs && c.Timestamp < endMs {
			filtered = append(filtered, c)
		}
	}
	return filtered, nil
}

// ParseCSV parses candle rows from r. Malformed rows are skipped rather
// than failing the whole load, matching how exchange CSV dumps are
// handled elsewhere in the pipeline.
func ParseCSV(r io.Reader) ([]Candle, error) {
	reader := csv.NewReader(bufio.NewReader(r))
	reader.ReuseRecord = false
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	out := make([]Candle, 0, 1_000)
	line := 0
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			line++
			continue
		}
		if len(rec) < 6 {
			line++
			continue
		}
		if line == 0 && (strings.EqualFold(rec[0], "timestamp") || strings.EqualFold(rec[0], "timestamp_ms")) {
			line++
			continue
		}

		tsStr := strings.TrimPrefix(strings.TrimSpace(rec[0]), "\uFEFF")
		ts, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			line++
			continue
		}
		open, err := decimal.NewFromString(strings.TrimSpace(rec[1]))
		if err != nil {
			line++
			continue
		}
		high, err := decimal.NewFromString(strings.TrimSpace(rec[2]))
		if err != nil {
			line++
			continue
		}
		low, err := decimal.NewFromString(strings.TrimSpace(rec[3]))
		if err != nil {
			line++
			continue
		}
		closePx, err := decimal.NewFromString(strings.TrimSpace(rec[4]))
		if err != nil {
			line++
			continue
		}
		volume, err := decimal.NewFromString(strings.TrimSpace(rec[5]))
		if err != nil {
			volume = decimal.Zero
		}

		out = append(out, Candle{
			Timestamp: ts,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePx,
			Volume:    volume,
		})
		line++
	}

	if len(out) > 1 {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
		uniq := out[:0]
		var lastTs int64 = -1
		for _, c := range out {
			if c.Timestamp == lastTs {
				uniq[len(uniq)-1] = c
				continue
			}
			uniq = append(uniq, c)
			lastTs = c.Timestamp
		}
		out = uniq
	}
	return out, nil
}
