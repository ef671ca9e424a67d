package candles

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/shopspring/decimal"
)

// ClickHouseConfig holds connection settings for the candle store.
type ClickHouseConfig struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Table    string `yaml:"table"`
}

// ClickHouseSource fetches candles from a ClickHouse table with columns
// symbol, interval, open_time_ms, open, high, low, close, volume.
type ClickHouseSource struct {
	conn  driver.Conn
	table string
}

// NewClickHouseSource opens a native-protocol connection to ClickHouse.
func NewClickHouseSource(cfg ClickHouseConfig) (*ClickHouseSource, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	table := cfg.Table
	if table == "" {
		table = "data"
	}
	return &ClickHouseSource{conn: conn, table: table}, nil
}

// Fetch implements Source. Prices come back as strings so decimal
// precision survives the round trip.
func (s *ClickHouseSource) Fetch(ctx context.Context, symbol, timeframe string, startMs, endMs int64) ([]Candle, error) {
	q := fmt.Sprintf(`
SELECT open_time_ms, toString(open), toString(high), toString(low), toString(close), toString(volume)
FROM %s
WHERE symbol = ? AND interval = ? AND open_time_ms >= ? AND open_time_ms < ?
ORDER BY open_time_ms`, s.table)

	rows, err := s.conn.Query(ctx, q, symbol, timeframe, startMs, endMs)
	if err != nil {
		return nil, fmt.Errorf("clickhouse query: %w", err)
	}
	defer rows.Close()

	var out []Candle
	for rows.Next() {
		var (
			ts            int64
			o, h, l, c, v string
		)
		if err := rows.Scan(&ts, &o, &h, &l, &c, &v); err != nil {
			return nil, fmt.Errorf("clickhouse scan: %w", err)
		}
		candle, err := parseRow(ts, o, h, l, c, v)
		if err != nil {
			return nil, err
		}
		out = append(out, candle)
	}
	return out, rows.Err()
}

// Close releases the underlying connection pool.
func (s *ClickHouseSource) Close() error { return s.conn.Close() }

func parseRow(ts int64, o, h, l, c, v string) (Candle, error) {
	open, err := decimal.NewFromString(o)
	if err != nil {
		return Candle{}, fmt.Errorf("parse open at %d: %w", ts, err)
	}
	high, err := decimal.NewFromString(h)
	if err != nil {
		return Candle{}, fmt.Errorf("parse high at %d: %w", ts, err)
	}
	low, err := decimal.NewFromString(l)
	if err != nil {
		return Candle{}, fmt.Errorf("parse low at %d: %w", ts, err)
	}
	closePx, err := decimal.NewFromString(c)
	if err != nil {
		return Candle{}, fmt.Errorf("parse close at %d: %w", ts, err)
	}
	volume, err := decimal.NewFromString(v)
	if err != nil {
		volume = decimal.Zero
	}
	return Candle{Timestamp: ts, Open: open, High: high, Low: low, Close: closePx, Volume: volume}, nil
}
