package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtester/services/candles"
	"backtester/services/engine"
	"backtester/services/executor"
)

func sawtoothCandles(n int) candles.Slice {
	cs := make(candles.Slice, n)
	price := 100.0
	for i := 0; i < n; i++ {
		step := 0.4
		if i%2 == 0 {
			step = -0.6
		}
		open := price
		price += step
		cs[i] = candles.Candle{
			Timestamp: 1_700_000_000_000 + int64(i)*60_000,
			Open:      decimal.NewFromFloat(open),
			High:      decimal.NewFromFloat(price + 0.5),
			Low:       decimal.NewFromFloat(price - 1.5),
			Close:     decimal.NewFromFloat(price),
			Volume:    decimal.NewFromInt(1),
		}
	}
	return cs
}

func testServer(n int) *Server {
	orch := engine.New(sawtoothCandles(n), executor.NewSimulator(), nil)
	return New(orch, 2, nil)
}

func requestBody(t *testing.T) []byte {
	t.Helper()
	body := map[string]any{
		"symbol":         "BTCUSDT",
		"timeframe":      "1m",
		"startMs":        0,
		"endMs":          0,
		"initialBalance": 10_000,
		"params": map[string]any{
			"strategy":              "ema_crossover",
			"fast_period":           9,
			"slow_period":           21,
			"rsi_period":            14,
			"rsi_oversold":          30,
			"rsi_overbought":        70,
			"atr_period":            14,
			"supertrend_multiplier": 3,
			"max_lots":              1,
			"unwind":                "FIFO",
			"base_quantity":         "1",
		},
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return raw
}

func TestBacktestEndpoint(t *testing.T) {
	router := testServer(100).Router()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/backtest", bytes.NewReader(requestBody(t)))
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res engine.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, engine.StatusCompleted, res.Status)
	assert.Len(t, res.EquityCurve, 100)
	assert.NotEmpty(t, res.Manifest.JobID)
}

func TestBacktestEndpointInsufficientData(t *testing.T) {
	router := testServer(10).Router()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/backtest", bytes.NewReader(requestBody(t)))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestBacktestEndpointBadConfig(t *testing.T) {
	router := testServer(100).Router()

	body := bytes.Replace(requestBody(t), []byte("ema_crossover"), []byte("nope"), 1)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/backtest", bytes.NewReader(body))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBatchEndpoint(t *testing.T) {
	router := testServer(100).Router()

	single := requestBody(t)
	batch := fmt.Sprintf("[%s,%s]", single, single)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/backtest/batch", bytes.NewBufferString(batch))
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Results []struct {
			Result *engine.Result `json:"result"`
			Error  string         `json:"error"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	for _, r := range resp.Results {
		assert.Empty(t, r.Error)
		require.NotNil(t, r.Result)
		assert.Equal(t, engine.StatusCompleted, r.Result.Status)
	}
}

func TestStrategiesEndpoint(t *testing.T) {
	router := testServer(100).Router()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/strategies", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Strategies []string `json:"strategies"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Strategies, "ema_crossover")
}

func TestHealthEndpoint(t *testing.T) {
	router := testServer(100).Router()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
