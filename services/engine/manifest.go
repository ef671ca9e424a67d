package engine

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"backtester/services/strategy"
)

// EngineVersion is stamped into every run manifest.
const EngineVersion = "1.0.0"

// Manifest records everything needed to reproduce a run: the exact
// strategy config (hashed), the data window, and the engine version.
type Manifest struct {
	JobID         string `json:"jobId"`
	EngineVersion string `json:"engineVersion"`
	Symbol        string `json:"symbol"`
	Timeframe     string `json:"timeframe"`
	StartMs       int64  `json:"startMs"`
	EndMs         int64  `json:"endMs"`
	ConfigHash    string `json:"configHash"`
	WarmupBars    int    `json:"warmupBars"`
	CreatedAt     int64  `json:"createdAt"`
}

// newManifest hashes the strategy params so two runs can be compared
// for config identity without diffing every field.
func newManifest(req Request, params strategy.Params, warmupBars int) Manifest {
	raw, _ := json.Marshal(params)
	return Manifest{
		JobID:         uuid.New().String(),
		EngineVersion: EngineVersion,
		Symbol:        req.Symbol,
		Timeframe:     req.Timeframe,
		StartMs:       req.StartMs,
		EndMs:         req.EndMs,
		ConfigHash:    fmt.Sprintf("%x", sha256.Sum256(raw)),
		WarmupBars:    warmupBars,
		CreatedAt:     time.Now().UnixMilli(),
	}
}
