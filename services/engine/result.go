package engine

import (
	"github.com/shopspring/decimal"

	"backtester/services/ledger"
	"backtester/services/metrics"
)

// Run status values surfaced to callers.
const (
	StatusCompleted        = "completed"
	StatusInsufficientData = "insufficient_data"
)

// Result is the aggregate a completed backtest exposes. Field names and
// units are part of the contract: ratio fields are fractions, money
// fields serialize as decimal strings, and downstream consumers compute
// secondary ratios directly from them.
type Result struct {
	Status   string   `json:"status"`
	Manifest Manifest `json:"manifest"`

	InitialBalance decimal.Decimal `json:"initialBalance"`
	FinalEquity    decimal.Decimal `json:"finalEquity"`
	Commissions    decimal.Decimal `json:"commissions"`

	TotalTrades           int             `json:"totalTrades"`
	TotalReturn           decimal.Decimal `json:"totalReturn"`
	TotalReturnPercentage float64         `json:"totalReturnPercentage"`
	WinRate               float64         `json:"winRate"`
	AverageWin            decimal.Decimal `json:"averageWin"`
	AverageLoss           decimal.Decimal `json:"averageLoss"`
	ProfitFactor          float64         `json:"profitFactor"`
	MaxDrawdown           float64         `json:"maxDrawdown"`
	SharpeRatio           float64         `json:"sharpeRatio"`

	Trades      []ledger.Trade        `json:"trades"`
	EquityCurve []metrics.EquityPoint `json:"equityCurve"`

	Events []Event `json:"events,omitempty"`
}

func (r *Result) applySummary(s metrics.Summary) {
	r.TotalTrades = s.TotalTrades
	r.TotalReturn = s.TotalReturn
	r.TotalReturnPercentage = s.TotalReturnPercentage
	r.WinRate = s.WinRate
	r.AverageWin = s.AverageWin
	r.AverageLoss = s.AverageLoss
	r.ProfitFactor = s.ProfitFactor
	r.MaxDrawdown = s.MaxDrawdown
	r.SharpeRatio = s.SharpeRatio
}
