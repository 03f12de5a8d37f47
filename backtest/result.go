package backtest

import (
	"time"

	"quantlab/strategy"
)

// BacktestResult 回测结果
type BacktestResult struct {
	// 基本信息
	ID        string        `json:"id,omitempty"`
	Symbol    string        `json:"symbol,omitempty"`
	Strategy  string        `json:"strategy"`
	Spec      strategy.Spec `json:"strategy_config"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`

	Summary

	// 交易记录与权益曲线
	Trades        []Trade       `json:"trades"`
	EquityHistory []EquityPoint `json:"equity_history"`

	// 扩展指标（由 metrics.go 计算，不影响 Summary）
	Metrics Metrics `json:"metrics"`
}

// Summary 回测汇总
type Summary struct {
	InitialCapital float64 `json:"initial_capital"`
	FinalCapital   float64 `json:"final_capital"`
	TotalReturnPct float64 `json:"total_return_pct"`
	TradeCount     int     `json:"trade_count"`
	WinRatePct     float64 `json:"win_rate_pct"`
}

// Aggregate 根据账本最终状态汇总结果
// 最终资金 = 现金 + 持仓 * 最后一根收盘价；买入和卖出都计入交易次数
func Aggregate(initialCapital float64, ledger *Ledger, lastClose float64) Summary {
	finalValue := ledger.Value(lastClose)

	totalReturn := 0.0
	if initialCapital != 0 {
		totalReturn = (finalValue - initialCapital) / initialCapital * 100
	}

	return Summary{
		InitialCapital: initialCapital,
		FinalCapital:   finalValue,
		TotalReturnPct: totalReturn,
		TradeCount:     len(ledger.Trades()),
		WinRatePct:     WinRate(ledger.Trades()),
	}
}

// WinRate 卖出交易中盈利（profit > 0）的百分比，没有卖出时为 0
func WinRate(trades []Trade) float64 {
	sells, wins := 0, 0
	for _, trade := range trades {
		if trade.Type != TradeSell {
			continue
		}
		sells++
		if trade.Profit != nil && *trade.Profit > 0 {
			wins++
		}
	}

	if sells == 0 {
		return 0
	}
	return float64(wins) / float64(sells) * 100
}
