package backtest

import (
	"math"
)

// Metrics 扩展回测指标
type Metrics struct {
	// 风险指标
	MaxDrawdown         float64 `json:"max_drawdown"`          // 最大回撤 (%)
	MaxDrawdownDuration int     `json:"max_drawdown_duration"` // 最大回撤持续K线数
	Volatility          float64 `json:"volatility"`            // 每根K线收益率的标准差 (%)

	// 风险调整收益
	SharpeRatio float64 `json:"sharpe_ratio"` // 未年化，无风险利率取 0

	// 交易指标（只统计卖出）
	ProfitFactor float64 `json:"profit_factor"` // 利润因子
	AvgWin       float64 `json:"avg_win"`       // 平均盈利
	AvgLoss      float64 `json:"avg_loss"`      // 平均亏损
	LargestWin   float64 `json:"largest_win"`   // 最大单笔盈利
	LargestLoss  float64 `json:"largest_loss"`  // 最大单笔亏损

	// 连续性指标
	MaxConsecutiveWins   int `json:"max_consecutive_wins"`
	MaxConsecutiveLosses int `json:"max_consecutive_losses"`

	TailRisk TailRisk `json:"tail_risk"`
}

// CalculateMetrics 计算所有扩展指标
func CalculateMetrics(equity []EquityPoint, trades []Trade) Metrics {
	returns := calculateReturns(equity)
	profits := sellProfits(trades)

	metrics := Metrics{
		MaxDrawdown:         calculateMaxDrawdown(equity),
		MaxDrawdownDuration: calculateMaxDrawdownDuration(equity),
		Volatility:          stdDev(returns) * 100,
		SharpeRatio:         calculateSharpeRatio(returns),
		TailRisk:            calculateTailRisk(returns),
	}

	totalProfit, totalLoss := 0.0, 0.0
	wins, losses := 0, 0
	currentWins, currentLosses := 0, 0

	for _, p := range profits {
		switch {
		case p > 0:
			totalProfit += p
			wins++
			currentWins++
			currentLosses = 0
			metrics.LargestWin = math.Max(metrics.LargestWin, p)
		case p < 0:
			totalLoss += -p
			losses++
			currentLosses++
			currentWins = 0
			metrics.LargestLoss = math.Max(metrics.LargestLoss, -p)
		default:
			currentWins, currentLosses = 0, 0
		}
		if currentWins > metrics.MaxConsecutiveWins {
			metrics.MaxConsecutiveWins = currentWins
		}
		if currentLosses > metrics.MaxConsecutiveLosses {
			metrics.MaxConsecutiveLosses = currentLosses
		}
	}

	if wins > 0 {
		metrics.AvgWin = totalProfit / float64(wins)
	}
	if losses > 0 {
		metrics.AvgLoss = totalLoss / float64(losses)
	}
	if totalLoss > 0 {
		metrics.ProfitFactor = totalProfit / totalLoss
	}

	return metrics
}

// sellProfits 按顺序提取卖出盈亏
func sellProfits(trades []Trade) []float64 {
	profits := make([]float64, 0, len(trades)/2)
	for _, trade := range trades {
		if trade.Type == TradeSell && trade.Profit != nil {
			profits = append(profits, *trade.Profit)
		}
	}
	return profits
}

// calculateReturns 计算收益率序列
func calculateReturns(equity []EquityPoint) []float64 {
	if len(equity) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1].Value > 0 {
			returns[i-1] = (equity[i].Value - equity[i-1].Value) / equity[i-1].Value
		}
	}

	return returns
}

// calculateMaxDrawdown 计算最大回撤
func calculateMaxDrawdown(equity []EquityPoint) float64 {
	if len(equity) == 0 {
		return 0
	}

	maxDrawdown := 0.0
	peak := equity[0].Value

	for _, point := range equity {
		if point.Value > peak {
			peak = point.Value
		}

		if peak > 0 {
			drawdown := (peak - point.Value) / peak * 100
			if drawdown > maxDrawdown {
				maxDrawdown = drawdown
			}
		}
	}

	return maxDrawdown
}

// calculateMaxDrawdownDuration 计算最长回撤持续的K线数
func calculateMaxDrawdownDuration(equity []EquityPoint) int {
	if len(equity) == 0 {
		return 0
	}

	maxDuration := 0
	currentDuration := 0
	peak := equity[0].Value

	for _, point := range equity {
		if point.Value >= peak {
			peak = point.Value
			currentDuration = 0
			continue
		}
		currentDuration++
		if currentDuration > maxDuration {
			maxDuration = currentDuration
		}
	}

	return maxDuration
}

// calculateSharpeRatio 计算夏普比率
func calculateSharpeRatio(returns []float64) float64 {
	sd := stdDev(returns)
	if sd == 0 {
		return 0
	}
	return mean(returns) / sd
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	variance := 0.0
	for _, v := range values {
		diff := v - m
		variance += diff * diff
	}
	return math.Sqrt(variance / float64(len(values)))
}
