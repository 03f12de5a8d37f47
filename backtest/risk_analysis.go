package backtest

import (
	"math"
	"sort"
)

// TailRisk 尾部风险指标，基于每根K线的权益收益率（历史模拟法）
type TailRisk struct {
	VaR95  float64 `json:"var_95"`  // 95% 置信度的风险价值 (%)
	VaR99  float64 `json:"var_99"`  // 99% 置信度的风险价值 (%)
	CVaR95 float64 `json:"cvar_95"` // 95% 置信度的条件风险价值 (%)
	CVaR99 float64 `json:"cvar_99"` // 99% 置信度的条件风险价值 (%)
}

// calculateTailRisk 计算尾部风险，收益率少于 2 个时全部为 0
func calculateTailRisk(returns []float64) TailRisk {
	if len(returns) < 2 {
		return TailRisk{}
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	return TailRisk{
		VaR95:  historicalVaR(sorted, 0.95) * 100,
		VaR99:  historicalVaR(sorted, 0.99) * 100,
		CVaR95: expectedShortfall(sorted, 0.95) * 100,
		CVaR99: expectedShortfall(sorted, 0.99) * 100,
	}
}

// tailIndex 返回升序收益率中置信度对应的分位下标
func tailIndex(n int, confidence float64) int {
	index := int(float64(n) * (1 - confidence))
	if index >= n {
		index = n - 1
	}
	if index < 0 {
		index = 0
	}
	return index
}

// historicalVaR 损失为正数，收益为正时记 0
func historicalVaR(sorted []float64, confidence float64) float64 {
	v := sorted[tailIndex(len(sorted), confidence)]
	if v >= 0 {
		return 0
	}
	return -v
}

// expectedShortfall 分位点及以下收益率的平均损失
func expectedShortfall(sorted []float64, confidence float64) float64 {
	index := tailIndex(len(sorted), confidence)
	sum := 0.0
	for i := 0; i <= index; i++ {
		sum += sorted[i]
	}
	avg := sum / float64(index+1)
	if avg >= 0 {
		return 0
	}
	return math.Abs(avg)
}
