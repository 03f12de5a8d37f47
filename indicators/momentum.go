package indicators

// ========== 动量指标 ==========

// RSI 相对强弱指数（Wilder 平滑）
type RSI struct {
	period int
}

// NewRSI 创建 RSI 指标
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

// Name 指标名称
func (r *RSI) Name() string {
	return "RSI"
}

// Period 所需周期数
func (r *RSI) Period() int {
	return r.period + 1
}

// Calculate 计算 RSI，第一个值对应K线 period
func (r *RSI) Calculate(candles []Candle) Series {
	return NewSeries(r.period, RSIValues(ClosePrices(candles), r.period))
}

// RSIValues 在价格序列上计算 Wilder RSI，输出长度 = len(values)-period
// 平均跌幅为 0 时 RSI 记为 100
func RSIValues(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period+1 {
		return nil
	}

	// 前 period 个变化的平均涨幅/跌幅
	avgGain, avgLoss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		gain, loss := splitChange(values[i] - values[i-1])
		avgGain += gain
		avgLoss += loss
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	result := make([]float64, len(values)-period)
	result[0] = rsiFromAverages(avgGain, avgLoss)

	for i := period + 1; i < len(values); i++ {
		gain, loss := splitChange(values[i] - values[i-1])
		avgGain = wilderSmooth(avgGain, gain, period)
		avgLoss = wilderSmooth(avgLoss, loss, period)
		result[i-period] = rsiFromAverages(avgGain, avgLoss)
	}

	return result
}

// splitChange 把价格变化拆成非负的涨幅和跌幅
func splitChange(change float64) (gain, loss float64) {
	if change > 0 {
		return change, 0
	}
	return 0, -change
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
