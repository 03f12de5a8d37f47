package indicators

// ========== 波动率指标 ==========

// ATR 平均真实波幅（Wilder 平滑）
type ATR struct {
	period int
}

// NewATR 创建 ATR 指标
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

// Name 指标名称
func (a *ATR) Name() string {
	return "ATR"
}

// Period 所需周期数
func (a *ATR) Period() int {
	return a.period + 1
}

// Calculate 计算 ATR，第一个值对应K线 period
func (a *ATR) Calculate(candles []Candle) Series {
	return NewSeries(a.period, ATRValues(candles, a.period))
}

// ATRValues 计算 ATR 序列，输出长度 = len(candles)-period
// 第一个值为前 period 个真实波幅的简单平均，之后使用 Wilder 平滑
func ATRValues(candles []Candle, period int) []float64 {
	tr := TrueRangeSeries(candles)
	if period <= 0 || len(tr) < period {
		return nil
	}

	result := make([]float64, len(tr)-period+1)
	result[0] = Mean(tr[:period])
	for i := period; i < len(tr); i++ {
		result[i-period+1] = wilderSmooth(result[i-period], tr[i], period)
	}

	return result
}

// BollingerBands 布林带
type BollingerBands struct {
	period     int
	multiplier float64
}

// NewBollingerBands 创建布林带指标
func NewBollingerBands(period int, multiplier float64) *BollingerBands {
	return &BollingerBands{
		period:     period,
		multiplier: multiplier,
	}
}

// Name 指标名称
func (bb *BollingerBands) Name() string {
	return "BollingerBands"
}

// Period 所需周期数
func (bb *BollingerBands) Period() int {
	return bb.period
}

// Calculate 计算中轨
func (bb *BollingerBands) Calculate(candles []Candle) Series {
	return bb.CalculateMulti(candles)["middle"]
}

// CalculateMulti 计算上轨、中轨、下轨和带宽，第一个值对应K线 period-1
func (bb *BollingerBands) CalculateMulti(candles []Candle) map[string]Series {
	upper, middle, lower := BollingerValues(ClosePrices(candles), bb.period, bb.multiplier)

	width := make([]float64, len(middle))
	for i := range middle {
		width[i] = upper[i] - lower[i]
	}

	offset := bb.period - 1
	return map[string]Series{
		"upper":  NewSeries(offset, upper),
		"middle": NewSeries(offset, middle),
		"lower":  NewSeries(offset, lower),
		"width":  NewSeries(offset, width),
	}
}

// BollingerValues 计算布林带三条线（总体标准差）
func BollingerValues(values []float64, period int, multiplier float64) (upper, middle, lower []float64) {
	middle = SMA(values, period)
	stdDev := StdDev(values, period)
	if middle == nil || stdDev == nil {
		return nil, nil, nil
	}

	upper = make([]float64, len(middle))
	lower = make([]float64, len(middle))
	for i := range middle {
		band := multiplier * stdDev[i]
		upper[i] = middle[i] + band
		lower[i] = middle[i] - band
	}

	return upper, middle, lower
}
