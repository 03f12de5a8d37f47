package indicators

import (
	"math"
)

// ========== 基础计算工具 ==========

// SMA 简单移动平均
// 输出长度 = len(values)-period+1，数据不足时返回 nil
func SMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}

	result := make([]float64, len(values)-period+1)
	sum := 0.0

	// 计算第一个 SMA
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	result[0] = sum / float64(period)

	// 滑动计算后续 SMA
	for i := period; i < len(values); i++ {
		sum = sum - values[i-period] + values[i]
		result[i-period+1] = sum / float64(period)
	}

	return result
}

// EMA 指数移动平均
// 第一个值为前 period 个数的 SMA，输出长度 = len(values)-period+1
func EMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}

	result := make([]float64, len(values)-period+1)
	multiplier := 2.0 / (float64(period) + 1.0)

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	result[0] = sum / float64(period)

	for i := period; i < len(values); i++ {
		prev := result[i-period]
		result[i-period+1] = (values[i]-prev)*multiplier + prev
	}

	return result
}

// StdDev 总体标准差（除以 period，而不是 period-1）
func StdDev(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}

	result := make([]float64, len(values)-period+1)

	for i := period - 1; i < len(values); i++ {
		window := values[i-period+1 : i+1]
		mean := Mean(window)
		variance := 0.0
		for _, v := range window {
			diff := v - mean
			variance += diff * diff
		}
		result[i-period+1] = math.Sqrt(variance / float64(period))
	}

	return result
}

// Mean 平均值
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return Sum(values) / float64(len(values))
}

// Sum 求和
func Sum(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum
}

// wilderSmooth Wilder 平滑：prev*(period-1)/period + current/period
func wilderSmooth(prev, current float64, period int) float64 {
	return (prev*float64(period-1) + current) / float64(period)
}

// TrueRange 真实波幅
func TrueRange(high, low, prevClose float64) float64 {
	tr1 := high - low
	tr2 := math.Abs(high - prevClose)
	tr3 := math.Abs(low - prevClose)
	return math.Max(tr1, math.Max(tr2, tr3))
}

// TrueRangeSeries 真实波幅序列，从第 2 根K线开始（result[j] 对应K线 j+1）
func TrueRangeSeries(candles []Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}

	result := make([]float64, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		result[i-1] = TrueRange(candles[i].High, candles[i].Low, candles[i-1].Close)
	}

	return result
}

// ClosePrices 提取收盘价
func ClosePrices(candles []Candle) []float64 {
	result := make([]float64, len(candles))
	for i, c := range candles {
		result[i] = c.Close
	}
	return result
}

// HighPrices 提取最高价
func HighPrices(candles []Candle) []float64 {
	result := make([]float64, len(candles))
	for i, c := range candles {
		result[i] = c.High
	}
	return result
}

// LowPrices 提取最低价
func LowPrices(candles []Candle) []float64 {
	result := make([]float64, len(candles))
	for i, c := range candles {
		result[i] = c.Low
	}
	return result
}

// CrossOver 判断 a 在 index 处上穿 b：当前 a > b，且上一根 a <= b
// 任一值未定义时返回 false
func CrossOver(a, b Series, index int) bool {
	aNow, bNow, aPrev, bPrev, ok := crossValues(a, b, index)
	return ok && aNow > bNow && aPrev <= bPrev
}

// CrossUnder 判断 a 在 index 处下穿 b：当前 a < b，且上一根 a >= b
func CrossUnder(a, b Series, index int) bool {
	aNow, bNow, aPrev, bPrev, ok := crossValues(a, b, index)
	return ok && aNow < bNow && aPrev >= bPrev
}

func crossValues(a, b Series, index int) (aNow, bNow, aPrev, bPrev float64, ok bool) {
	var ok1, ok2, ok3, ok4 bool
	aNow, ok1 = a.At(index)
	bNow, ok2 = b.At(index)
	aPrev, ok3 = a.At(index - 1)
	bPrev, ok4 = b.At(index - 1)
	return aNow, bNow, aPrev, bPrev, ok1 && ok2 && ok3 && ok4
}
