package indicators

import "fmt"

// ========== 趋势指标 ==========

// MovingAverage 移动平均线（SMA / EMA）
type MovingAverage struct {
	period      int
	exponential bool
}

// NewSMA 创建简单移动平均
func NewSMA(period int) *MovingAverage {
	return &MovingAverage{period: period}
}

// NewEMA 创建指数移动平均
func NewEMA(period int) *MovingAverage {
	return &MovingAverage{period: period, exponential: true}
}

// Name 指标名称
func (m *MovingAverage) Name() string {
	if m.exponential {
		return fmt.Sprintf("EMA%d", m.period)
	}
	return fmt.Sprintf("SMA%d", m.period)
}

// Period 所需周期数
func (m *MovingAverage) Period() int {
	return m.period
}

// Calculate 计算均线，第一个值对应K线 period-1
func (m *MovingAverage) Calculate(candles []Candle) Series {
	closes := ClosePrices(candles)
	var values []float64
	if m.exponential {
		values = EMA(closes, m.period)
	} else {
		values = SMA(closes, m.period)
	}
	return NewSeries(m.period-1, values)
}

// MACD 指数平滑异同移动平均线
type MACD struct {
	FastPeriod   int
	SlowPeriod   int
	SignalPeriod int
}

// NewMACD 创建 MACD 指标
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{
		FastPeriod:   fast,
		SlowPeriod:   slow,
		SignalPeriod: signal,
	}
}

// Name 指标名称
func (m *MACD) Name() string {
	return "MACD"
}

// Period 信号线产生第一个值所需的K线数
func (m *MACD) Period() int {
	return maxInt(m.FastPeriod, m.SlowPeriod) + m.SignalPeriod - 1
}

// Calculate 计算 MACD 线
func (m *MACD) Calculate(candles []Candle) Series {
	return m.CalculateMulti(candles)["macd"]
}

// CalculateMulti 计算 MACD 线、信号线、柱状图
// macd 从较长周期 EMA 的第一个值开始；signal 与 histogram 再晚 SignalPeriod-1 根
func (m *MACD) CalculateMulti(candles []Candle) map[string]Series {
	macdLine, signalLine, histogram := MACDValues(ClosePrices(candles), m.FastPeriod, m.SlowPeriod, m.SignalPeriod)

	macdOffset := maxInt(m.FastPeriod, m.SlowPeriod) - 1
	signalOffset := macdOffset + m.SignalPeriod - 1

	return map[string]Series{
		"macd":      NewSeries(macdOffset, macdLine),
		"signal":    NewSeries(signalOffset, signalLine),
		"histogram": NewSeries(signalOffset, histogram),
	}
}

// MACDValues 在收盘价序列上计算 MACD
// 两条 EMA 按末端对齐后相减（较短周期的 EMA 序列更长，截掉前面多出的部分）
func MACDValues(values []float64, fast, slow, signal int) (macdLine, signalLine, histogram []float64) {
	fastEMA := EMA(values, fast)
	slowEMA := EMA(values, slow)
	if fastEMA == nil || slowEMA == nil {
		return nil, nil, nil
	}

	n := minInt(len(fastEMA), len(slowEMA))
	fastOffset := len(fastEMA) - n
	slowOffset := len(slowEMA) - n

	macdLine = make([]float64, n)
	for i := range macdLine {
		macdLine[i] = fastEMA[i+fastOffset] - slowEMA[i+slowOffset]
	}

	signalLine = EMA(macdLine, signal)
	if signalLine == nil {
		return macdLine, nil, nil
	}

	offset := len(macdLine) - len(signalLine)
	histogram = make([]float64, len(signalLine))
	for i := range histogram {
		histogram[i] = macdLine[i+offset] - signalLine[i]
	}

	return macdLine, signalLine, histogram
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
