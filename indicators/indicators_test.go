package indicators

import (
	"math"
	"testing"
)

const epsilon = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) <= epsilon
}

func constantCandles(count int, price float64) []Candle {
	candles := make([]Candle, count)
	for i := range candles {
		candles[i] = Candle{
			Time:  int64(i) * 86400000,
			Open:  price,
			High:  price + 1,
			Low:   price - 1,
			Close: price,
		}
	}
	return candles
}

func candlesFromCloses(closes []float64) []Candle {
	candles := make([]Candle, len(closes))
	for i, c := range closes {
		candles[i] = Candle{Time: int64(i) * 60000, Open: c, High: c, Low: c, Close: c}
	}
	return candles
}

func TestSMA(t *testing.T) {
	got := SMA([]float64{1, 2, 3, 4, 5}, 3)
	want := []float64{2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("SMA 长度错误: 期望 %d, 得到 %d", len(want), len(got))
	}
	for i := range want {
		if !almostEqual(got[i], want[i]) {
			t.Errorf("SMA[%d] = %f, 期望 %f", i, got[i], want[i])
		}
	}
}

func TestEMAFirstValueIsSMA(t *testing.T) {
	values := []float64{3, 7, 1, 9, 4, 6, 8, 2}
	ema := EMA(values, 4)
	sma := SMA(values, 4)
	if len(ema) != len(values)-4+1 {
		t.Fatalf("EMA 长度错误: %d", len(ema))
	}
	if !almostEqual(ema[0], sma[0]) {
		t.Errorf("EMA 首值应等于 SMA: %f != %f", ema[0], sma[0])
	}

	// k = 2/(3+1) = 0.5
	got := EMA([]float64{1, 2, 3, 4, 5}, 3)
	want := []float64{2, 3, 4}
	for i := range want {
		if !almostEqual(got[i], want[i]) {
			t.Errorf("EMA[%d] = %f, 期望 %f", i, got[i], want[i])
		}
	}
}

func TestInsufficientData(t *testing.T) {
	short := []float64{1, 2, 3}
	if SMA(short, 5) != nil {
		t.Error("数据不足时 SMA 应返回 nil")
	}
	if EMA(short, 5) != nil {
		t.Error("数据不足时 EMA 应返回 nil")
	}
	if RSIValues(short, 3) != nil {
		t.Error("RSI 需要 period+1 个数据")
	}
	if SMA(short, 0) != nil {
		t.Error("周期为 0 时应返回 nil")
	}
	if ATRValues(candlesFromCloses(short), 3) != nil {
		t.Error("数据不足时 ATR 应返回 nil")
	}
	if s := NewBollingerBands(20, 2).Calculate(candlesFromCloses(short)); !s.Empty() {
		t.Error("数据不足时布林带应为空序列")
	}
	macd, signal, hist := MACDValues(short, 2, 5, 2)
	if macd != nil || signal != nil || hist != nil {
		t.Error("数据不足时 MACD 应为空")
	}
}

func TestConstantPrice(t *testing.T) {
	for _, price := range []float64{100, 42.5} {
		candles := constantCandles(30, price)

		sma := NewSMA(10).Calculate(candles)
		ema := NewEMA(10).Calculate(candles)
		bands := NewBollingerBands(20, 2).CalculateMulti(candles)

		for _, s := range []Series{sma, ema, bands["upper"], bands["middle"], bands["lower"]} {
			if s.Empty() {
				t.Fatal("序列不应为空")
			}
			for i, v := range s.Values {
				if v != price {
					t.Errorf("恒定价格 %.2f 下指标值应相等, [%d]=%f", price, i, v)
				}
			}
		}
		for i, w := range bands["width"].Values {
			if w != 0 {
				t.Errorf("恒定价格下带宽应为 0, [%d]=%f", i, w)
			}
		}
	}
}

func TestRSIMonotonic(t *testing.T) {
	up := make([]float64, 30)
	down := make([]float64, 30)
	for i := range up {
		up[i] = 100 + float64(i)
		down[i] = 100 - float64(i)
	}

	rsiUp := RSIValues(up, 14)
	if len(rsiUp) != len(up)-14 {
		t.Fatalf("RSI 长度错误: 期望 %d, 得到 %d", len(up)-14, len(rsiUp))
	}
	for i, v := range rsiUp {
		if v != 100 {
			t.Errorf("单调上涨 RSI 应为 100, [%d]=%f", i, v)
		}
	}

	for i, v := range RSIValues(down, 14) {
		if v != 0 {
			t.Errorf("单调下跌 RSI 应为 0, [%d]=%f", i, v)
		}
	}
}

func TestRSIWilderSmoothing(t *testing.T) {
	// 变化: +1, -1, +1
	// 首值: avgGain=0.5 avgLoss=0.5 -> 50
	// 次值: avgGain=(0.5+1)/2=0.75 avgLoss=(0.5+0)/2=0.25 -> 75
	series := NewRSI(2).Calculate(candlesFromCloses([]float64{1, 2, 1, 2}))
	if series.Offset != 2 {
		t.Errorf("RSI 偏移应为 2, 得到 %d", series.Offset)
	}
	want := []float64{50, 75}
	if series.Len() != len(want) {
		t.Fatalf("RSI 长度错误: %d", series.Len())
	}
	for i := range want {
		if !almostEqual(series.Values[i], want[i]) {
			t.Errorf("RSI[%d] = %f, 期望 %f", i, series.Values[i], want[i])
		}
	}
}

func TestRSIFlatIs100(t *testing.T) {
	for _, v := range RSIValues([]float64{5, 5, 5, 5, 5}, 3) {
		if v != 100 {
			t.Errorf("无跌幅时 RSI 应为 100, 得到 %f", v)
		}
	}
}

func TestMACDAlignment(t *testing.T) {
	values := make([]float64, 60)
	for i := range values {
		values[i] = 100 + float64(i%7)*1.5 + float64(i)*0.3
	}
	fast, slow, signal := 12, 26, 9

	macd := NewMACD(fast, slow, signal).CalculateMulti(candlesFromCloses(values))
	fastEMA := EMA(values, fast)
	slowEMA := EMA(values, slow)

	line := macd["macd"]
	if line.Offset != slow-1 {
		t.Errorf("MACD 偏移应为 %d, 得到 %d", slow-1, line.Offset)
	}
	if line.Len() != len(values)-slow+1 {
		t.Fatalf("MACD 长度错误: %d", line.Len())
	}
	for i, v := range line.Values {
		want := fastEMA[i+slow-fast] - slowEMA[i]
		if !almostEqual(v, want) {
			t.Errorf("MACD[%d] = %f, 期望 %f", i, v, want)
		}
	}

	sig := macd["signal"]
	hist := macd["histogram"]
	if sig.Offset != slow-1+signal-1 || hist.Offset != sig.Offset {
		t.Errorf("信号线偏移错误: signal=%d histogram=%d", sig.Offset, hist.Offset)
	}
	if sig.Len() != line.Len()-signal+1 || hist.Len() != sig.Len() {
		t.Fatalf("信号线长度错误: signal=%d histogram=%d", sig.Len(), hist.Len())
	}
	for idx := sig.Offset; idx < len(values); idx++ {
		m, _ := line.At(idx)
		s, _ := sig.At(idx)
		h, ok := hist.At(idx)
		if !ok {
			t.Fatalf("柱状图在K线 %d 处应有值", idx)
		}
		if !almostEqual(h, m-s) {
			t.Errorf("柱状图[%d] = %f, 期望 %f", idx, h, m-s)
		}
	}
}

func TestBollingerPopulationStdDev(t *testing.T) {
	upper, middle, lower := BollingerValues([]float64{1, 2, 3, 4}, 4, 2)
	std := math.Sqrt(1.25)
	if !almostEqual(middle[0], 2.5) {
		t.Errorf("中轨应为 2.5, 得到 %f", middle[0])
	}
	if !almostEqual(upper[0], 2.5+2*std) || !almostEqual(lower[0], 2.5-2*std) {
		t.Errorf("上下轨错误: upper=%f lower=%f", upper[0], lower[0])
	}
}

func TestATR(t *testing.T) {
	candles := []Candle{
		{High: 10, Low: 8, Close: 9},
		{High: 11, Low: 9, Close: 10},
		{High: 13, Low: 10, Close: 12},
		{High: 12, Low: 11, Close: 11},
	}
	// TR = [2, 3, 1]; 首值 (2+3)/2 = 2.5; 次值 (2.5*1+1)/2 = 1.75
	series := NewATR(2).Calculate(candles)
	if series.Offset != 2 {
		t.Errorf("ATR 偏移应为 2, 得到 %d", series.Offset)
	}
	want := []float64{2.5, 1.75}
	if series.Len() != len(want) {
		t.Fatalf("ATR 长度错误: %d", series.Len())
	}
	for i := range want {
		if !almostEqual(series.Values[i], want[i]) {
			t.Errorf("ATR[%d] = %f, 期望 %f", i, series.Values[i], want[i])
		}
	}

	flat := NewATR(14).Calculate(constantCandles(30, 100))
	for i, v := range flat.Values {
		if !almostEqual(v, 2) {
			t.Errorf("恒定波幅 ATR 应为 2, [%d]=%f", i, v)
		}
	}
}

func TestSeriesAt(t *testing.T) {
	s := NewSeries(3, []float64{10, 20})
	cases := []struct {
		index int
		want  float64
		ok    bool
	}{
		{2, 0, false},
		{3, 10, true},
		{4, 20, true},
		{5, 0, false},
	}
	for _, tc := range cases {
		v, ok := s.At(tc.index)
		if ok != tc.ok || v != tc.want {
			t.Errorf("At(%d) = (%f, %v), 期望 (%f, %v)", tc.index, v, ok, tc.want, tc.ok)
		}
	}
	if _, ok := (Series{}).Last(); ok {
		t.Error("空序列 Last 应返回 false")
	}
}

func TestRegistryCompute(t *testing.T) {
	candles := constantCandles(60, 100)

	result, err := Compute("MACD", Params{"fast": 5, "slow": 10, "signal": 3}, candles)
	if err != nil {
		t.Fatalf("计算 MACD 失败: %v", err)
	}
	for _, key := range []string{"macd", "signal", "histogram"} {
		if result[key].Empty() {
			t.Errorf("MACD 缺少分量 %s", key)
		}
	}

	result, err = Compute("rsi", Params{"period": 7.0}, candles)
	if err != nil {
		t.Fatalf("计算 RSI 失败: %v", err)
	}
	if result["value"].Offset != 7 {
		t.Errorf("RSI 偏移应为 7, 得到 %d", result["value"].Offset)
	}

	if _, err := Compute("unknown", nil, candles); err == nil {
		t.Error("未知指标应返回错误")
	}

	names := ListIndicators()
	if len(names) != 6 {
		t.Errorf("默认注册表应有 6 个指标, 得到 %v", names)
	}
}

func TestCrossOverAndUnder(t *testing.T) {
	// a 和 b 都从下标 1 开始
	a := NewSeries(1, []float64{1, 2, 3, 2, 2})
	b := NewSeries(1, []float64{2, 2, 2, 2, 3})

	tests := []struct {
		index int
		over  bool
		under bool
	}{
		{1, false, false}, // 上一根未定义
		{2, false, false}, // 2 == 2 不算上穿
		{3, true, false},  // 之前 a <= b，现在 a > b
		{4, false, false}, // 现在相等
		{5, false, true},  // 之前 a >= b，现在 a < b
		{6, false, false}, // 越界
	}

	for _, tt := range tests {
		if got := CrossOver(a, b, tt.index); got != tt.over {
			t.Errorf("CrossOver(%d) = %v, want %v", tt.index, got, tt.over)
		}
		if got := CrossUnder(a, b, tt.index); got != tt.under {
			t.Errorf("CrossUnder(%d) = %v, want %v", tt.index, got, tt.under)
		}
	}
}
