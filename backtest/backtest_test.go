package backtest

import (
	"context"
	"errors"
	"math"
	"os"
	"strings"
	"testing"

	"quantlab/indicators"
	"quantlab/strategy"
)

const dayMillis = int64(86400000)

func approx(a, b float64) bool {
	return math.Abs(a-b) <= 1e-6*math.Max(1, math.Abs(b))
}

// candlesFromCloses 按日生成K线，开高低收都等于收盘价
func candlesFromCloses(closes []float64) []indicators.Candle {
	candles := make([]indicators.Candle, len(closes))
	for i, c := range closes {
		candles[i] = indicators.Candle{
			Time:  1700000000000 + int64(i)*dayMillis,
			Open:  c,
			High:  c,
			Low:   c,
			Close: c,
		}
	}
	return candles
}

// generateMockCandles 生成模拟K线数据（震荡行情）
func generateMockCandles(count int, basePrice float64, volatility float64) []indicators.Candle {
	candles := make([]indicators.Candle, count)
	currentPrice := basePrice

	for i := 0; i < count; i++ {
		change := (float64(i%10) - 5) * volatility * basePrice
		currentPrice += change

		if currentPrice < basePrice*0.8 {
			currentPrice = basePrice * 0.8
		}
		if currentPrice > basePrice*1.2 {
			currentPrice = basePrice * 1.2
		}

		candles[i] = indicators.Candle{
			Time:   1700000000000 + int64(i)*3600000, // 每小时一根K线
			Open:   currentPrice,
			High:   currentPrice * (1 + volatility),
			Low:    currentPrice * (1 - volatility),
			Close:  currentPrice + (float64(i%3)-1)*volatility*basePrice,
			Volume: 1000 + float64(i%100)*10,
		}
	}

	return candles
}

// crossoverScenario 第 21 根金叉（价格 110），第 40 根死叉（价格 130），共 45 根
func crossoverScenario() []indicators.Candle {
	closes := make([]float64, 45)
	for i := range closes {
		switch {
		case i <= 20:
			closes[i] = 100
		case i == 21:
			closes[i] = 110
		case i < 40:
			closes[i] = 150
		default:
			closes[i] = 130
		}
	}
	return candlesFromCloses(closes)
}

func TestRisingPricesRSINeverBuys(t *testing.T) {
	closes := make([]float64, 25)
	for i := range closes {
		closes[i] = 100 + float64(i)*2
	}

	cfg := strategy.RSIThreshold{Period: 14, BuyThreshold: 30, SellThreshold: 70}
	result, err := Run(cfg, 1000000, candlesFromCloses(closes))
	if err != nil {
		t.Fatalf("回测失败: %v", err)
	}

	if result.TradeCount != 0 {
		t.Errorf("RSI 从未低于 30, 不应有交易, 得到 %d 笔", result.TradeCount)
	}
	if result.FinalCapital != 1000000 || result.TotalReturnPct != 0 {
		t.Errorf("无交易时资金不应变化: final=%f return=%f", result.FinalCapital, result.TotalReturnPct)
	}
	if len(result.EquityHistory) != len(closes) {
		t.Errorf("权益快照数量应等于K线数量: %d != %d", len(result.EquityHistory), len(closes))
	}
}

func TestGoldenAndDeadCross(t *testing.T) {
	candles := crossoverScenario()
	cfg := strategy.MovingAverageCrossover{ShortPeriod: 5, LongPeriod: 20}

	result, err := Run(cfg, 1000000, candles)
	if err != nil {
		t.Fatalf("回测失败: %v", err)
	}

	if result.TradeCount != 2 {
		t.Fatalf("应有 2 笔交易, 得到 %d: %+v", result.TradeCount, result.Trades)
	}

	buy, sell := result.Trades[0], result.Trades[1]
	if buy.Type != TradeBuy || buy.Timestamp != candles[21].Time || buy.Price != 110 {
		t.Errorf("买入应发生在第 21 根K线, 价格 110: %+v", buy)
	}
	if !approx(buy.Amount, 9000) {
		t.Errorf("买入数量应为 9000, 得到 %f", buy.Amount)
	}
	if buy.Profit != nil {
		t.Error("买入记录不应有 profit")
	}

	if sell.Type != TradeSell || sell.Timestamp != candles[40].Time || sell.Price != 130 {
		t.Errorf("卖出应发生在第 40 根K线, 价格 130: %+v", sell)
	}
	if sell.Profit == nil || !approx(*sell.Profit, 180000) {
		t.Errorf("卖出盈利应为 180000, 得到 %v", sell.Profit)
	}

	if !approx(result.FinalCapital, 1180000) {
		t.Errorf("最终资金应为 1180000, 得到 %f", result.FinalCapital)
	}
	if !approx(result.TotalReturnPct, 18) {
		t.Errorf("总收益率应为 18%%, 得到 %f", result.TotalReturnPct)
	}
	if result.WinRatePct != 100 {
		t.Errorf("胜率应为 100, 得到 %f", result.WinRatePct)
	}
	if len(result.EquityHistory) != len(candles) {
		t.Errorf("权益快照数量错误: %d", len(result.EquityHistory))
	}
	// 第 21 根收盘后: 现金 10000 + 9000*110
	if !approx(result.EquityHistory[21].Value, 1000000) {
		t.Errorf("买入当根权益应为 1000000, 得到 %f", result.EquityHistory[21].Value)
	}
}

func TestBollingerSingleSpike(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100
	}
	closes[30] = 80

	cfg := strategy.BollingerBreakout{Period: 20, Multiplier: 2}
	result, err := Run(cfg, 1000000, candlesFromCloses(closes))
	if err != nil {
		t.Fatalf("回测失败: %v", err)
	}

	if result.TradeCount != 1 {
		t.Fatalf("单根下刺只应触发 1 笔买入, 得到 %d", result.TradeCount)
	}
	if result.Trades[0].Type != TradeBuy || result.Trades[0].Price != 80 {
		t.Errorf("买入记录错误: %+v", result.Trades[0])
	}
}

func TestBollingerFiresEveryStepAndLastBuyProfit(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100
	}
	closes[30] = 80  // 下轨约 90.28
	closes[31] = 60  // 下轨约 77.92，再次买入
	closes[33] = 200 // 上轨约 150.8，卖出

	cfg := strategy.BollingerBreakout{Period: 20, Multiplier: 2}
	result, err := Run(cfg, 1000000, candlesFromCloses(closes))
	if err != nil {
		t.Fatalf("回测失败: %v", err)
	}

	if result.TradeCount != 3 {
		t.Fatalf("应有 2 笔买入 + 1 笔卖出, 得到 %d: %+v", result.TradeCount, result.Trades)
	}
	if result.Trades[0].Type != TradeBuy || result.Trades[1].Type != TradeBuy {
		t.Fatal("前两笔应为连续买入")
	}
	if !approx(result.Trades[1].Amount, 165) {
		t.Errorf("第二笔买入使用剩余现金 10000 的 99%%, 数量应为 165, 得到 %f", result.Trades[1].Amount)
	}

	sell := result.Trades[2]
	if sell.Type != TradeSell || !approx(sell.Amount, 12540) {
		t.Fatalf("应一次卖出全部持仓 12540: %+v", sell)
	}
	// 盈亏只按最近一笔买入价 60 计算
	if sell.Profit == nil || !approx(*sell.Profit, (200-60)*12540) {
		t.Errorf("盈亏应按最近买入价计算为 %f, 得到 %v", float64((200-60)*12540), sell.Profit)
	}
	if !approx(result.FinalCapital, 2508100) {
		t.Errorf("最终资金应为 2508100, 得到 %f", result.FinalCapital)
	}
}

func TestNoSignalRun(t *testing.T) {
	candles := candlesFromCloses(make([]float64, 30))
	for i := range candles {
		candles[i].Close = 50
		candles[i].High = 50
		candles[i].Low = 50
	}

	cfgs := []strategy.Config{
		strategy.MovingAverageCrossover{ShortPeriod: 5, LongPeriod: 20},
		strategy.BollingerBreakout{Period: 20, Multiplier: 2},
		strategy.VolatilityBreakout{Multiplier: 0.5},
	}
	for _, cfg := range cfgs {
		result, err := Run(cfg, 10000, candles)
		if err != nil {
			t.Fatalf("%s 回测失败: %v", cfg.Name(), err)
		}
		if result.TradeCount != 0 || result.FinalCapital != 10000 || result.TotalReturnPct != 0 {
			t.Errorf("%s 不应有交易: %+v", cfg.Name(), result.Summary)
		}
		if result.WinRatePct != 0 || math.IsNaN(result.WinRatePct) {
			t.Errorf("%s 没有卖出时胜率应为 0, 得到 %f", cfg.Name(), result.WinRatePct)
		}
		if len(result.EquityHistory) != len(candles) {
			t.Errorf("%s 权益快照数量错误", cfg.Name())
		}
	}
}

func TestShortSeriesProducesNoTrades(t *testing.T) {
	closes := []float64{10, 5, 1, 30, 2, 40, 1, 50, 1, 60}
	result, err := Run(strategy.RSIThreshold{Period: 2, BuyThreshold: 30, SellThreshold: 70}, 100000, candlesFromCloses(closes))
	if err != nil {
		t.Fatalf("少于预热步数时不应报错: %v", err)
	}
	if result.TradeCount != 0 {
		t.Errorf("少于 20 根K线时不应交易, 得到 %d", result.TradeCount)
	}
}

func TestVolatilityBreakoutNeverSells(t *testing.T) {
	candles := generateMockCandles(300, 30000, 0.02)
	result, err := Run(strategy.VolatilityBreakout{Multiplier: 0.1}, 1000000, candles)
	if err != nil {
		t.Fatalf("回测失败: %v", err)
	}
	for _, trade := range result.Trades {
		if trade.Type == TradeSell {
			t.Fatal("波动率突破策略不应产生卖出")
		}
	}
}

func TestRunErrors(t *testing.T) {
	cfg := strategy.RSIThreshold{Period: 14, BuyThreshold: 30, SellThreshold: 70}
	if _, err := Run(cfg, 1000, nil); !errors.Is(err, ErrNoCandles) {
		t.Errorf("空K线应返回 ErrNoCandles, 得到 %v", err)
	}
	if _, err := Run(cfg, 0, generateMockCandles(30, 100, 0.01)); !errors.Is(err, ErrInvalidCapital) {
		t.Errorf("初始资金为 0 应返回 ErrInvalidCapital, 得到 %v", err)
	}
}

func TestWinRateAlwaysFinite(t *testing.T) {
	candles := generateMockCandles(1000, 30000, 0.02)
	cfgs := []strategy.Config{
		strategy.MovingAverageCrossover{ShortPeriod: 5, LongPeriod: 20},
		strategy.RSIThreshold{Period: 14, BuyThreshold: 40, SellThreshold: 60},
		strategy.BollingerBreakout{Period: 20, Multiplier: 1.5},
		strategy.VolatilityBreakout{Multiplier: 0.3},
	}
	for _, cfg := range cfgs {
		result, err := Run(cfg, 1000000, candles)
		if err != nil {
			t.Fatalf("%s 回测失败: %v", cfg.Name(), err)
		}
		if math.IsNaN(result.WinRatePct) || result.WinRatePct < 0 || result.WinRatePct > 100 {
			t.Errorf("%s 胜率越界: %f", cfg.Name(), result.WinRatePct)
		}
		if len(result.EquityHistory) != len(candles) {
			t.Errorf("%s 权益快照数量错误", cfg.Name())
		}
		t.Logf("✅ %s: 交易 %d 笔, 收益率 %.2f%%, 胜率 %.2f%%",
			cfg.Name(), result.TradeCount, result.TotalReturnPct, result.WinRatePct)
	}
}

func TestCustomOptions(t *testing.T) {
	candles := crossoverScenario()
	bt := NewBacktester("TEST", candles, strategy.MovingAverageCrossover{ShortPeriod: 5, LongPeriod: 20}, 1000000)
	bt.SetOptions(Options{WarmupSteps: 22, InvestRatio: 0.5})

	result, err := bt.Run()
	if err != nil {
		t.Fatalf("回测失败: %v", err)
	}
	// 预热期延长到 22，金叉被跳过，只剩死叉（无持仓不成交）
	if result.TradeCount != 0 {
		t.Errorf("金叉位于预热期内, 不应有交易, 得到 %d", result.TradeCount)
	}

	if err := (Options{}).Validate(); err != nil {
		t.Errorf("零值参数表示使用默认值, 不应报错: %v", err)
	}
	for _, opts := range []Options{{InvestRatio: 1.5}, {WarmupSteps: -1}, {MinOrderCash: -100}} {
		if err := opts.Validate(); !errors.Is(err, ErrInvalidOptions) {
			t.Errorf("%+v 应返回 ErrInvalidOptions, 得到 %v", opts, err)
		}
	}
}

func TestRunBatch(t *testing.T) {
	candles := crossoverScenario()
	jobs := []Job{
		{Symbol: "A", Strategy: strategy.MovingAverageCrossover{ShortPeriod: 5, LongPeriod: 20}, InitialCapital: 1000000, Candles: candles},
		{Symbol: "B", Strategy: strategy.RSIThreshold{Period: 14, BuyThreshold: 30, SellThreshold: 70}, InitialCapital: 1000000, Candles: candles},
		{Symbol: "C", Strategy: strategy.BollingerBreakout{Period: 20, Multiplier: 2}, InitialCapital: 1000000, Candles: candles},
	}

	results, err := RunBatch(context.Background(), jobs, 2)
	if err != nil {
		t.Fatalf("批量回测失败: %v", err)
	}
	if len(results) != len(jobs) {
		t.Fatalf("结果数量错误: %d", len(results))
	}
	for i, r := range results {
		if r.Symbol != jobs[i].Symbol {
			t.Errorf("结果顺序错误: 第 %d 个为 %s", i, r.Symbol)
		}
		if r.ID == "" {
			t.Error("结果应带有运行 ID")
		}
	}
	if results[0].TradeCount != 2 {
		t.Errorf("并行运行不应影响结果, 交易次数 %d", results[0].TradeCount)
	}

	jobs = append(jobs, Job{Strategy: strategy.VolatilityBreakout{Multiplier: 1}, InitialCapital: 1000})
	if _, err := RunBatch(context.Background(), jobs, 2); !errors.Is(err, ErrNoCandles) {
		t.Errorf("包含无效任务时应返回错误, 得到 %v", err)
	}
}

func TestReportGeneration(t *testing.T) {
	result, err := NewBacktester("BTCUSDT", crossoverScenario(), strategy.MovingAverageCrossover{ShortPeriod: 5, LongPeriod: 20}, 1000000).Run()
	if err != nil {
		t.Fatalf("回测失败: %v", err)
	}

	dir := t.TempDir()
	reportPath, err := GenerateReport(result, dir)
	if err != nil {
		t.Fatalf("生成报告失败: %v", err)
	}
	content, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("读取报告失败: %v", err)
	}
	if !strings.Contains(string(content), "BTCUSDT") || !strings.Contains(string(content), "金叉") {
		t.Error("报告应包含交易对和交易原因")
	}

	equityPath, err := SaveEquityCurveCSV(result, dir)
	if err != nil {
		t.Fatalf("保存权益曲线失败: %v", err)
	}
	data, err := os.ReadFile(equityPath)
	if err != nil {
		t.Fatalf("读取权益曲线失败: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != len(result.EquityHistory)+1 {
		t.Errorf("权益曲线行数错误: %d", len(lines))
	}
}
