package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"quantlab/backtest"
	"quantlab/config"
	"quantlab/strategy"
)

func newTestDatabase(t *testing.T) Database {
	t.Helper()

	db, err := NewDatabase(config.DatabaseConfig{
		Type:     "sqlite",
		DSN:      filepath.Join(t.TempDir(), "runs", "quantlab.db"),
		LogLevel: "silent",
	})
	if err != nil {
		t.Fatalf("创建数据库失败: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleResult(id, symbol string) *backtest.BacktestResult {
	profit := 1200.0
	start := time.UnixMilli(1700000000000).UTC()
	return &backtest.BacktestResult{
		ID:        id,
		Symbol:    symbol,
		Strategy:  "MA交叉(5,20)",
		Spec:      strategy.ToSpec(strategy.MovingAverageCrossover{ShortPeriod: 5, LongPeriod: 20}),
		StartTime: start,
		EndTime:   start.Add(48 * time.Hour),
		Summary: backtest.Summary{
			InitialCapital: 1000000,
			FinalCapital:   1001200,
			TotalReturnPct: 0.12,
			TradeCount:     2,
			WinRatePct:     100,
		},
		Trades: []backtest.Trade{
			{Type: backtest.TradeBuy, Price: 100, Amount: 9900, Timestamp: 1700000000000, Reason: "金叉"},
			{Type: backtest.TradeSell, Price: 100.12, Amount: 9900, Timestamp: 1700086400000, Reason: "死叉", Profit: &profit},
		},
		EquityHistory: []backtest.EquityPoint{
			{Timestamp: 1700000000000, Value: 1000000},
			{Timestamp: 1700086400000, Value: 1001200},
			{Timestamp: 1700172800000, Value: 1001200},
		},
		Metrics: backtest.Metrics{MaxDrawdown: 1.5, MaxConsecutiveWins: 1},
	}
}

func TestResultRoundTrip(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	run, err := FromResult(sampleResult("run-1", "BTCUSDT"), 3)
	if err != nil {
		t.Fatalf("转换失败: %v", err)
	}
	if err := db.SaveRun(ctx, run); err != nil {
		t.Fatalf("保存失败: %v", err)
	}

	loaded, err := db.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	if loaded.CandleCount != 3 || loaded.StrategyType != "ma_crossover" {
		t.Errorf("记录字段错误: %+v", loaded)
	}
	if len(loaded.Trades) != 2 || loaded.Trades[0].Type != "buy" || loaded.Trades[1].Type != "sell" {
		t.Fatalf("成交明细顺序错误: %+v", loaded.Trades)
	}

	result, err := loaded.ToResult()
	if err != nil {
		t.Fatalf("还原失败: %v", err)
	}
	cfg, err := strategy.FromSpec(result.Spec)
	if err != nil || cfg != (strategy.MovingAverageCrossover{ShortPeriod: 5, LongPeriod: 20}) {
		t.Errorf("策略配置还原错误: %#v, %v", cfg, err)
	}
	if result.FinalCapital != 1001200 || result.WinRatePct != 100 {
		t.Errorf("汇总还原错误: %+v", result.Summary)
	}
	if len(result.EquityHistory) != 3 {
		t.Errorf("权益曲线长度 = %d, 期望 3", len(result.EquityHistory))
	}
	if result.Trades[0].Profit != nil {
		t.Error("买入不应有盈亏")
	}
	if result.Trades[1].Profit == nil || *result.Trades[1].Profit != 1200 {
		t.Errorf("卖出盈亏还原错误: %v", result.Trades[1].Profit)
	}
	if result.Metrics.MaxDrawdown != 1.5 {
		t.Errorf("扩展指标还原错误: %+v", result.Metrics)
	}
}

func TestRunKeepsZeroThreshold(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	rsi := strategy.RSIThreshold{Period: 14, BuyThreshold: 0, SellThreshold: 100}
	result := sampleResult("run-rsi", "ETHUSDT")
	result.Spec = strategy.ToSpec(rsi)

	run, err := FromResult(result, 3)
	if err != nil {
		t.Fatalf("转换失败: %v", err)
	}
	if err := db.SaveRun(ctx, run); err != nil {
		t.Fatalf("保存失败: %v", err)
	}
	loaded, err := db.GetRun(ctx, "run-rsi")
	if err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	restored, err := loaded.ToResult()
	if err != nil {
		t.Fatalf("还原失败: %v", err)
	}
	cfg, err := strategy.FromSpec(restored.Spec)
	if err != nil || cfg != rsi {
		t.Errorf("历史记录中的策略应与运行时一致: %#v, %v", cfg, err)
	}
}

func TestSaveRunWithoutTrades(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	result := sampleResult("run-empty", "ETHUSDT")
	result.Trades = nil
	run, err := FromResult(result, 3)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.SaveRun(ctx, run); err != nil {
		t.Fatalf("保存失败: %v", err)
	}

	loaded, err := db.GetRun(ctx, "run-empty")
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Trades) != 0 {
		t.Errorf("成交明细应为空, 实际 %d", len(loaded.Trades))
	}
}

func TestSaveRunRequiresID(t *testing.T) {
	db := newTestDatabase(t)

	run, _ := FromResult(sampleResult("", "BTCUSDT"), 3)
	if err := db.SaveRun(context.Background(), run); err == nil {
		t.Error("缺少 ID 应该返回错误")
	}
}

func TestListRunsFilter(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour).UTC()
	inputs := []struct {
		id     string
		symbol string
	}{
		{"a", "BTCUSDT"},
		{"b", "ETHUSDT"},
		{"c", "BTCUSDT"},
	}
	for i, in := range inputs {
		run, err := FromResult(sampleResult(in.id, in.symbol), 3)
		if err != nil {
			t.Fatal(err)
		}
		run.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := db.SaveRun(ctx, run); err != nil {
			t.Fatalf("保存 %s 失败: %v", in.id, err)
		}
	}

	all, err := db.ListRuns(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("记录数 = %d, 期望 3", len(all))
	}
	if all[0].ID != "c" || all[2].ID != "a" {
		t.Errorf("应按创建时间倒序: %s %s %s", all[0].ID, all[1].ID, all[2].ID)
	}
	if all[0].EquityJSON != "" {
		t.Error("列表不应加载权益曲线")
	}

	btc, err := db.ListRuns(ctx, &RunFilter{Symbol: "BTCUSDT"})
	if err != nil {
		t.Fatal(err)
	}
	if len(btc) != 2 {
		t.Errorf("BTCUSDT 记录数 = %d, 期望 2", len(btc))
	}

	page, err := db.ListRuns(ctx, &RunFilter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 1 || page[0].ID != "b" {
		t.Errorf("分页结果错误: %+v", page)
	}

	none, err := db.ListRuns(ctx, &RunFilter{StrategyType: "rsi"})
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("rsi 记录数 = %d, 期望 0", len(none))
	}
}

func TestDeleteRun(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	run, _ := FromResult(sampleResult("run-del", "BTCUSDT"), 3)
	if err := db.SaveRun(ctx, run); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteRun(ctx, "run-del"); err != nil {
		t.Fatalf("删除失败: %v", err)
	}
	if _, err := db.GetRun(ctx, "run-del"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("删除后读取应返回 ErrRunNotFound, 实际 %v", err)
	}
	if err := db.DeleteRun(ctx, "run-del"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("重复删除应返回 ErrRunNotFound, 实际 %v", err)
	}
}

func TestUnsupportedDatabase(t *testing.T) {
	if _, err := NewDatabase(config.DatabaseConfig{Type: "oracle"}); err == nil {
		t.Error("不支持的数据库类型应该返回错误")
	}
	if err := newTestDatabase(t).Ping(context.Background()); err != nil {
		t.Errorf("Ping 失败: %v", err)
	}
}
