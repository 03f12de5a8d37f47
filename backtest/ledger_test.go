package backtest

import (
	"math"
	"testing"
)

func TestLedgerBuyRequiresMinimumCash(t *testing.T) {
	l := NewLedger(DefaultMinOrderCash, DefaultMinOrderCash, DefaultInvestRatio)
	if l.Buy(100, 1, "test") {
		t.Error("现金等于最小下单金额时不应买入")
	}

	l = NewLedger(5001, DefaultMinOrderCash, DefaultInvestRatio)
	if !l.Buy(100, 1, "test") {
		t.Fatal("现金大于最小下单金额时应买入")
	}
	if math.Abs(l.Cash()-5001*0.01) > 1e-9 {
		t.Errorf("应保留 1%% 现金, 得到 %f", l.Cash())
	}
	if math.Abs(l.Position()-5001*0.99/100) > 1e-9 {
		t.Errorf("持仓数量错误: %f", l.Position())
	}
}

func TestLedgerSellRequiresPosition(t *testing.T) {
	l := NewLedger(100000, DefaultMinOrderCash, DefaultInvestRatio)
	if l.Sell(100, 1, "test") {
		t.Error("无持仓时不应卖出")
	}
	if len(l.Trades()) != 0 {
		t.Error("未成交不应产生记录")
	}
}

func TestLedgerProfitUsesLastBuyOnly(t *testing.T) {
	l := NewLedger(1000000, DefaultMinOrderCash, DefaultInvestRatio)
	l.Buy(100, 1, "first")   // 9900 个，剩余现金 10000
	l.Buy(50, 2, "second")   // 198 个，剩余现金 100
	l.Buy(50, 3, "rejected") // 现金不足

	if len(l.Trades()) != 2 {
		t.Fatalf("应有 2 笔买入, 得到 %d", len(l.Trades()))
	}

	l.Sell(80, 4, "exit")
	sell := l.Trades()[2]
	wantAmount := 9900.0 + 198.0
	if math.Abs(sell.Amount-wantAmount) > 1e-6 {
		t.Errorf("应卖出全部持仓 %f, 得到 %f", wantAmount, sell.Amount)
	}
	// (80 - 50) * 10098，忽略第一笔买入的成本 100
	if sell.Profit == nil || math.Abs(*sell.Profit-30*wantAmount) > 1e-6 {
		t.Errorf("盈亏应只按最近一笔买入价计算, 得到 %v", sell.Profit)
	}
	if l.Position() != 0 {
		t.Errorf("卖出后持仓应为 0, 得到 %f", l.Position())
	}
}

func TestLedgerSnapshot(t *testing.T) {
	l := NewLedger(100000, DefaultMinOrderCash, DefaultInvestRatio)
	l.Snapshot(1, 10)
	l.Buy(10, 2, "buy")
	l.Snapshot(2, 20)

	equity := l.Equity()
	if len(equity) != 2 {
		t.Fatalf("快照数量错误: %d", len(equity))
	}
	if equity[0].Value != 100000 {
		t.Errorf("初始权益错误: %f", equity[0].Value)
	}
	// 1000 + 9900 * 20
	if math.Abs(equity[1].Value-(1000+9900*20)) > 1e-6 {
		t.Errorf("权益应按收盘价计算, 得到 %f", equity[1].Value)
	}
}

func TestWinRate(t *testing.T) {
	win, loss := 10.0, -5.0
	trades := []Trade{
		{Type: TradeBuy},
		{Type: TradeSell, Profit: &win},
		{Type: TradeBuy},
		{Type: TradeSell, Profit: &loss},
	}
	if WinRate(trades) != 50 {
		t.Errorf("胜率应为 50, 得到 %f", WinRate(trades))
	}
	if WinRate([]Trade{{Type: TradeBuy}}) != 0 {
		t.Error("没有卖出时胜率应为 0")
	}
}

func TestCalculateMetrics(t *testing.T) {
	equity := []EquityPoint{{1, 100}, {2, 120}, {3, 90}, {4, 95}, {5, 130}}
	win1, win2, loss := 10.0, 20.0, -15.0
	trades := []Trade{
		{Type: TradeSell, Profit: &win1},
		{Type: TradeSell, Profit: &win2},
		{Type: TradeSell, Profit: &loss},
	}

	m := CalculateMetrics(equity, trades)
	if math.Abs(m.MaxDrawdown-25) > 1e-9 {
		t.Errorf("最大回撤应为 25%%, 得到 %f", m.MaxDrawdown)
	}
	if m.MaxDrawdownDuration != 2 {
		t.Errorf("回撤持续应为 2 根, 得到 %d", m.MaxDrawdownDuration)
	}
	if m.MaxConsecutiveWins != 2 || m.MaxConsecutiveLosses != 1 {
		t.Errorf("连续盈亏统计错误: %d/%d", m.MaxConsecutiveWins, m.MaxConsecutiveLosses)
	}
	if math.Abs(m.ProfitFactor-2) > 1e-9 || m.AvgWin != 15 || m.AvgLoss != 15 {
		t.Errorf("交易指标错误: %+v", m)
	}
	if m.LargestWin != 20 || m.LargestLoss != 15 {
		t.Errorf("最大单笔错误: %+v", m)
	}
	// 收益率升序为 -25%, 5.6%, 20%, 36.8%，样本太少时分位点取最差一根
	if math.Abs(m.TailRisk.VaR95-25) > 1e-9 || math.Abs(m.TailRisk.CVaR99-25) > 1e-9 {
		t.Errorf("尾部风险错误: %+v", m.TailRisk)
	}

	if empty := CalculateMetrics(nil, nil); empty != (Metrics{}) {
		t.Errorf("空输入应返回零值: %+v", empty)
	}

	rising := []EquityPoint{{1, 100}, {2, 110}, {3, 120}}
	if risk := CalculateMetrics(rising, nil).TailRisk; risk != (TailRisk{}) {
		t.Errorf("只涨不跌时尾部风险应为 0: %+v", risk)
	}
}
