package backtest

import (
	"errors"
	"fmt"
	"time"

	"quantlab/indicators"
	"quantlab/logger"
	"quantlab/strategy"
)

var (
	// ErrNoCandles K线数据为空
	ErrNoCandles = errors.New("candles data is empty")
	// ErrInvalidCapital 初始资金必须大于 0
	ErrInvalidCapital = errors.New("initial capital must be positive")
	// ErrInvalidOptions 引擎参数无效
	ErrInvalidOptions = errors.New("invalid engine options")
)

// Options 引擎参数，默认值见 DefaultOptions
type Options struct {
	WarmupSteps  int     `json:"warmup_steps" yaml:"warmup_steps"`
	MinOrderCash float64 `json:"min_order_cash" yaml:"min_order_cash"`
	InvestRatio  float64 `json:"invest_ratio" yaml:"invest_ratio"`
}

// DefaultOptions 默认引擎参数
func DefaultOptions() Options {
	return Options{
		WarmupSteps:  strategy.DefaultWarmupSteps,
		MinOrderCash: DefaultMinOrderCash,
		InvestRatio:  DefaultInvestRatio,
	}
}

// Validate 校验调用方显式传入的参数，0 表示使用默认值
func (o Options) Validate() error {
	if o.WarmupSteps < 0 {
		return fmt.Errorf("%w: warmup_steps 不能为负数", ErrInvalidOptions)
	}
	if o.MinOrderCash < 0 {
		return fmt.Errorf("%w: min_order_cash 不能为负数", ErrInvalidOptions)
	}
	if o.InvestRatio < 0 || o.InvestRatio > 1 {
		return fmt.Errorf("%w: invest_ratio 必须在 (0, 1] 之间", ErrInvalidOptions)
	}
	return nil
}

// normalize 未设置的字段使用默认值
func (o Options) normalize() Options {
	def := DefaultOptions()
	if o.WarmupSteps <= 0 {
		o.WarmupSteps = def.WarmupSteps
	}
	if o.MinOrderCash <= 0 {
		o.MinOrderCash = def.MinOrderCash
	}
	if o.InvestRatio <= 0 || o.InvestRatio > 1 {
		o.InvestRatio = def.InvestRatio
	}
	return o
}

// Backtester 回测器
type Backtester struct {
	symbol         string
	candles        []indicators.Candle
	strategy       strategy.Config
	initialCapital float64
	options        Options
}

// NewBacktester 创建回测器
// candles 必须按时间严格递增且无重复，引擎不做排序或去重
func NewBacktester(
	symbol string,
	candles []indicators.Candle,
	cfg strategy.Config,
	initialCapital float64,
) *Backtester {
	return &Backtester{
		symbol:         symbol,
		candles:        candles,
		strategy:       cfg,
		initialCapital: initialCapital,
		options:        DefaultOptions(),
	}
}

// SetOptions 设置引擎参数
func (bt *Backtester) SetOptions(opts Options) {
	bt.options = opts.normalize()
}

// Run 执行回测：K线 -> 指标 -> 逐根评估信号 -> 账本成交并记录权益 -> 汇总
func (bt *Backtester) Run() (*BacktestResult, error) {
	if len(bt.candles) == 0 {
		logger.Error("❌ 回测失败: K线数据为空")
		return nil, ErrNoCandles
	}
	if bt.initialCapital <= 0 {
		return nil, ErrInvalidCapital
	}
	if bt.strategy == nil {
		return nil, strategy.ErrInvalidConfig
	}

	logger.Info("🚀 开始回测: %s 策略, %d 根K线", bt.strategy.Name(), len(bt.candles))

	ind := strategy.Prepare(bt.strategy, bt.candles)
	evaluator := strategy.NewEvaluator(bt.options.WarmupSteps)
	ledger := NewLedger(bt.initialCapital, bt.options.MinOrderCash, bt.options.InvestRatio)

	for i := range bt.candles {
		candle := &bt.candles[i]

		var prev *indicators.Candle
		if i > 0 {
			prev = &bt.candles[i-1]
		}

		signal := evaluator.Evaluate(bt.strategy, i, candle.Close, ind, prev)
		switch signal.Action {
		case strategy.ActionBuy:
			if ledger.Buy(candle.Close, candle.Time, signal.Reason) {
				logger.Debug("📈 买入: 价格=%.2f, 数量=%.4f, 原因=%s", candle.Close, ledger.Position(), signal.Reason)
			}
		case strategy.ActionSell:
			if ledger.Sell(candle.Close, candle.Time, signal.Reason) {
				logger.Debug("📉 卖出: 价格=%.2f, 现金=%.2f, 原因=%s", candle.Close, ledger.Cash(), signal.Reason)
			}
		}

		ledger.Snapshot(candle.Time, candle.Close)
	}

	last := bt.candles[len(bt.candles)-1]
	summary := Aggregate(bt.initialCapital, ledger, last.Close)

	logger.Info("✅ 回测完成: %d 笔交易, 总收益率=%.2f%%", summary.TradeCount, summary.TotalReturnPct)

	return &BacktestResult{
		Symbol:        bt.symbol,
		Strategy:      bt.strategy.Name(),
		Spec:          strategy.ToSpec(bt.strategy),
		StartTime:     time.UnixMilli(bt.candles[0].Time),
		EndTime:       time.UnixMilli(last.Time),
		Summary:       summary,
		Trades:        ledger.Trades(),
		EquityHistory: ledger.Equity(),
		Metrics:       CalculateMetrics(ledger.Equity(), ledger.Trades()),
	}, nil
}

// Run 使用默认参数运行一次回测
func Run(cfg strategy.Config, initialCapital float64, candles []indicators.Candle) (*BacktestResult, error) {
	return NewBacktester("", candles, cfg, initialCapital).Run()
}
