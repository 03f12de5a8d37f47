package strategy

import (
	"fmt"

	"quantlab/indicators"
)

// DefaultWarmupSteps 全局预热步数：K线下标小于该值时不评估任何策略，与策略自身周期无关
const DefaultWarmupSteps = 20

// Action 交易动作
type Action int

const (
	ActionHold Action = iota
	ActionBuy
	ActionSell
)

// String 动作名称
func (a Action) String() string {
	switch a {
	case ActionBuy:
		return "buy"
	case ActionSell:
		return "sell"
	default:
		return "hold"
	}
}

// Signal 交易信号
type Signal struct {
	Action Action
	Reason string
}

// Hold 观望信号
func Hold() Signal {
	return Signal{Action: ActionHold}
}

// Buy 买入信号
func Buy(reason string) Signal {
	return Signal{Action: ActionBuy, Reason: reason}
}

// Sell 卖出信号
func Sell(reason string) Signal {
	return Signal{Action: ActionSell, Reason: reason}
}

// Indicators 一次回测所需的预计算指标，全部按K线下标对齐
type Indicators struct {
	ShortMA indicators.Series
	LongMA  indicators.Series
	RSI     indicators.Series
	Upper   indicators.Series
	Middle  indicators.Series
	Lower   indicators.Series
}

// Prepare 根据策略类型预计算指标，策略不需要的指标保持为空
func Prepare(cfg Config, candles []indicators.Candle) Indicators {
	var ind Indicators

	switch c := cfg.(type) {
	case MovingAverageCrossover:
		ind.ShortMA = indicators.NewSMA(c.ShortPeriod).Calculate(candles)
		ind.LongMA = indicators.NewSMA(c.LongPeriod).Calculate(candles)
	case RSIThreshold:
		ind.RSI = indicators.NewRSI(c.Period).Calculate(candles)
	case BollingerBreakout:
		bands := indicators.NewBollingerBands(c.Period, c.Multiplier).CalculateMulti(candles)
		ind.Upper = bands["upper"]
		ind.Middle = bands["middle"]
		ind.Lower = bands["lower"]
	case VolatilityBreakout:
		// 只使用前一根K线，无需预计算
	}

	return ind
}

// Evaluator 策略评估器
type Evaluator struct {
	warmupSteps int
}

// NewEvaluator 创建评估器，warmupSteps <= 0 时使用默认值
func NewEvaluator(warmupSteps int) *Evaluator {
	if warmupSteps <= 0 {
		warmupSteps = DefaultWarmupSteps
	}
	return &Evaluator{warmupSteps: warmupSteps}
}

// WarmupSteps 预热步数
func (e *Evaluator) WarmupSteps() int {
	return e.warmupSteps
}

var defaultEvaluator = NewEvaluator(DefaultWarmupSteps)

// Evaluate 使用默认预热步数评估
func Evaluate(cfg Config, step int, price float64, ind Indicators, prev *indicators.Candle) Signal {
	return defaultEvaluator.Evaluate(cfg, step, price, ind, prev)
}

// Evaluate 评估第 step 根K线的信号
// price 为当前价格（收盘价），prev 为前一根K线（可能为 nil）
func (e *Evaluator) Evaluate(cfg Config, step int, price float64, ind Indicators, prev *indicators.Candle) Signal {
	if step < e.warmupSteps {
		return Hold()
	}

	switch c := cfg.(type) {
	case MovingAverageCrossover:
		return evaluateCrossover(c, step, ind)
	case RSIThreshold:
		return evaluateRSI(c, step, ind)
	case BollingerBreakout:
		return evaluateBollinger(step, price, ind)
	case VolatilityBreakout:
		return evaluateBreakout(c, price, prev)
	}

	return Hold()
}

// evaluateCrossover 金叉买入、死叉卖出
// 金叉：当前短均线 > 长均线，且上一步短均线 <= 长均线；死叉对称
func evaluateCrossover(c MovingAverageCrossover, step int, ind Indicators) Signal {
	switch {
	case indicators.CrossOver(ind.ShortMA, ind.LongMA, step):
		shortNow, _ := ind.ShortMA.At(step)
		longNow, _ := ind.LongMA.At(step)
		return Buy(fmt.Sprintf("金叉: MA%d(%.2f) 上穿 MA%d(%.2f)", c.ShortPeriod, shortNow, c.LongPeriod, longNow))
	case indicators.CrossUnder(ind.ShortMA, ind.LongMA, step):
		shortNow, _ := ind.ShortMA.At(step)
		longNow, _ := ind.LongMA.At(step)
		return Sell(fmt.Sprintf("死叉: MA%d(%.2f) 下穿 MA%d(%.2f)", c.ShortPeriod, shortNow, c.LongPeriod, longNow))
	}
	return Hold()
}

// evaluateRSI 买入条件先检查，阈值重叠时买入优先
func evaluateRSI(c RSIThreshold, step int, ind Indicators) Signal {
	rsi, ok := ind.RSI.At(step)
	if !ok {
		return Hold()
	}

	if rsi < c.BuyThreshold {
		return Buy(fmt.Sprintf("RSI 超卖信号 (RSI=%.2f < %.0f)", rsi, c.BuyThreshold))
	}
	if rsi > c.SellThreshold {
		return Sell(fmt.Sprintf("RSI 超买信号 (RSI=%.2f > %.0f)", rsi, c.SellThreshold))
	}
	return Hold()
}

// evaluateBollinger 每一步独立判断，条件持续成立就持续发出信号
func evaluateBollinger(step int, price float64, ind Indicators) Signal {
	upper, ok1 := ind.Upper.At(step)
	lower, ok2 := ind.Lower.At(step)
	if !ok1 || !ok2 {
		return Hold()
	}

	if price < lower {
		return Buy(fmt.Sprintf("价格低于下轨 (%.2f < %.2f)", price, lower))
	}
	if price > upper {
		return Sell(fmt.Sprintf("价格高于上轨 (%.2f > %.2f)", price, upper))
	}
	return Hold()
}

// evaluateBreakout 只产生买入信号
func evaluateBreakout(c VolatilityBreakout, price float64, prev *indicators.Candle) Signal {
	if prev == nil {
		return Hold()
	}

	target := prev.High + (prev.High-prev.Low)*c.Multiplier
	if price > target {
		return Buy(fmt.Sprintf("突破目标价 (%.2f > %.2f)", price, target))
	}
	return Hold()
}
