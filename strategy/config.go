package strategy

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind 策略类型
type Kind string

const (
	KindMACrossover        Kind = "ma_crossover"        // 均线交叉
	KindRSIThreshold       Kind = "rsi"                 // RSI 阈值
	KindBollingerBreakout  Kind = "bollinger"           // 布林带突破
	KindVolatilityBreakout Kind = "volatility_breakout" // 波动率突破（只买不卖）
)

// ErrInvalidConfig 策略参数无效
var ErrInvalidConfig = errors.New("invalid strategy config")

// Config 策略配置
// 只有本包内的四种类型实现该接口，每种类型只携带自己需要的参数
type Config interface {
	Kind() Kind
	// Name 可读名称（带参数），用于日志和报告
	Name() string
	// Validate 校验参数；回测引擎本身不调用它，由调用方决定是否提前拒绝
	Validate() error

	isConfig()
}

// MovingAverageCrossover 均线交叉策略：短期 SMA 上穿长期 SMA 买入，下穿卖出
type MovingAverageCrossover struct {
	ShortPeriod int
	LongPeriod  int
}

func (MovingAverageCrossover) Kind() Kind { return KindMACrossover }
func (MovingAverageCrossover) isConfig() {}

func (c MovingAverageCrossover) Name() string {
	return fmt.Sprintf("MA交叉(%d/%d)", c.ShortPeriod, c.LongPeriod)
}

func (c MovingAverageCrossover) Validate() error {
	if c.ShortPeriod <= 0 {
		return fmt.Errorf("%w: short_period 必须大于 0", ErrInvalidConfig)
	}
	if c.LongPeriod <= c.ShortPeriod {
		return fmt.Errorf("%w: long_period 必须大于 short_period", ErrInvalidConfig)
	}
	return nil
}

// RSIThreshold RSI 阈值策略：低于买入阈值买入，高于卖出阈值卖出
type RSIThreshold struct {
	Period        int
	BuyThreshold  float64
	SellThreshold float64
}

func (RSIThreshold) Kind() Kind { return KindRSIThreshold }
func (RSIThreshold) isConfig() {}

func (c RSIThreshold) Name() string {
	return fmt.Sprintf("RSI(%d, %.0f/%.0f)", c.Period, c.BuyThreshold, c.SellThreshold)
}

func (c RSIThreshold) Validate() error {
	if c.Period <= 0 {
		return fmt.Errorf("%w: period 必须大于 0", ErrInvalidConfig)
	}
	if c.BuyThreshold < 0 || c.BuyThreshold > 100 || c.SellThreshold < 0 || c.SellThreshold > 100 {
		return fmt.Errorf("%w: RSI 阈值必须在 0-100 之间", ErrInvalidConfig)
	}
	return nil
}

// BollingerBreakout 布林带策略：价格跌破下轨买入，突破上轨卖出
type BollingerBreakout struct {
	Period     int
	Multiplier float64
}

func (BollingerBreakout) Kind() Kind { return KindBollingerBreakout }
func (BollingerBreakout) isConfig() {}

func (c BollingerBreakout) Name() string {
	return fmt.Sprintf("布林带(%d, %.1f)", c.Period, c.Multiplier)
}

func (c BollingerBreakout) Validate() error {
	if c.Period <= 0 {
		return fmt.Errorf("%w: period 必须大于 0", ErrInvalidConfig)
	}
	if c.Multiplier <= 0 {
		return fmt.Errorf("%w: multiplier 必须大于 0", ErrInvalidConfig)
	}
	return nil
}

// VolatilityBreakout 波动率突破策略
// 目标价 = 前一根最高价 + (前一根最高价 - 前一根最低价) * Multiplier，价格突破目标价买入。
// 该策略没有卖出规则。
type VolatilityBreakout struct {
	Multiplier float64
}

func (VolatilityBreakout) Kind() Kind { return KindVolatilityBreakout }
func (VolatilityBreakout) isConfig() {}

func (c VolatilityBreakout) Name() string {
	return fmt.Sprintf("波动率突破(%.2f)", c.Multiplier)
}

func (c VolatilityBreakout) Validate() error {
	if c.Multiplier <= 0 {
		return fmt.Errorf("%w: multiplier 必须大于 0", ErrInvalidConfig)
	}
	return nil
}

// 默认参数
const (
	DefaultShortPeriod        = 5
	DefaultLongPeriod         = 20
	DefaultRSIPeriod          = 14
	DefaultRSIBuyThreshold    = 30
	DefaultRSISellThreshold   = 70
	DefaultBollingerPeriod    = 20
	DefaultBollingerMult      = 2.0
	DefaultBreakoutMultiplier = 0.5
)

// Spec 策略配置的序列化形式（JSON / YAML），由 type 字段区分
// 参数字段缺省（nil）时使用默认值；显式填写的值（包括 0）原样保留
type Spec struct {
	Type          string   `json:"type" yaml:"type"`
	ShortPeriod   *int     `json:"short_period,omitempty" yaml:"short_period,omitempty"`
	LongPeriod    *int     `json:"long_period,omitempty" yaml:"long_period,omitempty"`
	Period        *int     `json:"period,omitempty" yaml:"period,omitempty"`
	BuyThreshold  *float64 `json:"buy_threshold,omitempty" yaml:"buy_threshold,omitempty"`
	SellThreshold *float64 `json:"sell_threshold,omitempty" yaml:"sell_threshold,omitempty"`
	Multiplier    *float64 `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
}

// FromSpec 把序列化形式转换为具体策略配置
func FromSpec(s Spec) (Config, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s.Type))) {
	case KindMACrossover, "ma", "sma_cross":
		return MovingAverageCrossover{
			ShortPeriod: intOr(s.ShortPeriod, DefaultShortPeriod),
			LongPeriod:  intOr(s.LongPeriod, DefaultLongPeriod),
		}, nil
	case KindRSIThreshold:
		return RSIThreshold{
			Period:        intOr(s.Period, DefaultRSIPeriod),
			BuyThreshold:  floatOr(s.BuyThreshold, DefaultRSIBuyThreshold),
			SellThreshold: floatOr(s.SellThreshold, DefaultRSISellThreshold),
		}, nil
	case KindBollingerBreakout, "bb":
		return BollingerBreakout{
			Period:     intOr(s.Period, DefaultBollingerPeriod),
			Multiplier: floatOr(s.Multiplier, DefaultBollingerMult),
		}, nil
	case KindVolatilityBreakout, "vb":
		return VolatilityBreakout{
			Multiplier: floatOr(s.Multiplier, DefaultBreakoutMultiplier),
		}, nil
	default:
		return nil, fmt.Errorf("%w: 不支持的策略类型 %q", ErrInvalidConfig, s.Type)
	}
}

// ToSpec 把具体策略配置转换为序列化形式，所有参数都显式写出
func ToSpec(c Config) Spec {
	switch v := c.(type) {
	case MovingAverageCrossover:
		return Spec{Type: string(v.Kind()), ShortPeriod: &v.ShortPeriod, LongPeriod: &v.LongPeriod}
	case RSIThreshold:
		return Spec{Type: string(v.Kind()), Period: &v.Period, BuyThreshold: &v.BuyThreshold, SellThreshold: &v.SellThreshold}
	case BollingerBreakout:
		return Spec{Type: string(v.Kind()), Period: &v.Period, Multiplier: &v.Multiplier}
	case VolatilityBreakout:
		return Spec{Type: string(v.Kind()), Multiplier: &v.Multiplier}
	}
	return Spec{}
}

// Decode 从 JSON 解析策略配置
func Decode(data []byte) (Config, error) {
	var s Spec
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("解析策略配置失败: %w", err)
	}
	return FromSpec(s)
}

// Encode 把策略配置编码为 JSON
func Encode(c Config) ([]byte, error) {
	return json.Marshal(ToSpec(c))
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
