// Package indicators 技术指标库
// 所有指标都是纯函数：同样的K线输入得到同样的输出，不保存任何内部状态。
// 每个指标结果都以 Series 返回，Series 记录了第一个值对应的K线下标（预热偏移），
// 调用方按K线下标取值即可，不需要自己换算偏移。
package indicators

import (
	"fmt"
	"sort"
	"strings"
)

// Candle K线数据
type Candle struct {
	Time   int64   `json:"time"`             // 时间戳（毫秒）
	Open   float64 `json:"open"`             // 开盘价
	High   float64 `json:"high"`             // 最高价
	Low    float64 `json:"low"`              // 最低价
	Close  float64 `json:"close"`            // 收盘价
	Volume float64 `json:"volume,omitempty"` // 成交量（可选）
}

// Series 与原始K线序列对齐的指标序列
// Values[j] 对应K线下标 Offset+j
type Series struct {
	Offset int       `json:"offset"`
	Values []float64 `json:"values"`
}

// NewSeries 创建对齐序列
func NewSeries(offset int, values []float64) Series {
	return Series{Offset: offset, Values: values}
}

// Len 序列长度
func (s Series) Len() int {
	return len(s.Values)
}

// Empty 序列是否为空（数据不足）
func (s Series) Empty() bool {
	return len(s.Values) == 0
}

// At 按K线下标取值，下标超出已定义范围时返回 false
func (s Series) At(index int) (float64, bool) {
	j := index - s.Offset
	if j < 0 || j >= len(s.Values) {
		return 0, false
	}
	return s.Values[j], true
}

// Last 最新值
func (s Series) Last() (float64, bool) {
	if len(s.Values) == 0 {
		return 0, false
	}
	return s.Values[len(s.Values)-1], true
}

// Indicator 指标接口
type Indicator interface {
	// Name 指标名称
	Name() string
	// Period 产生第一个值所需的最少K线数
	Period() int
	// Calculate 计算主序列
	Calculate(candles []Candle) Series
}

// MultiValueIndicator 多值指标接口（如 MACD、布林带等）
type MultiValueIndicator interface {
	Indicator
	// CalculateMulti 计算全部分量
	CalculateMulti(candles []Candle) map[string]Series
}

// Params 指标参数
type Params map[string]interface{}

// Factory 指标构造函数
type Factory func(params Params) Indicator

// IndicatorRegistry 指标注册表
type IndicatorRegistry struct {
	indicators map[string]Factory
}

// NewIndicatorRegistry 创建指标注册表
func NewIndicatorRegistry() *IndicatorRegistry {
	return &IndicatorRegistry{
		indicators: make(map[string]Factory),
	}
}

// Register 注册指标
func (r *IndicatorRegistry) Register(name string, factory Factory) {
	r.indicators[strings.ToLower(name)] = factory
}

// Get 获取指标
func (r *IndicatorRegistry) Get(name string, params Params) Indicator {
	if factory, ok := r.indicators[strings.ToLower(name)]; ok {
		return factory(params)
	}
	return nil
}

// List 列出所有注册的指标（按名称排序）
func (r *IndicatorRegistry) List() []string {
	names := make([]string, 0, len(r.indicators))
	for name := range r.indicators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compute 按名称计算指标，单值指标以 "value" 为键返回
func (r *IndicatorRegistry) Compute(name string, params Params, candles []Candle) (map[string]Series, error) {
	ind := r.Get(name, params)
	if ind == nil {
		return nil, fmt.Errorf("未知指标: %s", name)
	}
	if multi, ok := ind.(MultiValueIndicator); ok {
		return multi.CalculateMulti(candles), nil
	}
	return map[string]Series{"value": ind.Calculate(candles)}, nil
}

// DefaultRegistry 默认指标注册表
var DefaultRegistry = NewIndicatorRegistry()

// RegisterIndicator 注册指标到默认注册表
func RegisterIndicator(name string, factory Factory) {
	DefaultRegistry.Register(name, factory)
}

// GetIndicator 从默认注册表获取指标
func GetIndicator(name string, params Params) Indicator {
	return DefaultRegistry.Get(name, params)
}

// ListIndicators 列出默认注册表中的所有指标
func ListIndicators() []string {
	return DefaultRegistry.List()
}

// Compute 使用默认注册表计算指标
func Compute(name string, params Params, candles []Candle) (map[string]Series, error) {
	return DefaultRegistry.Compute(name, params, candles)
}

func init() {
	RegisterIndicator("sma", func(p Params) Indicator {
		return NewSMA(getIntParam(p, "period", 20))
	})
	RegisterIndicator("ema", func(p Params) Indicator {
		return NewEMA(getIntParam(p, "period", 20))
	})
	RegisterIndicator("rsi", func(p Params) Indicator {
		return NewRSI(getIntParam(p, "period", 14))
	})
	RegisterIndicator("macd", func(p Params) Indicator {
		return NewMACD(
			getIntParam(p, "fast", 12),
			getIntParam(p, "slow", 26),
			getIntParam(p, "signal", 9),
		)
	})
	RegisterIndicator("bollinger", func(p Params) Indicator {
		return NewBollingerBands(
			getIntParam(p, "period", 20),
			getFloatParam(p, "multiplier", 2.0),
		)
	})
	RegisterIndicator("atr", func(p Params) Indicator {
		return NewATR(getIntParam(p, "period", 14))
	})
}

func getIntParam(params Params, key string, defaultVal int) int {
	if v, ok := params[key]; ok {
		switch val := v.(type) {
		case int:
			return val
		case int64:
			return int(val)
		case float64:
			return int(val)
		}
	}
	return defaultVal
}

func getFloatParam(params Params, key string, defaultVal float64) float64 {
	if v, ok := params[key]; ok {
		switch val := v.(type) {
		case float64:
			return val
		case int:
			return float64(val)
		case int64:
			return float64(val)
		}
	}
	return defaultVal
}
