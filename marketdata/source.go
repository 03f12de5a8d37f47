// Package marketdata 负责获取回测所需的K线：远端数据源、多级缓存和输入检查。
// 回测引擎本身只接收已排好序的K线，不关心数据从哪里来。
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"quantlab/indicators"
)

// MinCandles 一次回测至少需要的K线数量（与全局预热步数一致）
const MinCandles = 20

var (
	// ErrInsufficientCandles K线数量不足
	ErrInsufficientCandles = errors.New("insufficient candles")
	// ErrUnorderedCandles K线时间不是严格递增
	ErrUnorderedCandles = errors.New("candles are not strictly ascending by time")
	// ErrInvalidPrice K线价格不是有限正数
	ErrInvalidPrice = errors.New("candle prices must be finite and positive")
	// ErrCacheMiss 缓存中没有该数据
	ErrCacheMiss = errors.New("cache miss")
	// ErrNoSource 没有可用的远端数据源
	ErrNoSource = errors.New("no remote candle source configured")
)

// Query 一次K线查询
type Query struct {
	Symbol   string    `json:"symbol"`
	Interval string    `json:"interval"` // 1m, 5m, 1h, 1d ...
	Start    time.Time `json:"start_time"`
	End      time.Time `json:"end_time"`
}

// Key 缓存键，格式: BTCUSDT_1h_20230101T000000_20230630T000000
func (q Query) Key() string {
	return fmt.Sprintf("%s_%s_%s_%s",
		strings.ToUpper(q.Symbol),
		q.Interval,
		q.Start.UTC().Format("20060102T150405"),
		q.End.UTC().Format("20060102T150405"),
	)
}

// Validate 检查查询参数
func (q Query) Validate() error {
	if q.Symbol == "" {
		return fmt.Errorf("交易对不能为空")
	}
	if _, err := IntervalDuration(q.Interval); err != nil {
		return err
	}
	if !q.End.After(q.Start) {
		return fmt.Errorf("结束时间必须晚于开始时间")
	}
	return nil
}

// Source K线数据源
type Source interface {
	Name() string
	Candles(ctx context.Context, q Query) ([]indicators.Candle, error)
}

// CheckCandles 检查回测输入：至少 MinCandles 根，时间严格递增，开高低收都是有限正数
// 引擎本身不校验价格，零价或负价会让权益变成 Inf/NaN，无法序列化
func CheckCandles(candles []indicators.Candle) error {
	if len(candles) < MinCandles {
		return fmt.Errorf("%w: 需要至少 %d 根, 实际 %d 根", ErrInsufficientCandles, MinCandles, len(candles))
	}
	for i := range candles {
		if i > 0 && candles[i].Time <= candles[i-1].Time {
			return fmt.Errorf("%w: 第 %d 根K线时间 %d 不晚于上一根 %d",
				ErrUnorderedCandles, i, candles[i].Time, candles[i-1].Time)
		}
		c := candles[i]
		for _, price := range [...]float64{c.Open, c.High, c.Low, c.Close} {
			if !validPrice(price) {
				return fmt.Errorf("%w: 第 %d 根K线价格 %v", ErrInvalidPrice, i, price)
			}
		}
	}
	return nil
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
}

// IntervalDuration K线周期对应的时长
func IntervalDuration(interval string) (time.Duration, error) {
	switch interval {
	case "1m":
		return time.Minute, nil
	case "3m":
		return 3 * time.Minute, nil
	case "5m":
		return 5 * time.Minute, nil
	case "15m":
		return 15 * time.Minute, nil
	case "30m":
		return 30 * time.Minute, nil
	case "1h":
		return time.Hour, nil
	case "2h":
		return 2 * time.Hour, nil
	case "4h":
		return 4 * time.Hour, nil
	case "6h":
		return 6 * time.Hour, nil
	case "8h":
		return 8 * time.Hour, nil
	case "12h":
		return 12 * time.Hour, nil
	case "1d":
		return 24 * time.Hour, nil
	case "3d":
		return 3 * 24 * time.Hour, nil
	case "1w":
		return 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("不支持的K线周期: %q", interval)
	}
}

// filterRange 保留 [start, end] 范围内的K线
func filterRange(candles []indicators.Candle, start, end time.Time) []indicators.Candle {
	startMs, endMs := start.UnixMilli(), end.UnixMilli()
	result := make([]indicators.Candle, 0, len(candles))
	for _, c := range candles {
		if c.Time < startMs || c.Time > endMs {
			continue
		}
		result = append(result, c)
	}
	return result
}
