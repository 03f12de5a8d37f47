package marketdata

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"

	"quantlab/indicators"
	"quantlab/logger"
	"quantlab/metrics"
)

// binancePageSize Binance 单次最多返回 1500 根，取 1000 与官方默认一致
const binancePageSize = 1000

// klineFetcher 拉取一页K线，startMs/endMs 为毫秒时间戳
type klineFetcher func(ctx context.Context, symbol, interval string, startMs, endMs int64, limit int) ([]indicators.Candle, error)

// BinanceSource 通过 Binance 合约K线接口分页下载历史数据
type BinanceSource struct {
	fetch    klineFetcher
	limiter  *rate.Limiter
	pageSize int
}

// BinanceOptions Binance 数据源参数
type BinanceOptions struct {
	APIKey    string
	SecretKey string
	Testnet   bool
	RateLimit float64 // 每秒请求数
}

// NewBinanceSource 创建 Binance 数据源（K线接口不需要签名，密钥可为空）
func NewBinanceSource(opts BinanceOptions) *BinanceSource {
	futures.UseTestnet = opts.Testnet
	client := futures.NewClient(opts.APIKey, opts.SecretKey)

	fetch := func(ctx context.Context, symbol, interval string, startMs, endMs int64, limit int) ([]indicators.Candle, error) {
		klines, err := client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(startMs).
			EndTime(endMs).
			Limit(limit).
			Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("获取历史K线失败: %w", err)
		}

		candles := make([]indicators.Candle, 0, len(klines))
		for _, k := range klines {
			candle, err := parseKline(k)
			if err != nil {
				return nil, err
			}
			candles = append(candles, candle)
		}
		return candles, nil
	}

	return newBinanceSource(fetch, opts.RateLimit)
}

func newBinanceSource(fetch klineFetcher, rps float64) *BinanceSource {
	if rps <= 0 {
		rps = 10
	}
	return &BinanceSource{
		fetch:    fetch,
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
		pageSize: binancePageSize,
	}
}

// parseKline 字符串价格转换为浮点
func parseKline(k *futures.Kline) (indicators.Candle, error) {
	fields := []string{k.Open, k.High, k.Low, k.Close, k.Volume}
	values := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return indicators.Candle{}, fmt.Errorf("解析K线 %d 失败: %w", k.OpenTime, err)
		}
		values[i] = v
	}
	return indicators.Candle{
		Time:   k.OpenTime,
		Open:   values[0],
		High:   values[1],
		Low:    values[2],
		Close:  values[3],
		Volume: values[4],
	}, nil
}

// Name 数据源名称
func (b *BinanceSource) Name() string {
	return "binance"
}

// Candles 分页下载 [Start, End] 范围内的K线
func (b *BinanceSource) Candles(ctx context.Context, q Query) ([]indicators.Candle, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	step, _ := IntervalDuration(q.Interval)
	symbol := strings.ToUpper(q.Symbol)

	started := time.Now()
	all := make([]indicators.Candle, 0)
	cursor := q.Start.UnixMilli()
	endMs := q.End.UnixMilli()
	page := 0

	for cursor <= endMs {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		page++

		candles, err := b.fetch(ctx, symbol, q.Interval, cursor, endMs, b.pageSize)
		if err != nil {
			metrics.GetPrometheusMetrics().RecordFetch(b.Name(), "error", time.Since(started))
			return nil, fmt.Errorf("获取第 %d 批数据失败: %w", page, err)
		}
		if len(candles) == 0 {
			break
		}

		for _, c := range candles {
			// 接口偶尔返回与上一页重叠的K线
			if len(all) > 0 && c.Time <= all[len(all)-1].Time {
				continue
			}
			all = append(all, c)
		}

		last := candles[len(candles)-1].Time
		next := last + step.Milliseconds()
		if next <= cursor {
			break
		}
		cursor = next

		if len(candles) < b.pageSize {
			break
		}
		logger.Debug("📊 下载进度: 第 %d 批, 已获取 %d 根K线", page, len(all))
	}

	metrics.GetPrometheusMetrics().RecordFetch(b.Name(), "success", time.Since(started))
	logger.Info("✅ 下载完成: %s %s 共 %d 根K线", symbol, q.Interval, len(all))
	return filterRange(all, q.Start, q.End), nil
}
