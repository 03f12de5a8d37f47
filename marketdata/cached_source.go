package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quantlab/indicators"
	"quantlab/logger"
	"quantlab/metrics"
)

// CachedSource 多级缓存 + 远端数据源
//
// 查询顺序：依次检查各级缓存，命中未过期的条目直接返回；否则从远端下载并写回所有缓存。
// 远端失败时，如果某级缓存里有过期条目，降级返回过期数据并记录 WARN。
type CachedSource struct {
	remote     Source
	caches     []Cache
	staleAfter time.Duration
	now        func() time.Time
}

// NewCachedSource 创建带缓存的数据源
// remote 可以为 nil（离线模式，只读缓存）；staleAfter 为 0 表示缓存永不过期
func NewCachedSource(remote Source, staleAfter time.Duration, caches ...Cache) *CachedSource {
	return &CachedSource{
		remote:     remote,
		caches:     caches,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Name 数据源名称
func (s *CachedSource) Name() string {
	if s.remote == nil {
		return "cache"
	}
	return "cached-" + s.remote.Name()
}

type staleEntry struct {
	cache    string
	candles  []indicators.Candle
	storedAt time.Time
}

// Candles 获取K线
func (s *CachedSource) Candles(ctx context.Context, q Query) ([]indicators.Candle, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	key := q.Key()
	pm := metrics.GetPrometheusMetrics()

	var stale *staleEntry
	for _, cache := range s.caches {
		candles, storedAt, err := cache.Load(ctx, key)
		if err != nil {
			if !errors.Is(err, ErrCacheMiss) {
				logger.Warn("⚠️ 读取 %s 缓存失败: %v", cache.Name(), err)
			}
			pm.RecordCacheLookup(cache.Name(), "miss")
			continue
		}

		if s.fresh(storedAt) {
			pm.RecordCacheLookup(cache.Name(), "hit")
			logger.Info("✅ 从 %s 缓存加载: %s (%d 根K线)", cache.Name(), key, len(candles))
			return candles, nil
		}

		pm.RecordCacheLookup(cache.Name(), "stale")
		if stale == nil || storedAt.After(stale.storedAt) {
			stale = &staleEntry{cache: cache.Name(), candles: candles, storedAt: storedAt}
		}
	}

	if s.remote == nil {
		if stale != nil {
			logger.Warn("⚠️ 未配置远端数据源, 使用 %s 中的过期缓存: %s", stale.cache, key)
			return stale.candles, nil
		}
		return nil, fmt.Errorf("%s: %w", key, ErrNoSource)
	}

	logger.Info("⬇️ 从 %s 下载: %s %s (%s 至 %s)", s.remote.Name(), q.Symbol, q.Interval,
		q.Start.Format("2006-01-02"), q.End.Format("2006-01-02"))

	candles, err := s.remote.Candles(ctx, q)
	if err != nil {
		if stale != nil {
			logger.Warn("⚠️ %s 下载失败 (%v), 降级使用 %s 中的过期缓存 (写入于 %s)",
				s.remote.Name(), err, stale.cache, stale.storedAt.Format(time.RFC3339))
			return stale.candles, nil
		}
		return nil, err
	}

	for _, cache := range s.caches {
		if err := cache.Save(ctx, key, candles); err != nil {
			logger.Warn("⚠️ %s 缓存保存失败: %v", cache.Name(), err)
			continue
		}
		logger.Debug("💾 已缓存到 %s: %s", cache.Name(), key)
	}

	return candles, nil
}

func (s *CachedSource) fresh(storedAt time.Time) bool {
	if s.staleAfter <= 0 {
		return true
	}
	return s.now().Sub(storedAt) <= s.staleAfter
}
