package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"quantlab/config"
	"quantlab/logger"
	"quantlab/marketdata"
)

// dataStack K线数据源及其需要在退出时关闭的资源
type dataStack struct {
	source   marketdata.Source
	csvCache *marketdata.CSVCache
	closers  []io.Closer
}

func (d *dataStack) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			logger.Warn("⚠️ 关闭数据源失败: %v", err)
		}
	}
}

// buildDataStack 按配置组装缓存链：CSV 文件 -> SQLite（可选）-> Redis（可选），远端为 Binance（可选）
// 某一级缓存初始化失败只记录警告，不影响启动
func buildDataStack(ctx context.Context, cfg *config.Config) *dataStack {
	stack := &dataStack{}
	var caches []marketdata.Cache

	if err := os.MkdirAll(cfg.Data.CacheDir, 0755); err != nil {
		logger.Warn("⚠️ 创建K线缓存目录失败: %v", err)
	}
	stack.csvCache = marketdata.NewCSVCache(cfg.Data.CacheDir)
	caches = append(caches, stack.csvCache)
	logger.Info("✅ K线文件缓存: %s", cfg.Data.CacheDir)

	if cfg.Data.SQLitePath != "" {
		if dir := filepath.Dir(cfg.Data.SQLitePath); dir != "." {
			os.MkdirAll(dir, 0755)
		}
		store, err := marketdata.NewSQLiteStore(cfg.Data.SQLitePath)
		if err != nil {
			logger.Warn("⚠️ 初始化 SQLite K线存储失败: %v", err)
		} else {
			caches = append(caches, store)
			stack.closers = append(stack.closers, store)
			logger.Info("✅ SQLite K线存储: %s", cfg.Data.SQLitePath)
		}
	}

	if cfg.Data.Redis.Enabled {
		redisCache := marketdata.NewRedisCache(marketdata.RedisOptions{
			Addr:     cfg.Data.Redis.Addr,
			Password: cfg.Data.Redis.Password,
			DB:       cfg.Data.Redis.DB,
			Prefix:   cfg.Data.Redis.Prefix,
			TTL:      cfg.Data.Redis.TTL,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := redisCache.Ping(pingCtx)
		cancel()
		if err != nil {
			logger.Warn("⚠️ 连接 Redis 失败: %v，不使用 Redis 缓存", err)
			redisCache.Close()
		} else {
			caches = append(caches, redisCache)
			stack.closers = append(stack.closers, redisCache)
			logger.Info("✅ Redis K线缓存: %s", cfg.Data.Redis.Addr)
		}
	}

	var remote marketdata.Source
	if cfg.Data.Binance.Enabled {
		remote = marketdata.NewBinanceSource(marketdata.BinanceOptions{
			APIKey:    cfg.Data.Binance.APIKey,
			SecretKey: cfg.Data.Binance.SecretKey,
			Testnet:   cfg.Data.Binance.Testnet,
			RateLimit: cfg.Data.Binance.RateLimit,
		})
		logger.Info("✅ Binance K线数据源已启用 (testnet=%v)", cfg.Data.Binance.Testnet)
	} else {
		logger.Info("ℹ️ 未启用远端数据源，只能使用缓存或请求中直接传入的K线")
	}

	stack.source = marketdata.NewCachedSource(remote, cfg.Data.StaleAfter, caches...)
	return stack
}

// startCacheCleanup 每天凌晨 2 点清理过期的 CSV 缓存
func startCacheCleanup(ctx context.Context, cache *marketdata.CSVCache, maxAge time.Duration, loc *time.Location) {
	if maxAge <= 0 {
		return
	}

	clean := func() {
		logger.Info("🧹 开始清理K线缓存...")
		removed, err := cache.CleanOlderThan(maxAge)
		if err != nil {
			logger.Warn("⚠️ 清理K线缓存失败: %v", err)
			return
		}
		logger.Info("✅ 已清理 %d 个过期K线缓存", removed)
	}

	go func() {
		now := time.Now().In(loc)
		next := time.Date(now.Year(), now.Month(), now.Day(), 2, 0, 0, 0, loc)
		if !next.After(now) {
			next = next.Add(24 * time.Hour)
		}

		timer := time.NewTimer(next.Sub(now))
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		clean()

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				clean()
			}
		}
	}()
}
