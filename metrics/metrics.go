package metrics

import (
	"sync"
	"time"
)

// Stats 进程内回测统计，供健康检查接口展示
type Stats struct {
	TotalRuns    int64         `json:"total_runs"`
	FailedRuns   int64         `json:"failed_runs"`
	TotalCandles int64         `json:"total_candles"`
	TotalTrades  int64         `json:"total_trades"`
	LastDuration time.Duration `json:"last_duration_ns"`
	LastUpdate   time.Time     `json:"last_update"`
}

// StatsCollector 统计收集器
type StatsCollector struct {
	mu    sync.RWMutex
	stats Stats
}

// NewStatsCollector 创建统计收集器
func NewStatsCollector() *StatsCollector {
	return &StatsCollector{}
}

func (sc *StatsCollector) recordRun(duration time.Duration, candles, trades int) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.stats.TotalRuns++
	sc.stats.TotalCandles += int64(candles)
	sc.stats.TotalTrades += int64(trades)
	sc.stats.LastDuration = duration
	sc.stats.LastUpdate = time.Now()
}

func (sc *StatsCollector) recordFailure() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.stats.TotalRuns++
	sc.stats.FailedRuns++
	sc.stats.LastUpdate = time.Now()
}

// Snapshot 返回统计副本
func (sc *StatsCollector) Snapshot() Stats {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.stats
}

var globalStats = NewStatsCollector()

// GetStats 获取全局统计
func GetStats() Stats {
	return globalStats.Snapshot()
}

// RecordBacktest 记录一次成功的回测（Prometheus + 进程内统计）
func RecordBacktest(strategy string, duration time.Duration, candles, trades int, returnPct float64) {
	GetPrometheusMetrics().RecordBacktest(strategy, duration, candles, trades, returnPct)
	globalStats.recordRun(duration, candles, trades)
}

// RecordBacktestFailure 记录一次失败的回测
func RecordBacktestFailure(strategy string) {
	GetPrometheusMetrics().RecordBacktestFailure(strategy)
	globalStats.recordFailure()
}
