package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// 回测指标
	backtestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantlab_backtest_total",
			Help: "Total number of backtest runs",
		},
		[]string{"strategy", "status"},
	)

	backtestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quantlab_backtest_duration_seconds",
			Help:    "Backtest run duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0},
		},
		[]string{"strategy"},
	)

	backtestCandles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantlab_backtest_candles_total",
			Help: "Total number of candles replayed",
		},
		[]string{"strategy"},
	)

	backtestTrades = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantlab_backtest_trades_total",
			Help: "Total number of simulated trades",
		},
		[]string{"strategy"},
	)

	backtestReturn = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quantlab_backtest_last_return_pct",
			Help: "Total return percentage of the most recent run",
		},
		[]string{"strategy"},
	)

	// 行情数据指标
	candleCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantlab_candle_cache_lookups_total",
			Help: "Candle cache lookups by backend and result (hit, miss, stale)",
		},
		[]string{"backend", "result"},
	)

	candleFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quantlab_candle_fetch_duration_seconds",
			Help:    "Remote candle fetch duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		},
		[]string{"source", "status"},
	)

	// Web 指标
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantlab_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quantlab_http_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)

	websocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quantlab_websocket_clients",
			Help: "Number of connected WebSocket clients",
		},
	)

	// 系统指标
	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quantlab_goroutine_count",
			Help: "Number of goroutines",
		},
	)

	memoryAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quantlab_memory_alloc_bytes",
			Help: "Bytes of allocated heap objects",
		},
	)

	processCPUPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quantlab_process_cpu_percent",
			Help: "Process CPU usage percentage",
		},
	)

	processRSSBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quantlab_process_rss_bytes",
			Help: "Process resident set size in bytes",
		},
	)

	gcPauseDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quantlab_gc_pause_duration_seconds",
			Help:    "GC pause duration in seconds",
			Buckets: []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		},
	)
)

// PrometheusMetrics Prometheus 指标收集器
type PrometheusMetrics struct{}

// NewPrometheusMetrics 创建 Prometheus 指标收集器
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{}
}

// 回测相关指标记录

// RecordBacktest 记录一次成功的回测
func (pm *PrometheusMetrics) RecordBacktest(strategy string, duration time.Duration, candles, trades int, returnPct float64) {
	backtestTotal.WithLabelValues(strategy, "success").Inc()
	backtestDuration.WithLabelValues(strategy).Observe(duration.Seconds())
	backtestCandles.WithLabelValues(strategy).Add(float64(candles))
	backtestTrades.WithLabelValues(strategy).Add(float64(trades))
	backtestReturn.WithLabelValues(strategy).Set(returnPct)
}

// RecordBacktestFailure 记录一次失败的回测
func (pm *PrometheusMetrics) RecordBacktestFailure(strategy string) {
	backtestTotal.WithLabelValues(strategy, "failure").Inc()
}

// 行情数据相关指标记录

// RecordCacheLookup 记录缓存查询结果：hit / miss / stale
func (pm *PrometheusMetrics) RecordCacheLookup(backend, result string) {
	candleCacheLookups.WithLabelValues(backend, result).Inc()
}

// RecordFetch 记录一次远端K线下载
func (pm *PrometheusMetrics) RecordFetch(source, status string, duration time.Duration) {
	candleFetchDuration.WithLabelValues(source, status).Observe(duration.Seconds())
}

// Web 相关指标记录

// RecordHTTPRequest 记录 HTTP 请求
func (pm *PrometheusMetrics) RecordHTTPRequest(method, path, status string) {
	httpRequests.WithLabelValues(method, path, status).Inc()
}

// RecordRateLimited 记录被限流的请求
func (pm *PrometheusMetrics) RecordRateLimited() {
	httpRateLimited.Inc()
}

// SetWebSocketClients 设置 WebSocket 连接数
func (pm *PrometheusMetrics) SetWebSocketClients(count int) {
	websocketClients.Set(float64(count))
}

// 系统相关指标记录

// SetGoroutineCount 设置 Goroutine 数量
func (pm *PrometheusMetrics) SetGoroutineCount(count int) {
	goroutineCount.Set(float64(count))
}

// SetMemoryAlloc 设置堆内存分配
func (pm *PrometheusMetrics) SetMemoryAlloc(bytes uint64) {
	memoryAllocBytes.Set(float64(bytes))
}

// SetProcessStats 设置进程 CPU 与 RSS
func (pm *PrometheusMetrics) SetProcessStats(cpuPercent float64, rssBytes uint64) {
	processCPUPercent.Set(cpuPercent)
	processRSSBytes.Set(float64(rssBytes))
}

// RecordGCPause 记录 GC 停顿
func (pm *PrometheusMetrics) RecordGCPause(duration time.Duration) {
	gcPauseDuration.Observe(duration.Seconds())
}

// 全局实例
var globalPrometheusMetrics *PrometheusMetrics

// GetPrometheusMetrics 获取全局 Prometheus 指标收集器
func GetPrometheusMetrics() *PrometheusMetrics {
	once.Do(func() {
		globalPrometheusMetrics = NewPrometheusMetrics()
	})
	return globalPrometheusMetrics
}
