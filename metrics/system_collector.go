package metrics

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// SystemMetricsCollector 系统指标采集器
type SystemMetricsCollector struct {
	pm       *PrometheusMetrics
	proc     *process.Process
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	lastGC   uint32
}

// NewSystemMetricsCollector 创建系统指标采集器
func NewSystemMetricsCollector(interval time.Duration) *SystemMetricsCollector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())

	// 获取不到进程句柄时只采集 Go 运行时指标
	proc, _ := process.NewProcess(int32(os.Getpid()))

	return &SystemMetricsCollector{
		pm:       GetPrometheusMetrics(),
		proc:     proc,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start 启动采集
func (smc *SystemMetricsCollector) Start() {
	go smc.collectLoop()
}

// Stop 停止采集
func (smc *SystemMetricsCollector) Stop() {
	if smc.cancel != nil {
		smc.cancel()
	}
}

func (smc *SystemMetricsCollector) collectLoop() {
	ticker := time.NewTicker(smc.interval)
	defer ticker.Stop()

	smc.collect()

	for {
		select {
		case <-smc.ctx.Done():
			return
		case <-ticker.C:
			smc.collect()
		}
	}
}

// collect 采集一次系统指标
func (smc *SystemMetricsCollector) collect() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	smc.pm.SetGoroutineCount(runtime.NumGoroutine())
	smc.pm.SetMemoryAlloc(m.Alloc)

	// PauseNs 是环形缓冲区，只记录上次采集之后新发生的 GC
	if m.NumGC > smc.lastGC {
		idx := (m.NumGC + 255) % 256
		if pauseNs := m.PauseNs[idx]; pauseNs > 0 {
			smc.pm.RecordGCPause(time.Duration(pauseNs))
		}
		smc.lastGC = m.NumGC
	}

	if smc.proc == nil {
		return
	}
	cpuPercent, err := smc.proc.CPUPercent()
	if err != nil {
		return
	}
	memInfo, err := smc.proc.MemoryInfo()
	if err != nil {
		return
	}
	smc.pm.SetProcessStats(cpuPercent, memInfo.RSS)
}
