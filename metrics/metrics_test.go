package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordBacktest(t *testing.T) {
	before := GetStats()
	successBefore := testutil.ToFloat64(backtestTotal.WithLabelValues("test_kind", "success"))

	RecordBacktest("test_kind", 10*time.Millisecond, 45, 2, 18)
	RecordBacktestFailure("test_kind")

	if got := testutil.ToFloat64(backtestTotal.WithLabelValues("test_kind", "success")); got != successBefore+1 {
		t.Errorf("成功计数错误: %f", got)
	}
	if got := testutil.ToFloat64(backtestReturn.WithLabelValues("test_kind")); got != 18 {
		t.Errorf("最近收益率应为 18, 得到 %f", got)
	}

	after := GetStats()
	if after.TotalRuns != before.TotalRuns+2 || after.FailedRuns != before.FailedRuns+1 {
		t.Errorf("运行统计错误: %+v", after)
	}
	if after.TotalCandles != before.TotalCandles+45 || after.TotalTrades != before.TotalTrades+2 {
		t.Errorf("K线/交易统计错误: %+v", after)
	}
}

func TestSystemMetricsCollector(t *testing.T) {
	smc := NewSystemMetricsCollector(0)
	if smc.interval != 15*time.Second {
		t.Errorf("默认采集间隔应为 15s, 得到 %v", smc.interval)
	}
	smc.collect()
	smc.Stop()

	if testutil.ToFloat64(goroutineCount) <= 0 {
		t.Error("采集后 goroutine 数量应大于 0")
	}
}
