package backtest

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"quantlab/indicators"
	"quantlab/logger"
	"quantlab/metrics"
	"quantlab/strategy"
)

// Job 一个独立的回测任务
type Job struct {
	Symbol         string
	Strategy       strategy.Config
	InitialCapital float64
	Candles        []indicators.Candle
	Options        Options
}

// RunJob 运行单个任务：分配运行 ID 并记录监控指标
func RunJob(job Job) (*BacktestResult, error) {
	kind := "unknown"
	if job.Strategy != nil {
		kind = string(job.Strategy.Kind())
	}

	start := time.Now()
	bt := NewBacktester(job.Symbol, job.Candles, job.Strategy, job.InitialCapital)
	bt.SetOptions(job.Options)

	result, err := bt.Run()
	if err != nil {
		metrics.RecordBacktestFailure(kind)
		return nil, err
	}

	result.ID = uuid.NewString()
	metrics.RecordBacktest(kind, time.Since(start), len(job.Candles), result.TradeCount, result.TotalReturnPct)
	return result, nil
}

// RunBatch 并行运行多个回测任务，每个任务使用自己的账本，结果按任务顺序返回
// ctx 取消后尚未开始的任务不再执行，已开始的任务会跑完
func RunBatch(ctx context.Context, jobs []Job, workers int) ([]*BacktestResult, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]*BacktestResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	logger.Info("📦 批量回测: %d 个任务, 并发 %d", len(jobs), workers)

	for i := range jobs {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			result, err := RunJob(jobs[i])
			if err != nil {
				return fmt.Errorf("第 %d 个回测任务失败: %w", i+1, err)
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
