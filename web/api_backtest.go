package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"quantlab/backtest"
	"quantlab/database"
	"quantlab/indicators"
	"quantlab/logger"
	"quantlab/marketdata"
	"quantlab/strategy"
)

const maxBatchStrategies = 100

// CandleInput K线来源：直接传入 candles，或者按 symbol/interval/时间范围从数据源获取
type CandleInput struct {
	Symbol    string              `json:"symbol"`
	Interval  string              `json:"interval"`
	StartTime time.Time           `json:"start_time"`
	EndTime   time.Time           `json:"end_time"`
	Candles   []indicators.Candle `json:"candles,omitempty"`
}

// BacktestRequest 回测请求
type BacktestRequest struct {
	CandleInput
	Strategy       strategy.Spec     `json:"strategy"`
	InitialCapital float64           `json:"initial_capital"`
	Options        *backtest.Options `json:"options,omitempty"` // 覆盖引擎参数，未设置的字段使用服务端配置
}

// BatchBacktestRequest 批量回测请求，所有策略共用同一段K线
type BatchBacktestRequest struct {
	CandleInput
	Strategies     []strategy.Spec   `json:"strategies"`
	InitialCapital float64           `json:"initial_capital"`
	Options        *backtest.Options `json:"options,omitempty"`
}

// BacktestResponse 回测响应
type BacktestResponse struct {
	Success    bool                     `json:"success"`
	Message    string                   `json:"message"`
	Result     *backtest.BacktestResult `json:"result,omitempty"`
	ReportPath string                   `json:"report_path,omitempty"`
}

func fail(c *gin.Context, status int, format string, args ...interface{}) {
	c.JSON(status, gin.H{
		"success": false,
		"message": fmt.Sprintf(format, args...),
	})
}

// loadCandles 获取K线，返回失败时应答的 HTTP 状态码
func (ws *WebServer) loadCandles(ctx context.Context, in CandleInput) ([]indicators.Candle, int, error) {
	if len(in.Candles) > 0 {
		return in.Candles, http.StatusOK, nil
	}

	q := marketdata.Query{Symbol: in.Symbol, Interval: in.Interval, Start: in.StartTime, End: in.EndTime}
	if err := q.Validate(); err != nil {
		return nil, http.StatusBadRequest, err
	}
	if ws.deps.Source == nil {
		return nil, http.StatusServiceUnavailable, marketdata.ErrNoSource
	}

	candles, err := ws.deps.Source.Candles(ctx, q)
	if err != nil {
		if errors.Is(err, marketdata.ErrNoSource) {
			return nil, http.StatusServiceUnavailable, err
		}
		return nil, http.StatusBadGateway, fmt.Errorf("获取历史数据失败: %w", err)
	}
	return candles, http.StatusOK, nil
}

// mergeOptions 请求里的非零字段覆盖服务端配置
func (ws *WebServer) mergeOptions(override *backtest.Options) (backtest.Options, int) {
	opts, workers := ws.engineOptions()
	if override == nil {
		return opts, workers
	}
	if override.WarmupSteps > 0 {
		opts.WarmupSteps = override.WarmupSteps
	}
	if override.MinOrderCash > 0 {
		opts.MinOrderCash = override.MinOrderCash
	}
	if override.InvestRatio > 0 {
		opts.InvestRatio = override.InvestRatio
	}
	return opts, workers
}

// runBacktest 运行回测
func (ws *WebServer) runBacktest(c *gin.Context) {
	var req BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "请求参数错误: %v", err)
		return
	}

	cfg, err := strategy.FromSpec(req.Strategy)
	if err != nil {
		fail(c, http.StatusBadRequest, "策略配置错误: %v", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		fail(c, http.StatusBadRequest, "策略配置错误: %v", err)
		return
	}
	if req.InitialCapital <= 0 {
		fail(c, http.StatusBadRequest, "初始资金必须大于 0")
		return
	}
	if req.Options != nil {
		if err := req.Options.Validate(); err != nil {
			fail(c, http.StatusBadRequest, "引擎参数错误: %v", err)
			return
		}
	}

	candles, status, err := ws.loadCandles(c.Request.Context(), req.CandleInput)
	if err != nil {
		fail(c, status, "%v", err)
		return
	}
	if err := marketdata.CheckCandles(candles); err != nil {
		fail(c, http.StatusBadRequest, "K线数据不可用: %v", err)
		return
	}

	logger.Info("📊 开始回测: 策略=%s, 交易对=%s, %d 根K线", cfg.Name(), req.Symbol, len(candles))
	ws.hub.Broadcast(EventBacktestStarted, gin.H{
		"symbol":   req.Symbol,
		"strategy": cfg.Name(),
		"candles":  len(candles),
	})

	opts, _ := ws.mergeOptions(req.Options)
	result, err := backtest.RunJob(backtest.Job{
		Symbol:         req.Symbol,
		Strategy:       cfg,
		InitialCapital: req.InitialCapital,
		Candles:        candles,
		Options:        opts,
	})
	if err != nil {
		logger.Error("❌ 回测失败: %v", err)
		ws.hub.Broadcast(EventBacktestFailed, gin.H{"symbol": req.Symbol, "strategy": cfg.Name(), "error": err.Error()})
		fail(c, http.StatusInternalServerError, "回测失败: %v", err)
		return
	}

	ws.saveRun(c.Request.Context(), result, len(candles))
	reportPath := ws.writeReport(result)
	ws.broadcastFinished(result)

	c.JSON(http.StatusOK, BacktestResponse{
		Success:    true,
		Message:    "回测完成",
		Result:     result,
		ReportPath: reportPath,
	})
}

// runBatchBacktest 同一段K线上并行回测多组策略参数
func (ws *WebServer) runBatchBacktest(c *gin.Context) {
	var req BatchBacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "请求参数错误: %v", err)
		return
	}
	if len(req.Strategies) == 0 {
		fail(c, http.StatusBadRequest, "策略列表不能为空")
		return
	}
	if len(req.Strategies) > maxBatchStrategies {
		fail(c, http.StatusBadRequest, "一次最多回测 %d 组策略", maxBatchStrategies)
		return
	}
	if req.InitialCapital <= 0 {
		fail(c, http.StatusBadRequest, "初始资金必须大于 0")
		return
	}
	if req.Options != nil {
		if err := req.Options.Validate(); err != nil {
			fail(c, http.StatusBadRequest, "引擎参数错误: %v", err)
			return
		}
	}

	configs := make([]strategy.Config, 0, len(req.Strategies))
	for i, spec := range req.Strategies {
		cfg, err := strategy.FromSpec(spec)
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			fail(c, http.StatusBadRequest, "第 %d 组策略配置错误: %v", i+1, err)
			return
		}
		configs = append(configs, cfg)
	}

	candles, status, err := ws.loadCandles(c.Request.Context(), req.CandleInput)
	if err != nil {
		fail(c, status, "%v", err)
		return
	}
	if err := marketdata.CheckCandles(candles); err != nil {
		fail(c, http.StatusBadRequest, "K线数据不可用: %v", err)
		return
	}

	opts, workers := ws.mergeOptions(req.Options)
	jobs := make([]backtest.Job, len(configs))
	for i, cfg := range configs {
		jobs[i] = backtest.Job{
			Symbol:         req.Symbol,
			Strategy:       cfg,
			InitialCapital: req.InitialCapital,
			Candles:        candles,
			Options:        opts,
		}
	}

	ws.hub.Broadcast(EventBacktestStarted, gin.H{
		"symbol":     req.Symbol,
		"strategies": len(jobs),
		"candles":    len(candles),
	})

	results, err := backtest.RunBatch(c.Request.Context(), jobs, workers)
	if err != nil {
		logger.Error("❌ 批量回测失败: %v", err)
		ws.hub.Broadcast(EventBacktestFailed, gin.H{"symbol": req.Symbol, "error": err.Error()})
		fail(c, http.StatusInternalServerError, "批量回测失败: %v", err)
		return
	}

	for _, result := range results {
		ws.saveRun(c.Request.Context(), result, len(candles))
		ws.broadcastFinished(result)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("完成 %d 组回测", len(results)),
		"results": results,
	})
}

func (ws *WebServer) broadcastFinished(result *backtest.BacktestResult) {
	ws.hub.Broadcast(EventBacktestFinished, gin.H{
		"id":       result.ID,
		"symbol":   result.Symbol,
		"strategy": result.Strategy,
		"summary":  result.Summary,
	})
}

// saveRun 保存回测历史，失败只记录日志
func (ws *WebServer) saveRun(ctx context.Context, result *backtest.BacktestResult, candleCount int) {
	if ws.deps.DB == nil {
		return
	}
	run, err := database.FromResult(result, candleCount)
	if err == nil {
		err = ws.deps.DB.SaveRun(ctx, run)
	}
	if err != nil {
		logger.Warn("⚠️ 保存回测历史失败: %v", err)
	}
}

func (ws *WebServer) writeReport(result *backtest.BacktestResult) string {
	if ws.deps.ReportDir == "" {
		return ""
	}
	reportPath, err := backtest.GenerateReport(result, ws.deps.ReportDir)
	if err != nil {
		logger.Warn("⚠️ 生成报告失败: %v", err)
		return ""
	}
	if _, err := backtest.SaveEquityCurveCSV(result, ws.deps.ReportDir); err != nil {
		logger.Warn("⚠️ 保存权益曲线失败: %v", err)
	}
	logger.Info("📄 报告已生成: %s", reportPath)
	return reportPath
}

// listHistory 查询回测历史
func (ws *WebServer) listHistory(c *gin.Context) {
	if ws.deps.DB == nil {
		fail(c, http.StatusServiceUnavailable, "未配置回测历史数据库")
		return
	}

	filter := &database.RunFilter{
		Symbol:       c.Query("symbol"),
		StrategyType: c.Query("strategy"),
		Limit:        50,
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 || limit > 500 {
			fail(c, http.StatusBadRequest, "limit 必须在 1-500 之间")
			return
		}
		filter.Limit = limit
	}
	if v := c.Query("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			fail(c, http.StatusBadRequest, "offset 不能为负数")
			return
		}
		filter.Offset = offset
	}

	runs, err := ws.deps.DB.ListRuns(c.Request.Context(), filter)
	if err != nil {
		fail(c, http.StatusInternalServerError, "查询回测历史失败: %v", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"runs":    runs,
	})
}

// getHistory 获取一次回测的完整结果
func (ws *WebServer) getHistory(c *gin.Context) {
	if ws.deps.DB == nil {
		fail(c, http.StatusServiceUnavailable, "未配置回测历史数据库")
		return
	}

	run, err := ws.deps.DB.GetRun(c.Request.Context(), c.Param("id"))
	if errors.Is(err, database.ErrRunNotFound) {
		fail(c, http.StatusNotFound, "回测记录不存在")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, "读取回测历史失败: %v", err)
		return
	}

	result, err := run.ToResult()
	if err != nil {
		fail(c, http.StatusInternalServerError, "%v", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"candle_count": run.CandleCount,
		"created_at":   run.CreatedAt,
		"result":       result,
	})
}

// deleteHistory 删除回测记录
func (ws *WebServer) deleteHistory(c *gin.Context) {
	if ws.deps.DB == nil {
		fail(c, http.StatusServiceUnavailable, "未配置回测历史数据库")
		return
	}

	err := ws.deps.DB.DeleteRun(c.Request.Context(), c.Param("id"))
	if errors.Is(err, database.ErrRunNotFound) {
		fail(c, http.StatusNotFound, "回测记录不存在")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, "删除回测记录失败: %v", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "回测记录已删除",
	})
}

// getCacheStats 获取缓存统计
func (ws *WebServer) getCacheStats(c *gin.Context) {
	if ws.deps.CSVCache == nil {
		fail(c, http.StatusServiceUnavailable, "未启用K线文件缓存")
		return
	}

	stats, err := ws.deps.CSVCache.Stats()
	if err != nil {
		fail(c, http.StatusInternalServerError, "获取缓存统计失败: %v", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats":   stats,
	})
}

// listCache 列出所有缓存
func (ws *WebServer) listCache(c *gin.Context) {
	if ws.deps.CSVCache == nil {
		fail(c, http.StatusServiceUnavailable, "未启用K线文件缓存")
		return
	}

	caches, err := ws.deps.CSVCache.List()
	if err != nil {
		fail(c, http.StatusInternalServerError, "列出缓存失败: %v", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"caches":  caches,
	})
}

// deleteCache 删除指定缓存
func (ws *WebServer) deleteCache(c *gin.Context) {
	if ws.deps.CSVCache == nil {
		fail(c, http.StatusServiceUnavailable, "未启用K线文件缓存")
		return
	}

	if err := ws.deps.CSVCache.Delete(c.Param("key")); err != nil {
		fail(c, http.StatusInternalServerError, "删除缓存失败: %v", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "缓存已删除",
	})
}
