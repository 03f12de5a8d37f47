package web

import (
	"net/http"
	"runtime"

	"github.com/gin-gonic/gin"

	"quantlab/indicators"
	"quantlab/metrics"
)

// IndicatorRequest 指标计算请求
type IndicatorRequest struct {
	CandleInput
	Name   string            `json:"name" binding:"required"`
	Params indicators.Params `json:"params,omitempty"`
}

// computeIndicators 计算单个指标，返回与K线对齐的序列
func (ws *WebServer) computeIndicators(c *gin.Context) {
	var req IndicatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "请求参数错误: %v", err)
		return
	}

	candles, status, err := ws.loadCandles(c.Request.Context(), req.CandleInput)
	if err != nil {
		fail(c, status, "%v", err)
		return
	}
	if len(candles) == 0 {
		fail(c, http.StatusBadRequest, "K线数据为空")
		return
	}

	series, err := indicators.Compute(req.Name, req.Params, candles)
	if err != nil {
		fail(c, http.StatusBadRequest, "%v", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"name":    req.Name,
		"candles": len(candles),
		"series":  series,
	})
}

// listIndicators 列出可用指标
func listIndicators(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"indicators": indicators.ListIndicators(),
	})
}

// getSystemStats 进程内回测统计
func getSystemStats(c *gin.Context) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"stats":      metrics.GetStats(),
		"goroutines": runtime.NumGoroutine(),
		"alloc_mb":   float64(mem.Alloc) / 1024 / 1024,
	})
}

// healthz 健康检查，数据库不可用时返回 503
func (ws *WebServer) healthz(c *gin.Context) {
	status := http.StatusOK
	dbStatus := "disabled"
	if ws.deps.DB != nil {
		dbStatus = "ok"
		if err := ws.deps.DB.Ping(c.Request.Context()); err != nil {
			dbStatus = err.Error()
			status = http.StatusServiceUnavailable
		}
	}

	source := "none"
	if ws.deps.Source != nil {
		source = ws.deps.Source.Name()
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}

	c.JSON(status, gin.H{
		"status":            overall,
		"database":          dbStatus,
		"source":            source,
		"websocket_clients": ws.hub.ClientCount(),
		"stats":             metrics.GetStats(),
	})
}
