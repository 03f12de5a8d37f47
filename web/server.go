package web

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"quantlab/backtest"
	"quantlab/config"
	"quantlab/database"
	"quantlab/logger"
	"quantlab/marketdata"
)

// Deps Web 服务依赖，除 Source 外都可以为 nil
type Deps struct {
	Source    marketdata.Source    // K线数据源；为 nil 时只接受请求里直接传入的K线
	CSVCache  *marketdata.CSVCache // 缓存管理接口使用
	DB        database.Database    // 回测历史；为 nil 时不保存
	ReportDir string               // 非空时为每次回测生成 Markdown 报告
	Reloader  *config.HotReloader  // 配置查询接口使用
}

// WebServer Web服务器
type WebServer struct {
	server *http.Server
	engine *gin.Engine
	hub    *WebSocketHub
	deps   Deps
	addr   string

	mu      sync.RWMutex
	options backtest.Options
	workers int
	logAll  atomic.Bool
}

// NewWebServer 创建Web服务器，web.enabled=false 时返回 nil
func NewWebServer(cfg *config.Config, deps Deps) *WebServer {
	if !cfg.Web.Enabled {
		return nil
	}

	if logger.GetLevel() == logger.DEBUG {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ws := &WebServer{
		hub:  NewWebSocketHub(),
		deps: deps,
		addr: fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port),
	}
	ws.ApplyConfig(cfg)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(GinLoggerMiddleware(ws.logAll.Load))
	r.Use(RateLimitMiddleware(cfg.Web.RateLimit, cfg.Web.Burst))
	ws.setupRoutes(r)
	ws.engine = r

	ws.server = &http.Server{
		Addr:         ws.addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // 长区间回测需要先下载K线
		IdleTimeout:  60 * time.Second,
	}

	go ws.hub.Run()
	return ws
}

// setupRoutes 设置路由
func (ws *WebServer) setupRoutes(r *gin.Engine) {
	r.GET("/healthz", ws.healthz)

	// Prometheus metrics 端点
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	pprofGroup := r.Group("/debug/pprof")
	{
		pprofGroup.GET("/", gin.WrapF(pprof.Index))
		pprofGroup.GET("/profile", gin.WrapF(pprof.Profile))
		pprofGroup.GET("/heap", gin.WrapH(pprof.Handler("heap")))
		pprofGroup.GET("/goroutine", gin.WrapH(pprof.Handler("goroutine")))
	}

	api := r.Group("/api")
	{
		backtestAPI := api.Group("/backtest")
		{
			backtestAPI.POST("", ws.runBacktest)
			backtestAPI.POST("/batch", ws.runBatchBacktest)
			backtestAPI.GET("/history", ws.listHistory)
			backtestAPI.GET("/history/:id", ws.getHistory)
			backtestAPI.DELETE("/history/:id", ws.deleteHistory)
			backtestAPI.GET("/cache/stats", ws.getCacheStats)
			backtestAPI.GET("/cache/list", ws.listCache)
			backtestAPI.DELETE("/cache/:key", ws.deleteCache)
		}

		api.POST("/indicators", ws.computeIndicators)
		api.GET("/indicators", listIndicators)
		api.GET("/system/stats", getSystemStats)

		api.GET("/config", ws.getConfigHandler)
		api.GET("/config/json", ws.getConfigJSONHandler)
		api.POST("/config/validate", ws.validateConfigHandler)
	}

	r.GET("/ws", ws.hub.handleWebSocket)
}

// ApplyConfig 应用可热更新的配置：引擎参数、批量并发数、访问日志开关
func (ws *WebServer) ApplyConfig(cfg *config.Config) {
	ws.mu.Lock()
	ws.options = backtest.Options{
		WarmupSteps:  cfg.Engine.WarmupSteps,
		MinOrderCash: cfg.Engine.MinOrderCash,
		InvestRatio:  cfg.Engine.InvestRatio,
	}
	ws.workers = cfg.Batch.Workers
	ws.mu.Unlock()
	ws.logAll.Store(cfg.Web.LogAllRequests)
}

func (ws *WebServer) engineOptions() (backtest.Options, int) {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.options, ws.workers
}

// Handler 返回路由（测试使用）
func (ws *WebServer) Handler() http.Handler {
	return ws.engine
}

// Hub 返回 WebSocket 中心
func (ws *WebServer) Hub() *WebSocketHub {
	return ws.hub
}

// Start 启动Web服务器，ctx 取消后自动关闭
func (ws *WebServer) Start(ctx context.Context) error {
	if ws == nil {
		return nil
	}

	if err := logger.InitWebLogger(); err != nil {
		logger.Warn("⚠️ 打开 Web 访问日志失败: %v", err)
	}
	logger.SetHook(ws.hub.BroadcastLog)

	go func() {
		logger.Info("🌐 Web服务器启动在 http://%s", ws.addr)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("❌ Web服务器启动失败: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		ws.Stop()
	}()

	return nil
}

// Stop 停止Web服务器
func (ws *WebServer) Stop() {
	if ws == nil || ws.server == nil {
		return
	}

	logger.SetHook(nil)
	ws.hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(ctx); err != nil {
		logger.Error("❌ Web服务器关闭失败: %v", err)
		return
	}
	logger.Info("✅ Web服务器已关闭")
}
