package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quantlab/config"
	"quantlab/database"
	"quantlab/logger"
	"quantlab/metrics"
	"quantlab/web"
)

// Version 版本号
var Version = "1.0.0"

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "-version" || os.Args[1] == "--version") {
		fmt.Printf("QuantLab Backtester\n")
		fmt.Printf("Version: %s\n", Version)
		os.Exit(0)
	}

	// 解析调试参数（-debug / --debug），其余第一个参数为配置文件路径
	debugMode := false
	configPath := "config.yaml"
	for _, arg := range os.Args[1:] {
		switch arg {
		case "-debug", "--debug":
			debugMode = true
		default:
			configPath = arg
		}
	}

	logger.Info("🚀 QuantLab 回测服务启动...")
	logger.Info("📦 版本号: %s", Version)

	var cfg *config.Config
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		logger.Info("ℹ️ 配置文件不存在，使用默认配置并写入 %s", configPath)
		cfg = config.DefaultConfig()
		if err := config.SaveConfig(cfg, configPath); err != nil {
			logger.Warn("⚠️ 保存默认配置失败: %v，将继续运行", err)
		}
	} else {
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			logger.Fatalf("❌ 加载配置失败: %v", err)
		}
	}

	logger.SetLocation(cfg.Location())
	if debugMode {
		cfg.System.LogLevel = "DEBUG"
		cfg.Web.LogAllRequests = true
	}
	logLevel := logger.ParseLogLevel(cfg.System.LogLevel)
	logger.SetLevel(logLevel)
	logger.Info("日志级别设置为: %s", logLevel.String())
	logger.Info("✅ 配置加载成功: 预热步数=%d, 最小下单资金=%.0f, 投入比例=%.2f",
		cfg.Engine.WarmupSteps, cfg.Engine.MinOrderCash, cfg.Engine.InvestRatio)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 进程监控指标
	collector := metrics.NewSystemMetricsCollector(time.Duration(cfg.Metrics.CollectInterval) * time.Second)
	collector.Start()

	// K线数据
	logger.Info("🔧 正在初始化K线数据源...")
	data := buildDataStack(ctx, cfg)
	startCacheCleanup(ctx, data.csvCache, cfg.Data.CacheMaxAge, cfg.Location())

	// 回测历史
	logger.Info("🔧 正在初始化回测历史数据库...")
	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		logger.Warn("⚠️ 初始化数据库失败: %v (将继续运行，但不保存回测历史)", err)
	} else {
		logger.Info("✅ 回测历史数据库: %s", cfg.Database.Type)
	}

	hotReloader := config.NewHotReloader(cfg)

	webServer := web.NewWebServer(cfg, web.Deps{
		Source:    data.source,
		CSVCache:  data.csvCache,
		DB:        db,
		ReportDir: cfg.Data.ReportDir,
		Reloader:  hotReloader,
	})
	if webServer != nil {
		if err := webServer.Start(ctx); err != nil {
			logger.Fatalf("❌ 启动Web服务器失败: %v", err)
		}
	} else {
		logger.Info("ℹ️ Web 服务未启用")
	}

	// 配置热更新：引擎参数、批量并发数、日志级别、访问日志开关
	hotReloader.RegisterCallback(func(oldConfig, newConfig *config.Config, changes []config.ConfigChange) error {
		if newConfig.System.LogLevel != oldConfig.System.LogLevel && !debugMode {
			level := logger.ParseLogLevel(newConfig.System.LogLevel)
			logger.SetLevel(level)
			logger.Info("🔄 日志级别已更新为: %s", level.String())
		}
		if webServer != nil {
			webServer.ApplyConfig(newConfig)
		}
		for _, change := range changes {
			logger.Info("🔄 配置已更新: %s = %v", change.Path, change.NewValue)
		}
		return nil
	})

	watcher, err := config.NewConfigWatcher(configPath, hotReloader)
	if err != nil {
		logger.Warn("⚠️ 创建配置监视器失败: %v，配置热更新不可用", err)
	} else if err := watcher.Start(ctx); err != nil {
		logger.Warn("⚠️ 启动配置监视器失败: %v，配置热更新不可用", err)
		watcher = nil
	} else {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case diff := <-watcher.Updates():
					if diff == nil || !diff.RequiresRestart {
						continue
					}
					for _, change := range diff.Changes {
						if change.RequiresRestart {
							logger.Warn("⚠️ 配置 %s 已修改，需要重启才能生效", change.Path)
						}
					}
				case err := <-watcher.Errors():
					logger.Warn("⚠️ 配置重新加载失败: %v", err)
				}
			}
		}()
	}

	logger.Info("✅ 系统初始化完成，程序正在运行中...")
	logger.Info("💡 按 Ctrl+C 退出程序")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("🛑 收到退出信号，开始优雅关闭...")

	if watcher != nil {
		watcher.Stop()
	}
	webServer.Stop()
	cancel()
	collector.Stop()

	data.Close()
	if db != nil {
		if err := db.Close(); err != nil {
			logger.Warn("⚠️ 关闭数据库失败: %v", err)
		}
	}

	logger.Info("✅ 程序已安全退出")
	logger.Close()
}
