package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"quantlab/backtest"
	"quantlab/strategy"
)

// Config 回测服务配置
type Config struct {
	// 引擎参数（默认值与引擎常量一致）
	Engine EngineConfig `yaml:"engine" json:"engine"`

	// 行情数据
	Data DataConfig `yaml:"data" json:"data"`

	// 回测历史数据库
	Database DatabaseConfig `yaml:"database" json:"database"`

	Web struct {
		Enabled        bool    `yaml:"enabled" json:"enabled"`
		Host           string  `yaml:"host" json:"host"`
		Port           int     `yaml:"port" json:"port"`
		RateLimit      float64 `yaml:"rate_limit" json:"rate_limit"` // 每秒请求数，0 表示不限流
		Burst          int     `yaml:"burst" json:"burst"`
		LogAllRequests bool    `yaml:"log_all_requests" json:"log_all_requests"` // false 时只记录 4xx/5xx
	} `yaml:"web" json:"web"`

	System struct {
		LogLevel string `yaml:"log_level" json:"log_level"`
		Timezone string `yaml:"timezone" json:"timezone"`
	} `yaml:"system" json:"system"`

	Batch struct {
		Workers int `yaml:"workers" json:"workers"` // 0 表示使用 CPU 核数
	} `yaml:"batch" json:"batch"`

	Metrics struct {
		CollectInterval int `yaml:"collect_interval" json:"collect_interval"` // 秒
	} `yaml:"metrics" json:"metrics"`
}

// DatabaseConfig 回测历史数据库配置
type DatabaseConfig struct {
	Type            string `yaml:"type" json:"type"` // sqlite, postgres（postgresql 视为同义）, mysql
	DSN             string `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime" json:"conn_max_lifetime"` // 秒
	LogLevel        string `yaml:"log_level" json:"log_level"`                 // silent, error, warn, info
}

// EngineConfig 回测引擎参数
type EngineConfig struct {
	WarmupSteps  int     `yaml:"warmup_steps" json:"warmup_steps"`
	MinOrderCash float64 `yaml:"min_order_cash" json:"min_order_cash"`
	InvestRatio  float64 `yaml:"invest_ratio" json:"invest_ratio"`
}

// DataConfig 行情数据配置
type DataConfig struct {
	CacheDir   string        `yaml:"cache_dir" json:"cache_dir"`
	SQLitePath string        `yaml:"sqlite_path" json:"sqlite_path"` // 为空时不启用 SQLite K线存储
	StaleAfter time.Duration `yaml:"stale_after" json:"stale_after"` // 缓存超过该时长视为过期，0 表示永不过期

	// CSV 缓存文件保留时长，超过后由每日清理任务删除，0 表示不清理
	CacheMaxAge time.Duration `yaml:"cache_max_age" json:"cache_max_age"`
	// 回测报告目录，为空时不生成报告
	ReportDir string `yaml:"report_dir" json:"report_dir"`

	Redis struct {
		Enabled  bool          `yaml:"enabled" json:"enabled"`
		Addr     string        `yaml:"addr" json:"addr"`
		Password string        `yaml:"password" json:"-"`
		DB       int           `yaml:"db" json:"db"`
		Prefix   string        `yaml:"prefix" json:"prefix"`
		TTL      time.Duration `yaml:"ttl" json:"ttl"`
	} `yaml:"redis" json:"redis"`

	Binance struct {
		Enabled   bool    `yaml:"enabled" json:"enabled"`
		APIKey    string  `yaml:"api_key" json:"-"`
		SecretKey string  `yaml:"secret_key" json:"-"`
		Testnet   bool    `yaml:"testnet" json:"testnet"`
		RateLimit float64 `yaml:"rate_limit" json:"rate_limit"` // 每秒请求数
	} `yaml:"binance" json:"binance"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	return LoadConfigFromBytes(data)
}

// LoadConfigFromBytes 从字节数组加载配置（用于测试）
func LoadConfigFromBytes(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return cfg, nil
}

// SaveConfig 保存配置到文件
func SaveConfig(cfg *Config, configPath string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("配置验证失败: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}

	return nil
}

// DefaultConfig 默认配置（配置文件不存在时使用）
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Web.Enabled = true
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return cfg
}

// Location 解析配置的时区，失败时返回本地时区
func (c *Config) Location() *time.Location {
	if c.System.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.System.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Validate 验证配置并填充默认值
func (c *Config) Validate() error {
	// 引擎参数
	if c.Engine.WarmupSteps < 0 {
		return fmt.Errorf("engine.warmup_steps 不能为负数")
	}
	if c.Engine.WarmupSteps == 0 {
		c.Engine.WarmupSteps = strategy.DefaultWarmupSteps
	}
	if c.Engine.MinOrderCash < 0 {
		return fmt.Errorf("engine.min_order_cash 不能为负数")
	}
	if c.Engine.MinOrderCash == 0 {
		c.Engine.MinOrderCash = backtest.DefaultMinOrderCash
	}
	if c.Engine.InvestRatio < 0 || c.Engine.InvestRatio > 1 {
		return fmt.Errorf("engine.invest_ratio 必须在 (0, 1] 之间")
	}
	if c.Engine.InvestRatio == 0 {
		c.Engine.InvestRatio = backtest.DefaultInvestRatio
	}

	// 行情数据
	if c.Data.CacheDir == "" {
		c.Data.CacheDir = "./data/candles"
	}
	if c.Data.StaleAfter < 0 {
		return fmt.Errorf("data.stale_after 不能为负数")
	}
	if c.Data.CacheMaxAge < 0 {
		return fmt.Errorf("data.cache_max_age 不能为负数")
	}
	if c.Data.Redis.Addr == "" {
		c.Data.Redis.Addr = "localhost:6379"
	}
	if c.Data.Redis.Prefix == "" {
		c.Data.Redis.Prefix = "quantlab:candles:"
	}
	if c.Data.Redis.TTL <= 0 {
		c.Data.Redis.TTL = 24 * time.Hour
	}
	if c.Data.Binance.RateLimit <= 0 {
		c.Data.Binance.RateLimit = 10
	}

	// 数据库
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	c.Database.Type = strings.ToLower(c.Database.Type)
	if c.Database.Type == "postgresql" {
		c.Database.Type = "postgres"
	}
	switch c.Database.Type {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("不支持的数据库类型: %s", c.Database.Type)
	}
	if c.Database.DSN == "" {
		if c.Database.Type != "sqlite" {
			return fmt.Errorf("database.dsn 不能为空（类型 %s）", c.Database.Type)
		}
		c.Database.DSN = "./data/quantlab.db"
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime <= 0 {
		c.Database.ConnMaxLifetime = 3600
	}
	if c.Database.LogLevel == "" {
		c.Database.LogLevel = "error"
	}

	// Web
	if c.Web.Host == "" {
		c.Web.Host = "0.0.0.0"
	}
	if c.Web.Port == 0 {
		c.Web.Port = 28888
	}
	if c.Web.Port < 0 || c.Web.Port > 65535 {
		return fmt.Errorf("web.port 无效: %d", c.Web.Port)
	}
	if c.Web.RateLimit < 0 {
		return fmt.Errorf("web.rate_limit 不能为负数")
	}
	if c.Web.RateLimit > 0 && c.Web.Burst <= 0 {
		c.Web.Burst = int(c.Web.RateLimit) * 2
		if c.Web.Burst < 1 {
			c.Web.Burst = 1
		}
	}

	// 系统
	if c.System.LogLevel == "" {
		c.System.LogLevel = "INFO"
	}
	c.System.LogLevel = strings.ToUpper(c.System.LogLevel)
	if c.System.Timezone != "" {
		if _, err := time.LoadLocation(c.System.Timezone); err != nil {
			return fmt.Errorf("system.timezone 无效: %w", err)
		}
	}

	if c.Batch.Workers < 0 {
		return fmt.Errorf("batch.workers 不能为负数")
	}

	if c.Metrics.CollectInterval <= 0 {
		c.Metrics.CollectInterval = 15
	}

	return nil
}
