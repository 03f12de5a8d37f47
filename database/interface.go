package database

import (
	"context"
	"errors"
	"time"
)

// ErrRunNotFound 回测记录不存在
var ErrRunNotFound = errors.New("backtest run not found")

// Database 回测历史存储接口
type Database interface {
	// 回测记录
	SaveRun(ctx context.Context, run *BacktestRun) error
	GetRun(ctx context.Context, id string) (*BacktestRun, error)
	ListRuns(ctx context.Context, filter *RunFilter) ([]*BacktestRun, error)
	DeleteRun(ctx context.Context, id string) error

	// 健康检查
	Ping(ctx context.Context) error

	// 关闭连接
	Close() error
}

// 数据模型

// BacktestRun 一次回测的汇总结果
type BacktestRun struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	Symbol         string    `gorm:"index:idx_symbol_strategy;size:50" json:"symbol"`
	StrategyType   string    `gorm:"index:idx_symbol_strategy;size:50" json:"strategy_type"`
	StrategyName   string    `gorm:"size:100" json:"strategy_name"`
	StrategyConfig string    `gorm:"type:text" json:"strategy_config"` // JSON
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	CandleCount    int       `json:"candle_count"`

	InitialCapital float64 `json:"initial_capital"`
	FinalCapital   float64 `json:"final_capital"`
	TotalReturnPct float64 `json:"total_return_pct"`
	TradeCount     int     `json:"trade_count"`
	WinRatePct     float64 `json:"win_rate_pct"`

	MetricsJSON string `gorm:"type:text" json:"-"` // 扩展指标
	EquityJSON  string `gorm:"type:text" json:"-"` // 权益曲线

	Trades    []RunTrade `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE" json:"trades,omitempty"`
	CreatedAt time.Time  `gorm:"index" json:"created_at"`
}

// TableName 表名
func (BacktestRun) TableName() string {
	return "backtest_runs"
}

// RunTrade 回测中的一笔模拟成交
type RunTrade struct {
	ID        int64    `gorm:"primaryKey;autoIncrement" json:"-"`
	RunID     string   `gorm:"index:idx_run_seq;size:36" json:"-"`
	Seq       int      `gorm:"index:idx_run_seq" json:"-"`
	Type      string   `gorm:"size:10" json:"type"` // buy, sell
	Price     float64  `json:"price"`
	Amount    float64  `json:"amount"`
	Timestamp int64    `json:"timestamp"`
	Reason    string   `gorm:"size:255" json:"reason"`
	Profit    *float64 `json:"profit,omitempty"`
}

// TableName 表名
func (RunTrade) TableName() string {
	return "backtest_trades"
}

// RunFilter 回测记录查询条件
type RunFilter struct {
	Symbol       string
	StrategyType string
	StartTime    *time.Time // 按创建时间过滤
	EndTime      *time.Time
	Limit        int
	Offset       int
}
