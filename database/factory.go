package database

import (
	"encoding/json"
	"fmt"
	"time"

	"quantlab/backtest"
	"quantlab/config"
	"quantlab/strategy"
)

// NewDatabase 根据配置创建数据库实例
func NewDatabase(cfg config.DatabaseConfig) (Database, error) {
	dbConfig := &DBConfig{
		Type:            cfg.Type,
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetime) * time.Second,
		LogLevel:        cfg.LogLevel,
	}

	switch cfg.Type {
	case "sqlite", "postgres", "postgresql", "mysql":
		db, err := NewGormDatabase(dbConfig)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}

// FromResult 把回测结果转换为可持久化的记录
func FromResult(result *backtest.BacktestResult, candleCount int) (*BacktestRun, error) {
	specJSON, err := json.Marshal(result.Spec)
	if err != nil {
		return nil, fmt.Errorf("序列化策略配置失败: %w", err)
	}
	metricsJSON, err := json.Marshal(result.Metrics)
	if err != nil {
		return nil, fmt.Errorf("序列化回测指标失败: %w", err)
	}
	equityJSON, err := json.Marshal(result.EquityHistory)
	if err != nil {
		return nil, fmt.Errorf("序列化权益曲线失败: %w", err)
	}

	run := &BacktestRun{
		ID:             result.ID,
		Symbol:         result.Symbol,
		StrategyType:   result.Spec.Type,
		StrategyName:   result.Strategy,
		StrategyConfig: string(specJSON),
		StartTime:      result.StartTime,
		EndTime:        result.EndTime,
		CandleCount:    candleCount,
		InitialCapital: result.InitialCapital,
		FinalCapital:   result.FinalCapital,
		TotalReturnPct: result.TotalReturnPct,
		TradeCount:     result.TradeCount,
		WinRatePct:     result.WinRatePct,
		MetricsJSON:    string(metricsJSON),
		EquityJSON:     string(equityJSON),
		Trades:         make([]RunTrade, 0, len(result.Trades)),
	}
	for _, t := range result.Trades {
		run.Trades = append(run.Trades, RunTrade{
			Type:      string(t.Type),
			Price:     t.Price,
			Amount:    t.Amount,
			Timestamp: t.Timestamp,
			Reason:    t.Reason,
			Profit:    t.Profit,
		})
	}
	return run, nil
}

// ToResult 从持久化记录还原回测结果
// ListRuns 返回的记录不含成交明细和权益曲线，还原后对应字段为空
func (r *BacktestRun) ToResult() (*backtest.BacktestResult, error) {
	result := &backtest.BacktestResult{
		ID:        r.ID,
		Symbol:    r.Symbol,
		Strategy:  r.StrategyName,
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
		Summary: backtest.Summary{
			InitialCapital: r.InitialCapital,
			FinalCapital:   r.FinalCapital,
			TotalReturnPct: r.TotalReturnPct,
			TradeCount:     r.TradeCount,
			WinRatePct:     r.WinRatePct,
		},
		Trades:        make([]backtest.Trade, 0, len(r.Trades)),
		EquityHistory: []backtest.EquityPoint{},
	}

	if r.StrategyConfig != "" {
		var spec strategy.Spec
		if err := json.Unmarshal([]byte(r.StrategyConfig), &spec); err != nil {
			return nil, fmt.Errorf("解析策略配置失败: %w", err)
		}
		result.Spec = spec
	}
	if r.MetricsJSON != "" {
		if err := json.Unmarshal([]byte(r.MetricsJSON), &result.Metrics); err != nil {
			return nil, fmt.Errorf("解析回测指标失败: %w", err)
		}
	}
	if r.EquityJSON != "" {
		if err := json.Unmarshal([]byte(r.EquityJSON), &result.EquityHistory); err != nil {
			return nil, fmt.Errorf("解析权益曲线失败: %w", err)
		}
	}

	for _, t := range r.Trades {
		result.Trades = append(result.Trades, backtest.Trade{
			Type:      backtest.TradeType(t.Type),
			Price:     t.Price,
			Amount:    t.Amount,
			Timestamp: t.Timestamp,
			Reason:    t.Reason,
			Profit:    t.Profit,
		})
	}
	return result, nil
}
