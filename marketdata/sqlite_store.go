package marketdata

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"quantlab/indicators"
)

// SQLiteStore 把K线按查询键存入 SQLite，适合长期保留大量历史数据
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore 打开（或创建）K线数据库
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	// WAL 模式下读写互不阻塞
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createCandleTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("创建表失败: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func createCandleTables(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS candle_series (
			series_key TEXT PRIMARY KEY,
			candle_count INTEGER NOT NULL,
			stored_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS candles (
			series_key TEXT NOT NULL,
			open_time BIGINT NOT NULL,
			open DECIMAL(20,8),
			high DECIMAL(20,8),
			low DECIMAL(20,8),
			close DECIMAL(20,8),
			volume DECIMAL(28,8),
			PRIMARY KEY (series_key, open_time)
		);`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Name 缓存名称
func (s *SQLiteStore) Name() string {
	return "sqlite"
}

// Load 按时间顺序读取K线
func (s *SQLiteStore) Load(ctx context.Context, key string) ([]indicators.Candle, time.Time, error) {
	var storedAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT stored_at FROM candle_series WHERE series_key = ?`, key).Scan(&storedAt)
	if err == sql.ErrNoRows {
		return nil, time.Time{}, ErrCacheMiss
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("查询K线序列失败: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT open_time, open, high, low, close, volume
		FROM candles WHERE series_key = ? ORDER BY open_time ASC`, key)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("查询K线失败: %w", err)
	}
	defer rows.Close()

	candles := make([]indicators.Candle, 0)
	for rows.Next() {
		var c indicators.Candle
		if err := rows.Scan(&c.Time, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, time.Time{}, fmt.Errorf("读取K线失败: %w", err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, err
	}

	return candles, storedAt, nil
}

// Save 在一个事务中替换整个序列
func (s *SQLiteStore) Save(ctx context.Context, key string, candles []indicators.Candle) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM candles WHERE series_key = ?`, key); err != nil {
		return fmt.Errorf("清理旧K线失败: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (series_key, open_time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("准备插入语句失败: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, key, c.Time, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			return fmt.Errorf("写入K线失败: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO candle_series (series_key, candle_count, stored_at) VALUES (?, ?, ?)
		ON CONFLICT(series_key) DO UPDATE SET candle_count = excluded.candle_count, stored_at = excluded.stored_at`,
		key, len(candles), time.Now().UTC()); err != nil {
		return fmt.Errorf("更新K线序列失败: %w", err)
	}

	return tx.Commit()
}

// Close 关闭数据库
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
