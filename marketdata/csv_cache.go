package marketdata

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"quantlab/indicators"
)

// Cache K线缓存，Load 同时返回写入时间，用于判断是否过期
type Cache interface {
	Name() string
	Load(ctx context.Context, key string) ([]indicators.Candle, time.Time, error)
	Save(ctx context.Context, key string, candles []indicators.Candle) error
}

const cacheIndexFile = "cache_index.json"

// CacheInfo 缓存信息
type CacheInfo struct {
	Key     string    `json:"key"`
	Candles int       `json:"candles"`
	SizeMB  float64   `json:"size_mb"`
	Created time.Time `json:"created"`
}

// CacheStats 缓存统计
type CacheStats struct {
	FileCount int     `json:"file_count"`
	TotalSize int64   `json:"total_size"`
	SizeMB    float64 `json:"size_mb"`
}

// CSVCache 每个查询一个 CSV 文件，另有 JSON 索引记录写入时间
type CSVCache struct {
	dir string
	mu  sync.Mutex
}

// NewCSVCache 创建 CSV 缓存
func NewCSVCache(dir string) *CSVCache {
	return &CSVCache{dir: dir}
}

// Name 缓存名称
func (c *CSVCache) Name() string {
	return "csv"
}

func (c *CSVCache) path(key string) string {
	return filepath.Join(c.dir, key+".csv")
}

// Load 从 CSV 加载
func (c *CSVCache) Load(ctx context.Context, key string) ([]indicators.Candle, time.Time, error) {
	file, err := os.Open(c.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, time.Time{}, ErrCacheMiss
		}
		return nil, time.Time{}, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("读取缓存文件失败: %w", err)
	}
	if len(records) < 2 {
		return nil, time.Time{}, fmt.Errorf("缓存文件为空或格式错误")
	}

	// 跳过表头
	candles := make([]indicators.Candle, 0, len(records)-1)
	for i := 1; i < len(records); i++ {
		candle, err := parseCSVRecord(records[i])
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("解析第 %d 行失败: %w", i, err)
		}
		candles = append(candles, candle)
	}

	return candles, c.storedAt(key), nil
}

// storedAt 优先使用索引中的写入时间，索引缺失时使用文件修改时间
func (c *CSVCache) storedAt(key string) time.Time {
	c.mu.Lock()
	index, _ := c.readIndex()
	c.mu.Unlock()

	if entry, ok := index[key]; ok {
		return entry.Created
	}
	if info, err := os.Stat(c.path(key)); err == nil {
		return info.ModTime()
	}
	return time.Time{}
}

// parseCSVRecord 解析 CSV 记录: timestamp,open,high,low,close,volume
func parseCSVRecord(record []string) (indicators.Candle, error) {
	if len(record) != 6 {
		return indicators.Candle{}, fmt.Errorf("记录字段数量错误: 期望6个，实际%d个", len(record))
	}

	timestamp, err := strconv.ParseInt(record[0], 10, 64)
	if err != nil {
		return indicators.Candle{}, fmt.Errorf("解析 timestamp 失败: %w", err)
	}

	names := []string{"open", "high", "low", "close", "volume"}
	values := make([]float64, len(names))
	for i, name := range names {
		v, err := strconv.ParseFloat(record[i+1], 64)
		if err != nil {
			return indicators.Candle{}, fmt.Errorf("解析 %s 失败: %w", name, err)
		}
		values[i] = v
	}

	return indicators.Candle{
		Time:   timestamp,
		Open:   values[0],
		High:   values[1],
		Low:    values[2],
		Close:  values[3],
		Volume: values[4],
	}, nil
}

// Save 保存到 CSV 并更新索引
func (c *CSVCache) Save(ctx context.Context, key string, candles []indicators.Candle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("创建缓存目录失败: %w", err)
	}

	file, err := os.Create(c.path(key))
	if err != nil {
		return fmt.Errorf("创建缓存文件失败: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"timestamp", "open", "high", "low", "close", "volume"}); err != nil {
		return fmt.Errorf("写入表头失败: %w", err)
	}
	for _, candle := range candles {
		record := []string{
			strconv.FormatInt(candle.Time, 10),
			strconv.FormatFloat(candle.Open, 'f', -1, 64),
			strconv.FormatFloat(candle.High, 'f', -1, 64),
			strconv.FormatFloat(candle.Low, 'f', -1, 64),
			strconv.FormatFloat(candle.Close, 'f', -1, 64),
			strconv.FormatFloat(candle.Volume, 'f', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("写入数据失败: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("写入数据失败: %w", err)
	}

	return c.updateIndex(key, len(candles))
}

// readIndex 调用前必须持有 c.mu
func (c *CSVCache) readIndex() (map[string]CacheInfo, error) {
	index := make(map[string]CacheInfo)
	data, err := os.ReadFile(filepath.Join(c.dir, cacheIndexFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return index, nil
		}
		return nil, fmt.Errorf("读取缓存索引失败: %w", err)
	}
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("解析缓存索引失败: %w", err)
	}
	return index, nil
}

// writeIndex 调用前必须持有 c.mu
func (c *CSVCache) writeIndex(index map[string]CacheInfo) error {
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.dir, cacheIndexFile), data, 0644)
}

func (c *CSVCache) updateIndex(key string, count int) error {
	index, err := c.readIndex()
	if err != nil {
		// 索引损坏时重建
		index = make(map[string]CacheInfo)
	}

	var sizeMB float64
	if info, err := os.Stat(c.path(key)); err == nil {
		sizeMB = float64(info.Size()) / 1024 / 1024
	}

	index[key] = CacheInfo{
		Key:     key,
		Candles: count,
		SizeMB:  sizeMB,
		Created: time.Now(),
	}
	return c.writeIndex(index)
}

// List 列出所有缓存，按写入时间倒序
func (c *CSVCache) List() ([]CacheInfo, error) {
	c.mu.Lock()
	index, err := c.readIndex()
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	caches := make([]CacheInfo, 0, len(index))
	for _, entry := range index {
		caches = append(caches, entry)
	}
	sort.Slice(caches, func(i, j int) bool {
		return caches[i].Created.After(caches[j].Created)
	})
	return caches, nil
}

// Delete 删除指定缓存
func (c *CSVCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.Remove(c.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("删除缓存文件失败: %w", err)
	}

	index, err := c.readIndex()
	if err != nil {
		return err
	}
	if _, ok := index[key]; !ok {
		return nil
	}
	delete(index, key)
	return c.writeIndex(index)
}

// Stats 缓存统计
func (c *CSVCache) Stats() (CacheStats, error) {
	files, err := filepath.Glob(filepath.Join(c.dir, "*.csv"))
	if err != nil {
		return CacheStats{}, fmt.Errorf("读取缓存目录失败: %w", err)
	}

	var totalSize int64
	for _, file := range files {
		if info, err := os.Stat(file); err == nil {
			totalSize += info.Size()
		}
	}

	return CacheStats{
		FileCount: len(files),
		TotalSize: totalSize,
		SizeMB:    float64(totalSize) / 1024 / 1024,
	}, nil
}

// CleanOlderThan 删除写入时间早于 maxAge 之前的缓存，返回删除数量
func (c *CSVCache) CleanOlderThan(maxAge time.Duration) (int, error) {
	caches, err := c.List()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	deleted := 0
	for _, entry := range caches {
		if entry.Created.Before(cutoff) {
			if err := c.Delete(entry.Key); err != nil {
				return deleted, fmt.Errorf("删除过期缓存 %s 失败: %w", entry.Key, err)
			}
			deleted++
		}
	}
	return deleted, nil
}
