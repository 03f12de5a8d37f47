package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quantlab/indicators"
)

// RedisOptions Redis 缓存参数
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// RedisCache 多个实例共享的K线缓存，条目到 TTL 后由 Redis 自动删除
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// redisEntry 缓存条目，写入时间随数据一起保存
type redisEntry struct {
	StoredAt time.Time           `json:"stored_at"`
	Candles  []indicators.Candle `json:"candles"`
}

// NewRedisCache 创建 Redis 缓存
func NewRedisCache(opts RedisOptions) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisCacheWithClient(client, opts.Prefix, opts.TTL)
}

// NewRedisCacheWithClient 使用已有客户端创建缓存
func NewRedisCacheWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "quantlab:candles:"
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

// Name 缓存名称
func (r *RedisCache) Name() string {
	return "redis"
}

// Ping 检查连接
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) key(key string) string {
	return r.prefix + key
}

// Load 读取缓存
func (r *RedisCache) Load(ctx context.Context, key string) ([]indicators.Candle, time.Time, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err == redis.Nil {
		return nil, time.Time{}, ErrCacheMiss
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("读取 Redis 缓存失败: %w", err)
	}

	entry, err := decodeRedisEntry(data)
	if err != nil {
		return nil, time.Time{}, err
	}
	return entry.Candles, entry.StoredAt, nil
}

// Save 写入缓存
func (r *RedisCache) Save(ctx context.Context, key string, candles []indicators.Candle) error {
	data, err := encodeRedisEntry(redisEntry{StoredAt: time.Now().UTC(), Candles: candles})
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(key), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("写入 Redis 缓存失败: %w", err)
	}
	return nil
}

// Close 关闭连接
func (r *RedisCache) Close() error {
	return r.client.Close()
}

func encodeRedisEntry(entry redisEntry) ([]byte, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("序列化K线失败: %w", err)
	}
	return data, nil
}

func decodeRedisEntry(data []byte) (redisEntry, error) {
	var entry redisEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return redisEntry{}, fmt.Errorf("解析 Redis 缓存失败: %w", err)
	}
	return entry, nil
}
