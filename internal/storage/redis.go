package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"servicedoctor/internal/config"
	"servicedoctor/internal/events"
)

// redisKeyPrefix 每个服务一个有序集合，score 为事件时间戳（Unix 秒）
const redisKeyPrefix = "doctor:events:"

// RedisBackend Redis 存储后端（按服务分键的有序集合）
type RedisBackend struct {
	name   string
	client *redis.Client
}

// NewRedisBackend 创建 Redis 后端
func NewRedisBackend(name string, cfg config.RedisConfig) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisBackend{name: name, client: client}, nil
}

// Name 返回后端标识
func (s *RedisBackend) Name() string {
	return s.name
}

// Init 检查连通性
func (s *RedisBackend) Init(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return nil
}

// Close 关闭客户端
func (s *RedisBackend) Close() error {
	return s.client.Close()
}

// Write 持久化一条事件
// member 为事件的 JSON 序列化结果（含纳秒级时间戳，天然去重无碍）
func (s *RedisBackend) Write(ctx context.Context, ev events.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	err = s.client.ZAdd(ctx, redisKeyPrefix+ev.Service, redis.Z{
		Score:  float64(ev.Timestamp.Unix()),
		Member: payload,
	}).Err()
	if err != nil {
		return fmt.Errorf("写入 Redis 事件失败: %w", err)
	}

	return nil
}

// QueryRecent 查询某服务自 since 以来的事件（score 升序即时间升序）
func (s *RedisBackend) QueryRecent(ctx context.Context, service string, since time.Time) ([]events.Event, error) {
	members, err := s.client.ZRangeByScore(ctx, redisKeyPrefix+service, &redis.ZRangeBy{
		Min: strconv.FormatInt(since.Unix(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("查询 Redis 事件失败: %w", err)
	}

	out := make([]events.Event, 0, len(members))
	for _, m := range members {
		var ev events.Event
		if err := json.Unmarshal([]byte(m), &ev); err != nil {
			return nil, fmt.Errorf("反序列化 Redis 事件失败: %w", err)
		}
		out = append(out, ev)
	}

	return out, nil
}

// PruneOlderThan 删除所有服务键中早于 cutoff 的事件
// 通过 SCAN 遍历前缀键，避免 KEYS 阻塞
func (s *RedisBackend) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var (
		total  int64
		cursor uint64
		max    = "(" + strconv.FormatInt(cutoff.Unix(), 10)
	)

	for {
		keys, next, err := s.client.Scan(ctx, cursor, redisKeyPrefix+"*", 100).Result()
		if err != nil {
			return total, fmt.Errorf("扫描 Redis 事件键失败: %w", err)
		}

		for _, key := range keys {
			removed, err := s.client.ZRemRangeByScore(ctx, key, "-inf", max).Result()
			if err != nil {
				return total, fmt.Errorf("清理 Redis 事件失败 (key=%s): %w", key, err)
			}
			total += removed
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return total, nil
}
