package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"Bt1QDJ/config"
	"Bt1QDJ/logger"
)

// RedisClient 全局 Redis 客户端
var RedisClient *redis.Client

// InitRedis 初始化 Redis 连接
func InitRedis(cfg *config.Config) error {
	RedisClient = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := RedisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis 连接成功",
		logger.String("addr", fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort)),
		logger.Int("db", cfg.RedisDB))
	return nil
}

// CloseRedis 关闭 Redis 连接
func CloseRedis() {
	if RedisClient != nil {
		if err := RedisClient.Close(); err != nil {
			logger.Warn("关闭 Redis 连接失败", logger.ErrorField(err))
		}
	}
}

// TestRedis 测试 Redis 连接和基本操作
func TestRedis() error {
	if RedisClient == nil {
		return fmt.Errorf("redis client not initialized")
	}

	ctx := context.Background()

	if err := RedisClient.Set(ctx, "1qdj:test_key", "Redis connection successful!", 5*time.Minute).Err(); err != nil {
		return fmt.Errorf("failed to set redis key: %w", err)
	}

	val, err := RedisClient.Get(ctx, "1qdj:test_key").Result()
	if err != nil {
		return fmt.Errorf("failed to get redis key: %w", err)
	}
	if val != "Redis connection successful!" {
		return fmt.Errorf("unexpected value from redis: got %s", val)
	}

	if _, err := RedisClient.Del(ctx, "1qdj:test_key").Result(); err != nil {
		return fmt.Errorf("failed to delete redis key: %w", err)
	}

	return nil
}
