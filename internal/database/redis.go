package database

import (
	"context"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"
)

// InitRedis connects to Redis. It returns nil when Redis is unreachable;
// callers treat a nil client as "rate limiting and revocation disabled".
func InitRedis() *redis.Client {
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)

	addr := viper.GetString("REDIS_HOST") + ":" + viper.GetString("REDIS_PORT")
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: viper.GetString("REDIS_PASSWORD"),
		DB:       viper.GetInt("REDIS_DB"),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("[REDIS] Connection to %s failed, continuing without rate limiting and token revocation: %v", addr, err)
		rdb.Close()
		return nil
	}

	log.Printf("[REDIS] Connection established (%s)", addr)
	return rdb
}
