package config

// Redis backs the slot locks, the rate limiter and the response cache.
// When it cannot be reached at startup the server falls back to in-process
// locks and runs without rate limiting and caching.

import (
	"context"
	"crypto/tls"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection settings for Redis.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	TLS        bool
	LockPrefix string
}

// LoadRedisConfig reads REDIS_HOST/REDIS_PORT (or REDIS_ADDR), REDIS_PASSWORD,
// REDIS_DB, REDIS_TLS and LOCK_PREFIX.  An empty Addr disables Redis.
func LoadRedisConfig() RedisConfig {
	addr := os.Getenv("REDIS_ADDR")
	if host, port := os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT"); host != "" && port != "" {
		addr = host + ":" + port
	}
	return RedisConfig{
		Addr:       addr,
		Password:   os.Getenv("REDIS_PASSWORD"),
		DB:         envInt("REDIS_DB", 0),
		TLS:        envBool("REDIS_TLS", false),
		LockPrefix: getenv("LOCK_PREFIX", "tr:lock"),
	}
}

// NewRedisClient connects and pings Redis with a short timeout.  It returns
// nil when Redis is not configured or not reachable.
func NewRedisClient(rc RedisConfig) *redis.Client {
	if strings.TrimSpace(rc.Addr) == "" {
		return nil
	}
	var tlsConf *tls.Config
	if rc.TLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      rc.Addr,
		Password:  rc.Password,
		DB:        rc.DB,
		TLSConfig: tlsConf,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}
