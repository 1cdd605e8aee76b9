package ratelimit

import (
	"strings"
	"time"
)

// Limiter decides whether a caller identified by key may proceed.
type Limiter interface {
	Allow(key string) bool
}

// Config selects the limiter implementation. A non-empty RedisAddr gives the
// distributed fixed-window limiter; otherwise an in-process token bucket is used.
type Config struct {
	RedisAddr     string
	RedisPassword string
	Prefix        string
	Limit         int
	Window        time.Duration
}

// New builds a limiter from cfg.
func New(cfg Config) (Limiter, error) {
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		return NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.Prefix, cfg.Limit, cfg.Window)
	}
	return NewLocalLimiter(cfg.Limit, cfg.Window)
}

func normalizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "unknown"
	}
	return key
}
