package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// The cache is optional for the API, so a slow redis must fail fast instead
// of holding up requests that can fall back to postgres.
const (
	dialTimeout = 2 * time.Second
	ioTimeout   = time.Second
	pingTimeout = 5 * time.Second
)

// New connects to redis and pings it. addr is host:port or a redis:// URL
// carrying credentials and a database number.
func New(ctx context.Context, addr string) (*redis.Client, error) {
	opts, err := parseAddr(addr)
	if err != nil {
		return nil, err
	}
	opts.DialTimeout = dialTimeout
	opts.ReadTimeout = ioTimeout
	opts.WriteTimeout = ioTimeout
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("platform/cache: ping %s: %w", opts.Addr, err)
	}
	return client, nil
}

func parseAddr(addr string) (*redis.Options, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("platform/cache: redis address required")
	}
	if !strings.Contains(addr, "://") {
		return &redis.Options{Addr: addr}, nil
	}
	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, fmt.Errorf("platform/cache: parse redis url: %w", err)
	}
	return opts, nil
}
