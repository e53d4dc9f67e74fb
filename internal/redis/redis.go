package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Client wraps the go-redis client so callers depend on this package
// for connection setup only.
type Client struct {
	*goredis.Client
}

type Options struct {
	Addr     string
	Password string
	DB       int
	// PingTimeout bounds the startup reachability check.
	PingTimeout time.Duration
}

// New connects and pings. An unreachable server is a startup error,
// not something to discover on the first sign-in.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 2 * time.Second
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", opts.Addr, err)
	}
	return &Client{Client: client}, nil
}
