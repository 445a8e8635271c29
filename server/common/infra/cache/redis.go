package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ClientOptions is the subset of redis settings the server reads from env.
type ClientOptions struct {
	Addr     string
	Password string
	DB       int
}

func NewClient(opts ClientOptions) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
}

// Ping is run once at startup; a configured but unreachable redis is fatal.
func Ping(ctx context.Context, c redis.Cmdable) error {
	if err := c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
