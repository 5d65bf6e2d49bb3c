package redis

import (
	"context"
	"fmt"

	backend "github.com/redis/go-redis/v9"
)

const (
	// DefaultPrefix namespaces configuration records and locks.
	DefaultPrefix = "wabuilder:"
	// SessionPrefix namespaces session data.
	SessionPrefix = "fpw:"
)

// Connect parses a redis:// URL and checks the server is reachable.
func Connect(ctx context.Context, url string) (*backend.Client, error) {
	opts, err := backend.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := backend.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}
