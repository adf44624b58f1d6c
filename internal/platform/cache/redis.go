package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// Client bundles the Redis connection with the embedded server backing it,
// if any.
type Client struct {
	*redis.Client
	embedded *miniredis.Miniredis
}

// New connects to addr. An empty addr starts an in-process Redis so the
// dashboard runs without external services; its contents die with the
// process.
func New(ctx context.Context, addr string) (*Client, error) {
	var embedded *miniredis.Miniredis
	if addr == "" {
		srv, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("platform/cache: start embedded redis: %w", err)
		}
		embedded = srv
		addr = srv.Addr()
	}

	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		if embedded != nil {
			embedded.Close()
		}
		return nil, fmt.Errorf("platform/cache: ping: %w", err)
	}

	return &Client{Client: client, embedded: embedded}, nil
}

// Embedded reports whether the client talks to the in-process server.
func (c *Client) Embedded() bool {
	return c != nil && c.embedded != nil
}

// Close closes the connection and stops the embedded server.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	err := c.Client.Close()
	if c.embedded != nil {
		c.embedded.Close()
	}
	if err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}
