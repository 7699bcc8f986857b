// Package redis provides the durable buffer tier: a managed connection and
// per-channel batched writes into capped streams and lists.
package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chipmonitor/ingest/internal/config"
	"github.com/chipmonitor/ingest/internal/event"
	"github.com/chipmonitor/ingest/internal/log"
)

// Client manages the Redis connection. A write failure marks the client
// disconnected and starts a bounded fixed-interval reconnect loop; once the
// attempt cap is hit the client stays disconnected until Reconnect is called.
type Client struct {
	rdb *redis.Client
	cfg *config.RedisConfig
	log *log.Logger

	mu           sync.Mutex
	connected    bool
	attempts     int
	reconnecting bool

	closeCh chan struct{}
	wg      sync.WaitGroup
}

// NewClient connects and verifies the connection with a ping.
func NewClient(cfg *config.RedisConfig, logger *log.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.PingTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: redis ping failed: %v", event.ErrConnection, err)
	}

	logger.Info("Redis connected: %s db=%d", cfg.Address, cfg.DB)

	return &Client{
		rdb:       rdb,
		cfg:       cfg,
		log:       logger,
		connected: true,
		closeCh:   make(chan struct{}),
	}, nil
}

// Connected reports whether the last known connection state is healthy.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Ping verifies the connection and updates the state.
func (c *Client) Ping(ctx context.Context) error {
	err := c.rdb.Ping(ctx).Err()
	c.mu.Lock()
	c.connected = err == nil
	if err == nil {
		c.attempts = 0
	}
	c.mu.Unlock()
	return err
}

// noteFailure marks the client disconnected and starts the background
// reconnect loop if one is not already running.
func (c *Client) noteFailure(err error) {
	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	start := !c.reconnecting
	if start {
		c.reconnecting = true
	}
	c.mu.Unlock()

	if wasConnected {
		c.log.Error("Redis connection lost: %v", err)
	}
	if start {
		c.wg.Add(1)
		go c.reconnectLoop()
	}
}

// reconnectLoop pings at a fixed interval until the connection recovers or
// the attempt cap is reached.
func (c *Client) reconnectLoop() {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
	}()

	ticker := time.NewTicker(c.cfg.ReconnectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closeCh:
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		if c.attempts >= c.cfg.MaxReconnectAttempts {
			c.mu.Unlock()
			c.log.Error("Redis reconnect attempts exhausted (%d), staying disconnected", c.cfg.MaxReconnectAttempts)
			return
		}
		c.attempts++
		attempt := c.attempts
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.PingTimeout)
		err := c.Ping(ctx)
		cancel()

		if err == nil {
			c.log.Info("Redis reconnected after %d attempt(s)", attempt)
			return
		}
		c.log.Warn("Redis reconnect attempt %d/%d failed: %v", attempt, c.cfg.MaxReconnectAttempts, err)
	}
}

// Reconnect resets the attempt counter and pings once, synchronously. It is
// the manual recovery path once the background loop has given up.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	c.attempts = 0
	c.mu.Unlock()
	return c.Ping(ctx)
}

// Info returns the server info block for diagnostics.
func (c *Client) Info(ctx context.Context, sections ...string) (string, error) {
	return c.rdb.Info(ctx, sections...).Result()
}

// Close stops the reconnect loop and closes the connection pool.
func (c *Client) Close() error {
	close(c.closeCh)
	c.wg.Wait()
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}
