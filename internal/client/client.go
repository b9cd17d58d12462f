// Package client keeps a local tree in sync with a server: it applies the
// server's snapshot and events locally and pushes local events upstream.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/openmined/treesync/internal/session"
	"github.com/openmined/treesync/internal/syncmsg"
	"github.com/openmined/treesync/internal/watchstate"
	"golang.org/x/sync/errgroup"
)

const (
	reconnectDelay    = 1 * time.Second
	maxReconnectDelay = 8 * time.Second
)

var (
	ErrInvalidHost  = errors.New("client: invalid server host")
	ErrServerClosed = errors.New("client: server closed the connection")
)

type Config struct {
	Host string
	Port uint16
	// Reconnect keeps the client dialing after the connection drops.
	Reconnect bool
}

func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(int(c.Port)))
}

// ValidateHost accepts an IP literal other than the unspecified address, or
// a host name.
func ValidateHost(host string) error {
	host = strings.TrimSpace(host)
	if host == "" {
		return fmt.Errorf("%w: empty", ErrInvalidHost)
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsUnspecified() {
			return fmt.Errorf("%w: %s is unspecified", ErrInvalidHost, host)
		}
		return nil
	}
	if strings.ContainsAny(host, " /:") {
		return fmt.Errorf("%w: %q", ErrInvalidHost, host)
	}
	return nil
}

type Client struct {
	config   *Config
	state    *watchstate.WatchState
	received atomic.Uint64
}

func New(config *Config, state *watchstate.WatchState) (*Client, error) {
	if err := ValidateHost(config.Host); err != nil {
		return nil, err
	}
	if config.Port == 0 {
		return nil, fmt.Errorf("client: invalid port 0")
	}
	return &Client{
		config: config,
		state:  state,
	}, nil
}

// Start runs until ctx is done. Without Reconnect it returns after the first
// connection ends: nil if the server closed it cleanly, the error otherwise.
func (c *Client) Start(ctx context.Context) error {
	slog.Info("client start", "server", c.config.Addr(), "root", c.state.Root())
	defer slog.Info("client stop")

	delay := reconnectDelay
	for attempt := 1; ; attempt++ {
		connected, err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}

		if !c.config.Reconnect {
			if errors.Is(err, ErrServerClosed) {
				return nil
			}
			return err
		}

		if connected {
			delay = reconnectDelay
			attempt = 1
		}
		wait := withJitter(delay, rand.Float64())
		slog.Warn("client disconnected, reconnecting", "error", err, "attempt", attempt, "delay", wait)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
		delay = nextDelay(delay)
	}
}

// runOnce serves one connection. connected reports whether the dial succeeded.
func (c *Client) runOnce(ctx context.Context) (connected bool, err error) {
	conn, err := session.Dial(ctx, c.config.Addr())
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", c.config.Addr(), err)
	}
	defer conn.Close()

	slog.Info("client connected", "server", conn.RemoteAddr(), "conn", conn.Id)

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if err := conn.ReadLoop(egCtx, c.handleMessage); err != nil {
			return err
		}
		if egCtx.Err() != nil {
			return nil
		}
		return ErrServerClosed
	})

	eg.Go(func() error {
		return c.state.Run(egCtx, func(msg *syncmsg.Message) error {
			slog.Info("client send", "msgId", msg.Id, "type", msg.Type, "paths", msg.Paths())
			return conn.WriteMessage(msg)
		})
	})

	err = eg.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return true, err
}

// Received counts the messages read from the server across connections.
func (c *Client) Received() uint64 {
	return c.received.Load()
}

func (c *Client) handleMessage(msg *syncmsg.Message) {
	c.received.Add(1)
	slog.Info("client received", "msgId", msg.Id, "type", msg.Type, "paths", len(msg.Paths()))
	if err := c.state.HandleMessage(msg, false); err != nil {
		slog.Warn("client apply failed", "msgId", msg.Id, "type", msg.Type, "error", err)
	}
}

func nextDelay(delay time.Duration) time.Duration {
	return min(delay*2, maxReconnectDelay)
}

// withJitter scales delay by a factor in [0.75, 1.25) picked by r in [0, 1).
func withJitter(delay time.Duration, r float64) time.Duration {
	return time.Duration(float64(delay) * (0.75 + r*0.5))
}
