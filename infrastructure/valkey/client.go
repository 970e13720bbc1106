package valkey

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
	valkeylib "github.com/valkey-io/valkey-go"
)

const (
	DefaultConnectTimeout = 5 * time.Second
	defaultConnectTries   = 3
)

type Config struct {
	Address        string
	Password       string
	DB             int
	KeyPrefix      string
	ConnectTimeout time.Duration
	// ConnectTries bounds the ping attempts made by NewClient. Zero means 3.
	ConnectTries uint
}

// Client wraps valkey-go with the application key prefix. Create it with NewClient
// and Close it on shutdown.
type Client struct {
	inner     valkeylib.Client
	keyPrefix string
}

// NewClient connects and pings the server, retrying with exponential backoff
// until ConnectTries is exhausted.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	opts := valkeylib.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
		Password:    cfg.Password,
	}

	timeout := cfg.ConnectTimeout
	if timeout == 0 {
		timeout = DefaultConnectTimeout
	}
	tries := cfg.ConnectTries
	if tries == 0 {
		tries = defaultConnectTries
	}

	connect := func() (valkeylib.Client, error) {
		inner, err := valkeylib.NewClient(opts)
		if err != nil {
			logrus.WithError(err).Warnf("[VALKEY] connection to %s failed, retrying", cfg.Address)
			return nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := inner.Do(pingCtx, inner.B().Ping().Build()).Error(); err != nil {
			inner.Close()
			logrus.WithError(err).Warnf("[VALKEY] ping to %s failed, retrying", cfg.Address)
			return nil, err
		}
		return inner, nil
	}

	inner, err := backoff.Retry(ctx, connect,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(tries),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey at %s: %w", cfg.Address, err)
	}

	prefix := cfg.KeyPrefix
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}

	return &Client{inner: inner, keyPrefix: prefix}, nil
}

func (c *Client) Inner() valkeylib.Client {
	return c.inner
}

func (c *Client) Close() {
	if c.inner != nil {
		c.inner.Close()
	}
}

// Key joins parts under the configured prefix: Key("ratelimit", "x") -> "azpub:ratelimit:x".
func (c *Client) Key(parts ...string) string {
	if len(parts) == 0 {
		return strings.TrimSuffix(c.keyPrefix, ":")
	}
	return c.keyPrefix + strings.Join(parts, ":")
}

func (c *Client) Ping(ctx context.Context) error {
	return c.inner.Do(ctx, c.inner.B().Ping().Build()).Error()
}

// Publish sends a message on a prefixed pub/sub channel.
func (c *Client) Publish(ctx context.Context, channel, message string) error {
	return c.inner.Do(ctx, c.inner.B().Publish().Channel(c.Key(channel)).Message(message).Build()).Error()
}

func IsNil(err error) bool {
	return valkeylib.IsValkeyNil(err)
}
