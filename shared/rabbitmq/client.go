package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	// ErrNotConnected is returned when the broker connection is down
	ErrNotConnected = errors.New("not connected to RabbitMQ")

	// ErrNotConfirmed is returned when the broker nacks a publish or the
	// channel closes before confirming it
	ErrNotConfirmed = errors.New("publish not confirmed by RabbitMQ")
)

// Config holds RabbitMQ connection configuration
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	VHost              string
	RetryAttempts      int
	RetryInterval      time.Duration
	Heartbeat          time.Duration
	ConnectionTimeout  time.Duration
	ReconnectMaxDelay  time.Duration
	PublishRetries     int
	PublishRetryDelay  time.Duration
	PublishBackoffMult float64
}

// URL builds the AMQP URL for the configuration
func (c *Config) URL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.User, c.Password),
		Host:   c.Host + ":" + strconv.Itoa(c.Port),
		Path:   "/" + trimSlash(c.VHost),
	}
	return u.String()
}

func trimSlash(vhost string) string {
	if len(vhost) > 0 && vhost[0] == '/' {
		return vhost[1:]
	}
	return vhost
}

// Client is a shared broker connection. It reconnects with capped exponential
// backoff when the connection drops and notifies subscribers afterwards.
type Client struct {
	config *Config
	logger *slog.Logger

	mu   sync.RWMutex
	conn *amqp.Connection

	// publishing uses one dedicated channel guarded by pubMu
	pubMu      sync.Mutex
	pubChannel *amqp.Channel

	closed   bool
	closedCh chan struct{}

	listenersMu sync.Mutex
	listeners   []chan struct{}
}

// NewClient creates a new RabbitMQ client. Call Connect before use.
func NewClient(config *Config, logger *slog.Logger) *Client {
	return &Client{
		config:   config,
		logger:   logger,
		closedCh: make(chan struct{}),
	}
}

// Connect dials the broker, retrying up to RetryAttempts times, and starts
// watching the connection.
func (c *Client) Connect(ctx context.Context) error {
	attempts := c.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		c.logger.Info("Connecting to RabbitMQ",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
		)

		if err = c.dial(); err == nil {
			c.logger.Info("Successfully connected to RabbitMQ",
				slog.String("host", c.config.Host),
				slog.String("vhost", c.config.VHost),
			)
			go c.watch()
			return nil
		}

		c.logger.Error("Failed to connect to RabbitMQ",
			slog.Any("error", err),
			slog.Int("attempt", attempt),
		)

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return fmt.Errorf("failed to connect to RabbitMQ: %w", ctx.Err())
			case <-time.After(c.config.RetryInterval):
			}
		}
	}

	return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, err)
}

// dial opens the connection and the publishing channel
func (c *Client) dial() error {
	amqpConfig := amqp.Config{
		Heartbeat: c.config.Heartbeat,
		Locale:    "en_US",
	}
	if c.config.ConnectionTimeout > 0 {
		amqpConfig.Dial = amqp.DefaultDial(c.config.ConnectionTimeout)
	}

	conn, err := amqp.DialConfig(c.config.URL(), amqpConfig)
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}

	ch, err := confirmChannel(conn)
	if err != nil {
		conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.pubMu.Lock()
	c.pubChannel = ch
	c.pubMu.Unlock()

	return nil
}

// watch waits for the connection to close and reconnects
func (c *Client) watch() {
	for {
		c.mu.RLock()
		conn := c.conn
		closed := c.closed
		c.mu.RUnlock()

		if closed || conn == nil {
			return
		}

		notifyClose := conn.NotifyClose(make(chan *amqp.Error, 1))

		select {
		case <-c.closedCh:
			return
		case amqpErr := <-notifyClose:
			if amqpErr != nil {
				c.logger.Warn("RabbitMQ connection closed", slog.Any("error", amqpErr))
			}
			if !c.reconnect() {
				return
			}
		}
	}
}

// reconnect dials until it succeeds or the client is closed
func (c *Client) reconnect() bool {
	maxDelay := c.config.ReconnectMaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	delay := c.config.RetryInterval
	if delay <= 0 {
		delay = time.Second
	}

	for {
		c.logger.Info("Reconnecting to RabbitMQ", slog.Duration("delay", delay))

		select {
		case <-c.closedCh:
			return false
		case <-time.After(delay):
		}

		if err := c.dial(); err != nil {
			c.logger.Warn("Failed to reconnect to RabbitMQ", slog.Any("error", err))
			delay = min(delay*2, maxDelay)
			continue
		}

		c.logger.Info("Reconnected to RabbitMQ")
		c.notifyReconnect()
		return true
	}
}

func (c *Client) notifyReconnect() {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()

	for _, ch := range c.listeners {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// NotifyReconnect returns a channel that receives after every reconnect.
// Each caller gets its own channel.
func (c *Client) NotifyReconnect() <-chan struct{} {
	ch := make(chan struct{}, 1)

	c.listenersMu.Lock()
	c.listeners = append(c.listeners, ch)
	c.listenersMu.Unlock()

	return ch
}

// Channel opens a new channel on the current connection. Consumers own the
// returned channel and close it when done.
func (c *Client) Channel() (*amqp.Channel, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return nil, ErrNotConnected
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}
	return ch, nil
}

// Publish publishes a message with retry logic and exponential backoff
func (c *Client) Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	maxRetries := c.config.PublishRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	baseDelay := c.config.PublishRetryDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	backoffMult := c.config.PublishBackoffMult
	if backoffMult <= 0 {
		backoffMult = 2.0
	}

	var lastErr error
	delay := baseDelay
	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = c.publishOnce(ctx, exchange, routingKey, msg)
		if lastErr == nil {
			if attempt > 0 {
				c.logger.Info("Published message to RabbitMQ after retry",
					slog.Int("attempt", attempt+1),
					slog.String("type", msg.Type),
				)
			}
			return nil
		}

		if attempt < maxRetries {
			c.logger.Warn("Failed to publish message to RabbitMQ, retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("max_retries", maxRetries),
				slog.Duration("retry_after", delay),
				slog.String("type", msg.Type),
				slog.Any("error", lastErr),
			)

			select {
			case <-ctx.Done():
				return fmt.Errorf("failed to publish message: %w", errors.Join(lastErr, ctx.Err()))
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * backoffMult)
		}
	}

	c.logger.Error("Failed to publish message to RabbitMQ after all retries",
		slog.Int("attempts", maxRetries+1),
		slog.String("type", msg.Type),
		slog.Any("error", lastErr),
	)
	return fmt.Errorf("failed to publish message after %d attempts: %w", maxRetries+1, lastErr)
}

// confirmChannel opens a channel in publisher confirm mode
func confirmChannel(conn *amqp.Connection) (*amqp.Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}
	return ch, nil
}

// publishOnce publishes msg and waits for the broker to confirm it
func (c *Client) publishOnce(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	if c.pubChannel == nil || c.pubChannel.IsClosed() {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		if !c.IsConnected() {
			return ErrNotConnected
		}
		ch, err := confirmChannel(conn)
		if err != nil {
			return err
		}
		c.pubChannel = ch
	}

	confirm, err := c.pubChannel.PublishWithDeferredConfirmWithContext(ctx, exchange, routingKey, false, false, msg)
	if err != nil {
		return err
	}
	if confirm == nil {
		return fmt.Errorf("%w: channel is not in confirm mode", ErrNotConfirmed)
	}
	return awaitConfirm(ctx, confirm)
}

// confirmation is the broker's pending answer to one publish
type confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

// awaitConfirm blocks until the broker acks or nacks the publish. A nack and
// a channel closed mid-flight both yield ErrNotConfirmed.
func awaitConfirm(ctx context.Context, confirm confirmation) error {
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to wait for publish confirm: %w", err)
	}
	if !acked {
		return ErrNotConfirmed
	}
	return nil
}

// IsConnected returns the connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return !c.closed && c.conn != nil && !c.conn.IsClosed()
}

// Close closes the publishing channel and the connection
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.closedCh)
	conn := c.conn
	c.mu.Unlock()

	c.logger.Info("Closing RabbitMQ connection")

	c.pubMu.Lock()
	if c.pubChannel != nil && !c.pubChannel.IsClosed() {
		if err := c.pubChannel.Close(); err != nil {
			c.logger.Error("Failed to close RabbitMQ channel", slog.Any("error", err))
		}
	}
	c.pubMu.Unlock()

	if conn != nil && !conn.IsClosed() {
		if err := conn.Close(); err != nil {
			c.logger.Error("Failed to close RabbitMQ connection", slog.Any("error", err))
			return err
		}
	}

	c.logger.Info("RabbitMQ connection closed successfully")
	return nil
}
