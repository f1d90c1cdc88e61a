package collab

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"github.com/matzehuels/canvasgraph/pkg/document"
	cgerrors "github.com/matzehuels/canvasgraph/pkg/errors"
	"github.com/matzehuels/canvasgraph/pkg/observability"
)

// RedisConfig addresses the pub/sub server.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisTransport relays updates over Redis pub/sub. Every process
// subscribed to a canvas channel receives every update published on it.
type RedisTransport struct {
	client *redis.Client
	owned  bool
	logger *log.Logger
}

// NewRedisTransport connects and pings the server.
func NewRedisTransport(ctx context.Context, cfg RedisConfig, logger *log.Logger) (*RedisTransport, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, cgerrors.Wrap(cgerrors.ErrCodeTransport, err, "connect redis %s", cfg.Addr)
	}
	t := NewRedisTransportFromClient(client, logger)
	t.owned = true
	return t, nil
}

// NewRedisTransportFromClient shares an existing client. Close leaves it
// open.
func NewRedisTransportFromClient(client *redis.Client, logger *log.Logger) *RedisTransport {
	if logger == nil {
		logger = log.Default()
	}
	return &RedisTransport{client: client, logger: logger}
}

func (t *RedisTransport) Publish(ctx context.Context, canvasID string, u document.Update) error {
	data, err := encodeUpdate(u)
	if err != nil {
		return cgerrors.Wrap(cgerrors.ErrCodeTransport, err, "encode update")
	}
	if err := t.client.Publish(ctx, Channel(canvasID), data).Err(); err != nil {
		observability.Transport().OnTransportError(ctx, canvasID, err)
		return cgerrors.Wrap(cgerrors.ErrCodeTransport, err, "publish update")
	}
	observability.Transport().OnPublish(ctx, canvasID, len(data))
	return nil
}

// Subscribe waits for the subscription to be confirmed before returning,
// so updates published afterwards are never missed.
func (t *RedisTransport) Subscribe(ctx context.Context, canvasID string) (<-chan document.Update, func(), error) {
	channel := Channel(canvasID)
	ps := t.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, cgerrors.Wrap(cgerrors.ErrCodeTransport, err, "subscribe %s", channel)
	}

	out := make(chan document.Update, subscriptionBuffer)
	done := make(chan struct{})
	msgs := ps.Channel()

	go func() {
		defer close(out)
		for {
			select {
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				u, err := decodeUpdate([]byte(msg.Payload))
				if err != nil {
					observability.Transport().OnTransportError(context.Background(), canvasID, err)
					t.logger.Warn("dropping malformed update", "channel", channel, "err", err)
					continue
				}
				observability.Transport().OnReceive(context.Background(), canvasID, len(msg.Payload))
				select {
				case out <- u:
				case <-done:
					return
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			if err := ps.Close(); err != nil {
				t.logger.Debug("close subscription", "channel", channel, "err", err)
			}
		})
	}
	return out, cancel, nil
}

func (t *RedisTransport) Close() error {
	if !t.owned {
		return nil
	}
	if err := t.client.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}

var _ Transport = (*RedisTransport)(nil)
