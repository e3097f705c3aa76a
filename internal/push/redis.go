package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DefaultChannelPrefix is prepended to the user id to form the channel name.
const DefaultChannelPrefix = "carfeed:user:"

// RedisTransport carries push envelopes over Redis Pub/Sub, one channel per
// user, so any API instance can publish to a user connected elsewhere.
type RedisTransport struct {
	client       *redis.Client
	prefix       string
	authenticate Authenticator
	logger       *slog.Logger
}

// RedisOption configures a RedisTransport.
type RedisOption func(*RedisTransport)

// WithChannelPrefix overrides DefaultChannelPrefix.
func WithChannelPrefix(prefix string) RedisOption {
	return func(r *RedisTransport) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithRedisAuthenticator sets the join handshake.
func WithRedisAuthenticator(a Authenticator) RedisOption {
	return func(r *RedisTransport) {
		if a != nil {
			r.authenticate = a
		}
	}
}

// WithRedisLogger sets the logger for undecodable payloads.
func WithRedisLogger(l *slog.Logger) RedisOption {
	return func(r *RedisTransport) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRedisTransport creates a transport on client.
func NewRedisTransport(client *redis.Client, opts ...RedisOption) *RedisTransport {
	r := &RedisTransport{
		client:       client,
		prefix:       DefaultChannelPrefix,
		authenticate: allowAll,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "push.redis")
	return r
}

var (
	_ Transport = (*RedisTransport)(nil)
	_ Publisher = (*RedisTransport)(nil)
)

// Channel returns the Pub/Sub channel for userID.
func (r *RedisTransport) Channel(userID string) string {
	return r.prefix + userID
}

// Subscribe performs the join handshake and subscribes to the user's
// channel. It returns once Redis has confirmed the subscription.
func (r *RedisTransport) Subscribe(ctx context.Context, creds Credentials) (Subscription, error) {
	if err := r.authenticate(creds); err != nil {
		return nil, err
	}

	channel := r.Channel(creds.UserID)
	ps := r.client.Subscribe(ctx, channel)

	// Ensure subscription is established before reading messages.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", channel, err)
	}

	sub := &redisSub{
		ps:   ps,
		out:  make(chan Envelope, hubBuffer),
		done: make(chan struct{}),
	}
	go sub.forward(ps.Channel(), r.logger, channel)
	return sub, nil
}

// Publish encodes env and publishes it to the user's channel.
func (r *RedisTransport) Publish(ctx context.Context, env Envelope) error {
	if env.UserID == "" {
		return fmt.Errorf("publishing push message: empty user id")
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding push message: %w", err)
	}

	channel := r.Channel(env.UserID)
	if err := r.client.Publish(ctx, channel, body).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", channel, err)
	}
	return nil
}

// redisSub adapts a redis.PubSub to Subscription.
type redisSub struct {
	ps   *redis.PubSub
	out  chan Envelope
	done chan struct{}
	once sync.Once
}

func (s *redisSub) Messages() <-chan Envelope {
	return s.out
}

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}

// forward decodes payloads until the Pub/Sub channel closes.
func (s *redisSub) forward(in <-chan *redis.Message, logger *slog.Logger, channel string) {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				logger.Warn("undecodable push payload", "channel", channel, "error", err)
				continue
			}
			select {
			case s.out <- env:
			case <-s.done:
				return
			}
		}
	}
}
