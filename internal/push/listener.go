package push

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nhle/carfeed/internal/model"
)

// ErrAlreadyRunning is returned by Start on a listener that is already started.
var ErrAlreadyRunning = errors.New("push listener already running")

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithReconnect sets the reconnect backoff bounds.
func WithReconnect(minDelay, maxDelay time.Duration) ListenerOption {
	return func(l *Listener) {
		l.minDelay, l.maxDelay = minDelay, maxDelay
	}
}

// WithLogger sets the listener's logger.
func WithLogger(logger *slog.Logger) ListenerOption {
	return func(l *Listener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// Listener keeps one push subscription alive for a session and translates
// its envelopes to change events. While disconnected it emits nothing and
// reconnects with capped exponential backoff.
type Listener struct {
	transport Transport
	minDelay  time.Duration
	maxDelay  time.Duration
	logger    *slog.Logger

	connected atomic.Bool

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewListener creates a listener over transport.
func NewListener(transport Transport, opts ...ListenerOption) *Listener {
	l := &Listener{
		transport: transport,
		minDelay:  DefaultReconnectMin,
		maxDelay:  DefaultReconnectMax,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "push")
	return l
}

// Start opens the subscription for creds in the background. emit is called
// from the listener goroutine, once per translated envelope.
func (l *Listener) Start(
	ctx context.Context,
	creds Credentials,
	emit func(model.ChangeEvent),
) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	l.running = true
	l.cancel = cancel
	l.done = make(chan struct{})

	go l.run(ctx, creds, emit, l.done)
	return nil
}

// Stop closes the subscription and waits for the listener goroutine. No
// events are emitted after Stop returns.
func (l *Listener) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	cancel()
	<-done
}

// Connected reports whether a subscription is currently live.
func (l *Listener) Connected() bool {
	return l.connected.Load()
}

// run subscribes, consumes until the stream ends, and reconnects.
func (l *Listener) run(
	ctx context.Context,
	creds Credentials,
	emit func(model.ChangeEvent),
	done chan<- struct{},
) {
	defer close(done)

	b := newBackoff(l.minDelay, l.maxDelay)
	for {
		if ctx.Err() != nil {
			return
		}

		sub, err := l.transport.Subscribe(ctx, creds)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			delay := b.Next()
			if errors.Is(err, ErrUnauthorized) {
				l.logger.Warn("push subscription rejected", "user_id", creds.UserID, "retry_in", delay, "error", err)
			} else {
				l.logger.Info("push subscribe failed", "user_id", creds.UserID, "retry_in", delay, "error", err)
			}
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		b.Reset()
		l.connected.Store(true)
		l.logger.Debug("push subscribed", "user_id", creds.UserID)

		l.consume(ctx, sub, creds.UserID, emit)

		l.connected.Store(false)
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}

		delay := b.Next()
		l.logger.Info("push disconnected, reconnecting", "user_id", creds.UserID, "retry_in", delay)
		if !sleep(ctx, delay) {
			return
		}
	}
}

// consume translates envelopes until the subscription ends or ctx is done.
func (l *Listener) consume(
	ctx context.Context,
	sub Subscription,
	userID string,
	emit func(model.ChangeEvent),
) {
	msgs := sub.Messages()
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-msgs:
			if !ok {
				return
			}
			if env.UserID != "" && env.UserID != userID {
				continue
			}
			ev, ok := Translate(env)
			if !ok {
				l.logger.Debug("dropping unknown push message", "type", env.Type)
				continue
			}
			emit(ev)
		}
	}
}

// sleep waits for d or until ctx is done, reporting whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
