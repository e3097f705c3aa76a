// Package session ties one authenticated user's push listener, poll loop and
// reconciler together with an explicit start/stop lifecycle.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nhle/carfeed/internal/dedup"
	"github.com/nhle/carfeed/internal/model"
	"github.com/nhle/carfeed/internal/push"
	"github.com/nhle/carfeed/internal/reconcile"
	"github.com/nhle/carfeed/internal/source"
	"github.com/nhle/carfeed/internal/store"
	csync "github.com/nhle/carfeed/internal/sync"
)

// DefaultQueueSize bounds each producer's channel to the reconciler.
const DefaultQueueSize = 64

// ErrAlreadyStarted is returned by Start on a running session.
var ErrAlreadyStarted = errors.New("session already started")

// Config holds the per-session settings.
type Config struct {
	UserID string
	Token  string

	PollInterval time.Duration
	DedupTTL     time.Duration
	QueueSize    int

	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// FromAppConfig builds a session Config from the application config.
func FromAppConfig(cfg *model.AppConfig, token string) Config {
	return Config{
		UserID:       cfg.Session.UserID,
		Token:        token,
		PollInterval: cfg.Session.PollInterval(),
		DedupTTL:     cfg.Session.DedupTTL(),
		ReconnectMin: time.Duration(cfg.Push.ReconnectMinMillis) * time.Millisecond,
		ReconnectMax: time.Duration(cfg.Push.ReconnectMaxMillis) * time.Millisecond,
	}
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger passed to every component.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now for dedup and acceptance timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// Session is the notification engine for one logged-in user.
type Session struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	guard      *dedup.Guard
	reconciler *reconcile.Reconciler
	listener   *push.Listener
	poller     *csync.PollLoop

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New assembles a session. Nothing runs until Start.
func New(
	cfg Config,
	st store.Store,
	transport push.Transport,
	src source.SnapshotSource,
	opts ...Option,
) (*Session, error) {
	if cfg.UserID == "" {
		return nil, fmt.Errorf("creating session: empty user id")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	s := &Session{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	var guardOpts []dedup.Option
	var recOpts []reconcile.Option
	if s.now != nil {
		guardOpts = append(guardOpts, dedup.WithClock(s.now))
		recOpts = append(recOpts, reconcile.WithClock(s.now))
	}
	recOpts = append(recOpts, reconcile.WithLogger(s.logger))

	s.guard = dedup.New(cfg.DedupTTL, guardOpts...)
	s.reconciler = reconcile.New(cfg.UserID, st, s.guard, recOpts...)
	s.listener = push.NewListener(transport,
		push.WithReconnect(cfg.ReconnectMin, cfg.ReconnectMax),
		push.WithLogger(s.logger),
	)
	s.poller = csync.NewPollLoop(src,
		csync.WithInterval(cfg.PollInterval),
		csync.WithLogger(s.logger),
	)
	return s, nil
}

// Reconciler exposes the feed for reads, mark-read calls and change
// subscriptions.
func (s *Session) Reconciler() *reconcile.Reconciler {
	return s.reconciler
}

// PushConnected reports whether the push subscription is live.
func (s *Session) PushConnected() bool {
	return s.listener.Connected()
}

// PollStatus returns the outcome of the most recent poll cycle.
func (s *Session) PollStatus() csync.SyncStatus {
	return s.poller.Status()
}

// Start loads stored history and launches the consumer loop, the push
// listener and the poll loop.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyStarted
	}

	if err := s.reconciler.Refresh(ctx); err != nil {
		s.logger.Warn("loading notification history failed", "user_id", s.cfg.UserID, "error", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	pushCh := make(chan model.ChangeEvent, s.cfg.QueueSize)
	pollCh := make(chan model.ChangeEvent, s.cfg.QueueSize)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := s.reconciler.Run(runCtx, pushCh, pollCh); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("reconciler stopped", "error", err)
		}
	}()
	go func() {
		defer s.wg.Done()
		s.guard.Run(runCtx, s.guard.TTL())
	}()

	creds := push.Credentials{UserID: s.cfg.UserID, Token: s.cfg.Token}
	if err := s.listener.Start(runCtx, creds, enqueue(runCtx, pushCh)); err != nil {
		cancel()
		s.wg.Wait()
		return fmt.Errorf("starting push listener: %w", err)
	}
	if err := s.poller.Start(runCtx, s.cfg.UserID, enqueue(runCtx, pollCh)); err != nil {
		s.listener.Stop()
		cancel()
		s.wg.Wait()
		return fmt.Errorf("starting poll loop: %w", err)
	}

	s.running = true
	s.cancel = cancel
	s.logger.Info("session started", "user_id", s.cfg.UserID)
	return nil
}

// Stop halts both producers, then the consumer. A store write already in
// progress completes before Stop returns; queued events are discarded.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false

	s.listener.Stop()
	s.poller.Stop()
	s.cancel()
	s.wg.Wait()
	s.logger.Info("session stopped", "user_id", s.cfg.UserID)
}

// Refresh polls immediately and reloads stored history.
func (s *Session) Refresh(ctx context.Context) error {
	s.poller.Refresh()
	return s.reconciler.Refresh(ctx)
}

// enqueue returns an emit func that blocks on a full queue until ctx ends.
func enqueue(ctx context.Context, ch chan<- model.ChangeEvent) func(model.ChangeEvent) {
	return func(ev model.ChangeEvent) {
		select {
		case ch <- ev:
		case <-ctx.Done():
		}
	}
}
