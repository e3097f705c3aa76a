package sync

import (
	"context"
	"errors"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/nhle/carfeed/internal/model"
	"github.com/nhle/carfeed/internal/source"
)

// SyncState represents the current state of the poll loop.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

// String returns a short label for the state.
func (s SyncState) String() string {
	switch s {
	case SyncRunning:
		return "running"
	case SyncError:
		return "error"
	default:
		return "idle"
	}
}

// SyncStatus holds the outcome of the most recent poll cycle.
type SyncStatus struct {
	State    SyncState
	LastSync time.Time
	Error    error
	// Cycles counts completed fetches, successful or not.
	Cycles int
}

// ErrAlreadyRunning is returned by Start on a loop that is already started.
var ErrAlreadyRunning = errors.New("poll loop already running")

const (
	// DefaultInterval is used when no poll interval is configured.
	DefaultInterval = 30 * time.Second

	// fetchTimeout is the maximum time allowed for a single fetch.
	fetchTimeout = 30 * time.Second
)

// Option configures a PollLoop.
type Option func(*PollLoop)

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) Option {
	return func(p *PollLoop) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithFetchTimeout bounds each snapshot fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(p *PollLoop) {
		if d > 0 {
			p.fetchTimeout = d
		}
	}
}

// WithLogger sets the logger used for fetch failures.
func WithLogger(l *slog.Logger) Option {
	return func(p *PollLoop) {
		if l != nil {
			p.logger = l
		}
	}
}

// PollLoop periodically fetches a user's listing snapshot, diffs it against
// the previous one and forwards the resulting change events.
type PollLoop struct {
	src          source.SnapshotSource
	interval     time.Duration
	fetchTimeout time.Duration
	logger       *slog.Logger

	mu        gosync.Mutex
	status    SyncStatus
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	triggerCh chan struct{}
}

// NewPollLoop creates a PollLoop reading from src.
func NewPollLoop(src source.SnapshotSource, opts ...Option) *PollLoop {
	p := &PollLoop{
		src:          src,
		interval:     DefaultInterval,
		fetchTimeout: fetchTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "poll")
	return p
}

// Start launches the polling goroutine for userID. The first fetch happens
// immediately and only establishes the baseline snapshot. Events are passed
// to emit from the polling goroutine, one cycle at a time.
func (p *PollLoop) Start(
	ctx context.Context,
	userID string,
	emit func(model.ChangeEvent),
) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	p.running = true
	p.cancel = cancel
	p.done = make(chan struct{})
	p.triggerCh = make(chan struct{}, 1)
	p.status = SyncStatus{State: SyncIdle}

	go p.loop(ctx, userID, emit, p.triggerCh, p.done)
	return nil
}

// Stop halts the polling goroutine and waits for it to exit. No events are
// emitted after Stop returns.
func (p *PollLoop) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	<-done
}

// Refresh triggers an immediate poll cycle. It never blocks; a refresh
// already pending absorbs this one.
func (p *PollLoop) Refresh() {
	p.mu.Lock()
	ch := p.triggerCh
	running := p.running
	p.mu.Unlock()

	if !running {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Status returns the outcome of the most recent cycle.
func (p *PollLoop) Status() SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// loop runs the poll cycles until ctx is cancelled.
func (p *PollLoop) loop(
	ctx context.Context,
	userID string,
	emit func(model.ChangeEvent),
	triggerCh <-chan struct{},
	done chan<- struct{},
) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var previous model.Snapshot

	// Do an initial fetch immediately
	previous = p.cycle(ctx, userID, previous, emit)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			previous = p.cycle(ctx, userID, previous, emit)
		case <-triggerCh:
			previous = p.cycle(ctx, userID, previous, emit)
		}
	}
}

// cycle performs one fetch and diff and returns the snapshot to keep as
// "previous". A failed fetch keeps the old one.
func (p *PollLoop) cycle(
	ctx context.Context,
	userID string,
	previous model.Snapshot,
	emit func(model.ChangeEvent),
) model.Snapshot {
	p.setStatus(SyncRunning, nil)

	fetchCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	current, err := p.src.FetchSnapshot(fetchCtx, userID)
	cancel()

	if err != nil {
		if ctx.Err() != nil {
			return previous
		}
		p.setStatus(SyncError, err)
		if source.IsAuthError(err) {
			p.logger.Warn("listing fetch unauthorized", "user_id", userID, "error", err)
		} else {
			p.logger.Info("listing fetch failed, retrying next cycle", "user_id", userID, "error", err)
		}
		return previous
	}
	if current == nil {
		current = model.Snapshot{}
	}

	events := Diff(previous, current)
	for _, ev := range events {
		if ctx.Err() != nil {
			break
		}
		emit(ev)
	}

	if len(events) > 0 {
		p.logger.Debug("poll detected changes", "user_id", userID, "count", len(events))
	}
	p.setStatus(SyncIdle, nil)
	return current
}

// setStatus records the loop state.
func (p *PollLoop) setStatus(state SyncState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.State = state
	p.status.Error = err
	if state != SyncRunning {
		p.status.Cycles++
	}
	if state == SyncIdle && err == nil {
		p.status.LastSync = time.Now()
	}
}
