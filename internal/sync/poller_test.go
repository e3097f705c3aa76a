package sync

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/carfeed/internal/model"
	"github.com/nhle/carfeed/internal/source"
)

// scriptedSource returns queued snapshots (or errors) in order, repeating
// the last entry once the script runs out.
type scriptedSource struct {
	mu     gosync.Mutex
	script []step
	calls  int
}

type step struct {
	snap model.Snapshot
	err  error
}

func (s *scriptedSource) FetchSnapshot(_ context.Context, _ string) (model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.script) {
		i = len(s.script) - 1
	}
	s.calls++
	return s.script[i].snap, s.script[i].err
}

func (s *scriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type collector struct {
	mu     gosync.Mutex
	events []model.ChangeEvent
}

func (c *collector) emit(ev model.ChangeEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) Events() []model.ChangeEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.ChangeEvent(nil), c.events...)
}

func TestPollLoop_BaselineThenTransition(t *testing.T) {
	src := &scriptedSource{script: []step{
		{snap: snap("c1", "Pending")},
		{snap: snap("c1", "Approved")},
	}}
	var got collector

	p := NewPollLoop(src, WithInterval(10*time.Millisecond))
	require.NoError(t, p.Start(context.Background(), "u1", got.emit))
	defer p.Stop()

	require.Eventually(t, func() bool { return src.Calls() >= 4 }, time.Second, 5*time.Millisecond)

	events := got.Events()
	require.Len(t, events, 1, "baseline emits nothing; unchanged cycles emit nothing")
	assert.Equal(t, "status:c1:Approved", events[0].CorrelationKey)
}

func TestPollLoop_FetchFailureKeepsPreviousSnapshot(t *testing.T) {
	boom := errors.New("network down")
	src := &scriptedSource{script: []step{
		{snap: snap("c1", "Pending")},
		{err: boom},
		{err: boom},
		{snap: snap("c1", "Sold")},
	}}
	var got collector

	p := NewPollLoop(src, WithInterval(10*time.Millisecond))
	require.NoError(t, p.Start(context.Background(), "u1", got.emit))
	defer p.Stop()

	require.Eventually(t, func() bool { return len(got.Events()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "Pending", got.Events()[0].Meta[model.MetaPreviousStatus])
}

func TestPollLoop_StatusReportsErrors(t *testing.T) {
	src := &scriptedSource{script: []step{{err: &source.AuthError{UserID: "u1", Message: "expired"}}}}

	p := NewPollLoop(src, WithInterval(time.Hour))
	require.NoError(t, p.Start(context.Background(), "u1", func(model.ChangeEvent) {}))
	defer p.Stop()

	require.Eventually(t, func() bool { return p.Status().State == SyncError }, time.Second, 5*time.Millisecond)
	assert.True(t, source.IsAuthError(p.Status().Error))
	assert.Equal(t, "error", p.Status().State.String())
}

func TestPollLoop_RefreshTriggersCycle(t *testing.T) {
	src := &scriptedSource{script: []step{
		{snap: snap("c1", "Pending")},
		{snap: snap("c1", "Rejected")},
	}}
	var got collector

	p := NewPollLoop(src, WithInterval(time.Hour))
	require.NoError(t, p.Start(context.Background(), "u1", got.emit))
	defer p.Stop()

	require.Eventually(t, func() bool { return p.Status().Cycles == 1 }, time.Second, 5*time.Millisecond)
	p.Refresh()

	require.Eventually(t, func() bool { return len(got.Events()) == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, p.Status().LastSync.IsZero())
}

func TestPollLoop_StopHaltsEmission(t *testing.T) {
	src := &scriptedSource{script: []step{{snap: snap("c1", "Pending")}}}

	p := NewPollLoop(src, WithInterval(5*time.Millisecond))
	require.NoError(t, p.Start(context.Background(), "u1", func(model.ChangeEvent) {}))
	assert.ErrorIs(t, p.Start(context.Background(), "u1", func(model.ChangeEvent) {}), ErrAlreadyRunning)

	p.Stop()
	calls := src.Calls()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, src.Calls())

	p.Stop()
	p.Refresh()
}
