package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/carfeed/internal/model"
	"github.com/nhle/carfeed/internal/push"
	"github.com/nhle/carfeed/internal/source"
	"github.com/nhle/carfeed/internal/store"
	"github.com/nhle/carfeed/internal/testutil"
)

// listingSource serves a single listing whose status the test controls.
type listingSource struct {
	mu     sync.Mutex
	status string
	calls  atomic.Int32
}

func (l *listingSource) set(status string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status = status
}

func (l *listingSource) FetchSnapshot(_ context.Context, _ string) (model.Snapshot, error) {
	l.calls.Add(1)
	l.mu.Lock()
	defer l.mu.Unlock()
	return model.NewSnapshot([]model.Resource{{ID: "c1", Status: l.status, Make: "Toyota", Model: "Corolla"}}), nil
}

func testConfig() Config {
	return Config{
		UserID:       "u1",
		PollInterval: 20 * time.Millisecond,
		DedupTTL:     5 * time.Second,
		ReconnectMin: 5 * time.Millisecond,
		ReconnectMax: 20 * time.Millisecond,
	}
}

func TestSession_PushAndPollSameTransition(t *testing.T) {
	hub := push.NewHub()
	src := &listingSource{status: "Pending"}

	s, err := New(testConfig(), testutil.NewTestStore(t), hub, src)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, s.PushConnected, time.Second, 2*time.Millisecond)
	require.Eventually(t, func() bool { return src.calls.Load() >= 1 }, time.Second, 2*time.Millisecond)

	before := s.Reconciler().UnreadCount()

	src.set("Approved")
	require.NoError(t, hub.Publish(context.Background(), push.Envelope{
		UserID: "u1",
		Type:   push.TypeListingStatusChanged,
		Title:  "Listing status updated",
		Meta:   model.Meta{model.MetaCarID: "c1", model.MetaStatus: "Approved"},
	}))

	calls := src.calls.Load()
	require.Eventually(t, func() bool { return src.calls.Load() >= calls+3 }, 2*time.Second, 5*time.Millisecond)

	list := s.Reconciler().List()
	require.Len(t, list, 1)
	assert.Equal(t, model.NotificationTypeStatus, list[0].Type)
	assert.Equal(t, "c1", list[0].Meta[model.MetaCarID])
	assert.Equal(t, before+1, s.Reconciler().UnreadCount())
	assert.NotZero(t, s.PollStatus().Cycles)
}

func TestSession_PollCoversPushOutage(t *testing.T) {
	hub := push.NewHub(push.WithHubAuthenticator(func(push.Credentials) error { return push.ErrUnauthorized }))
	src := &listingSource{status: "Pending"}

	s, err := New(testConfig(), store.NewMemoryStore(), hub, src)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool { return src.calls.Load() >= 1 }, time.Second, 2*time.Millisecond)
	src.set("Sold")

	require.Eventually(t, func() bool { return s.Reconciler().UnreadCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, s.PushConnected())
}

func TestSession_LoadsHistoryOnStart(t *testing.T) {
	st := testutil.NewTestStore(t)
	_, err := st.CreateNotification(context.Background(), model.Notification{
		UserID: "u1", Type: model.NotificationTypeSystem, Title: "Welcome",
	})
	require.NoError(t, err)

	s, err := New(testConfig(), st, push.NewHub(), source.SnapshotFunc(func(context.Context, string) (model.Snapshot, error) {
		return model.Snapshot{}, nil
	}))
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Len(t, s.Reconciler().List(), 1)
}

func TestSession_StopHaltsProducers(t *testing.T) {
	hub := push.NewHub()
	src := &listingSource{status: "Pending"}

	s, err := New(testConfig(), store.NewMemoryStore(), hub, src)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)
	require.Eventually(t, s.PushConnected, time.Second, 2*time.Millisecond)

	s.Stop()
	s.Stop()

	assert.Equal(t, 0, hub.Subscribers("u1"))
	calls := src.calls.Load()
	src.set("Sold")
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, calls, src.calls.Load())
	assert.Empty(t, s.Reconciler().List())
}

func TestNew_RequiresUser(t *testing.T) {
	_, err := New(Config{}, store.NewMemoryStore(), push.NewHub(), nil)
	assert.Error(t, err)
}

func TestFromAppConfig(t *testing.T) {
	cfg := &model.AppConfig{
		Session: model.SessionConfig{UserID: "u9", PollIntervalSec: 15, DedupTTLMillis: 4000},
		Push:    model.PushConfig{ReconnectMinMillis: 250, ReconnectMaxMillis: 8000},
	}

	c := FromAppConfig(cfg, "tok")
	assert.Equal(t, "u9", c.UserID)
	assert.Equal(t, "tok", c.Token)
	assert.Equal(t, 15*time.Second, c.PollInterval)
	assert.Equal(t, 4*time.Second, c.DedupTTL)
	assert.Equal(t, 250*time.Millisecond, c.ReconnectMin)
	assert.Equal(t, 8*time.Second, c.ReconnectMax)
}
