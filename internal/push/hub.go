package push

import (
	"context"
	"sync"
)

// hubBuffer is the per-subscriber queue size.
const hubBuffer = 16

// Hub is a process-local Transport and Publisher. Subscribers are grouped by
// user and slow subscribers drop messages rather than block publishers.
type Hub struct {
	authenticate Authenticator
	// subscribers maps user id -> *sync.Map used as a set of *hubSub.
	subscribers sync.Map
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubAuthenticator sets the join handshake.
func WithHubAuthenticator(a Authenticator) HubOption {
	return func(h *Hub) {
		if a != nil {
			h.authenticate = a
		}
	}
}

// NewHub constructs a Hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{authenticate: allowAll}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

var (
	_ Transport = (*Hub)(nil)
	_ Publisher = (*Hub)(nil)
)

// Subscribe registers a subscriber for creds.UserID.
func (h *Hub) Subscribe(ctx context.Context, creds Credentials) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := h.authenticate(creds); err != nil {
		return nil, err
	}

	sub := &hubSub{hub: h, userID: creds.UserID, ch: make(chan Envelope, hubBuffer)}
	h.userSet(creds.UserID).Store(sub, struct{}{})
	return sub, nil
}

// Publish sends env to every subscriber of env.UserID.
func (h *Hub) Publish(_ context.Context, env Envelope) error {
	v, ok := h.subscribers.Load(env.UserID)
	if !ok {
		return nil
	}
	v.(*sync.Map).Range(func(key, _ any) bool {
		key.(*hubSub).send(env)
		return true
	})
	return nil
}

// Disconnect ends every live subscription of userID, as a dropped
// connection would.
func (h *Hub) Disconnect(userID string) {
	v, ok := h.subscribers.Load(userID)
	if !ok {
		return
	}
	v.(*sync.Map).Range(func(key, _ any) bool {
		_ = key.(*hubSub).Close()
		return true
	})
}

// Subscribers returns the number of live subscriptions for userID.
func (h *Hub) Subscribers(userID string) int {
	v, ok := h.subscribers.Load(userID)
	if !ok {
		return 0
	}
	n := 0
	v.(*sync.Map).Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (h *Hub) userSet(userID string) *sync.Map {
	v, _ := h.subscribers.LoadOrStore(userID, &sync.Map{})
	return v.(*sync.Map)
}

// hubSub is one Hub subscription.
type hubSub struct {
	hub    *Hub
	userID string
	ch     chan Envelope

	mu     sync.Mutex
	closed bool
}

func (s *hubSub) Messages() <-chan Envelope {
	return s.ch
}

func (s *hubSub) send(env Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- env:
	default:
		// drop if subscriber is slow
	}
}

func (s *hubSub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.hub.userSet(s.userID).Delete(s)
	close(s.ch)
	return nil
}
