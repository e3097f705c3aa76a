package server

import (
	"sort"
	"sync"

	"github.com/nhle/carfeed/internal/model"
)

// listingRegistry is the server's in-memory view of user listings. It backs
// the snapshot endpoint polled by sessions.
type listingRegistry struct {
	mu    sync.RWMutex
	users map[string]map[string]model.Resource
}

func newListingRegistry() *listingRegistry {
	return &listingRegistry{users: make(map[string]map[string]model.Resource)}
}

// put stores r for userID and returns the previous state, if any.
func (l *listingRegistry) put(userID string, r model.Resource) (model.Resource, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	owned, ok := l.users[userID]
	if !ok {
		owned = make(map[string]model.Resource)
		l.users[userID] = owned
	}
	prev, existed := owned[r.ID]
	owned[r.ID] = r
	return prev, existed
}

// list returns userID's listings ordered by id.
func (l *listingRegistry) list(userID string) []model.Resource {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]model.Resource, 0, len(l.users[userID]))
	for _, r := range l.users[userID] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
