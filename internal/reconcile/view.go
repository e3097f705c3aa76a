package reconcile

import (
	"sort"
	"sync"

	"github.com/nhle/carfeed/internal/model"
)

// view is the in-memory feed, kept newest first. It has its own lock so
// readers are not blocked while the writer waits on the store.
type view struct {
	mu      sync.RWMutex
	records []model.Notification
	index   map[string]int
}

func newView() *view {
	return &view{index: make(map[string]int)}
}

// newer reports whether a sorts before b.
func newer(a, b model.Notification) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func (v *view) insert(n model.Notification) {
	v.mu.Lock()
	defer v.mu.Unlock()

	i := sort.Search(len(v.records), func(i int) bool {
		return newer(n, v.records[i])
	})
	v.records = append(v.records, model.Notification{})
	copy(v.records[i+1:], v.records[i:])
	v.records[i] = n
	v.reindexLocked()
}

func (v *view) get(id string) (model.Notification, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	i, ok := v.index[id]
	if !ok {
		return model.Notification{}, false
	}
	return v.records[i], true
}

// setRead marks id read and reports whether it changed.
func (v *view) setRead(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	i, ok := v.index[id]
	if !ok || v.records[i].Read {
		return false
	}
	v.records[i].Read = true
	return true
}

// markAll marks every record read and returns how many changed.
func (v *view) markAll() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	n := 0
	for i := range v.records {
		if !v.records[i].Read {
			v.records[i].Read = true
			n++
		}
	}
	return n
}

// merge folds stored records into the view. Records already present keep
// their view fields except read, which only moves to true. It reports
// whether anything changed.
func (v *view) merge(stored []model.Notification) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	changed := false
	for _, s := range stored {
		if s.ID == "" {
			continue
		}
		if i, ok := v.index[s.ID]; ok {
			if s.Read && !v.records[i].Read {
				v.records[i].Read = true
				changed = true
			}
			continue
		}
		s.Meta = s.Meta.Clone()
		v.index[s.ID] = len(v.records)
		v.records = append(v.records, s)
		changed = true
	}

	if changed {
		sort.SliceStable(v.records, func(i, j int) bool {
			return newer(v.records[i], v.records[j])
		})
		v.reindexLocked()
	}
	return changed
}

func (v *view) list() []model.Notification {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]model.Notification, len(v.records))
	for i, n := range v.records {
		n.Meta = n.Meta.Clone()
		out[i] = n
	}
	return out
}

func (v *view) counts() (unread, total int) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	for _, n := range v.records {
		if !n.Read {
			unread++
		}
	}
	return unread, len(v.records)
}

func (v *view) reindexLocked() {
	for i, n := range v.records {
		v.index[n.ID] = i
	}
}
