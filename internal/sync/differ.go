package sync

import (
	"sort"

	"github.com/nhle/carfeed/internal/model"
)

// StatusTitle is the heading used for poll-detected status changes.
const StatusTitle = "Listing status updated"

// Diff compares two successive snapshots of a user's listings and returns
// the status transitions between them, ordered by listing id.
//
// A nil previous snapshot is a baseline and yields no events. Listings that
// appear or disappear between cycles are not reported; creation reaches the
// feed through the push channel only.
func Diff(previous, current model.Snapshot) []model.ChangeEvent {
	if previous == nil {
		return nil
	}

	ids := make([]string, 0, len(current))
	for id := range current {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var events []model.ChangeEvent
	for _, id := range ids {
		cur := current[id]
		prev, ok := previous[id]
		if !ok || prev.Status == cur.Status {
			continue
		}
		events = append(events, statusEvent(prev, cur))
	}
	return events
}

// statusEvent builds the change event for one listing transition.
func statusEvent(prev, cur model.Resource) model.ChangeEvent {
	meta := model.Meta{
		model.MetaCarID:          cur.ID,
		model.MetaStatus:         cur.Status,
		model.MetaPreviousStatus: prev.Status,
	}
	body := cur.DisplayName() + " is now " + cur.Status
	return model.NewChangeEvent(model.NotificationTypeStatus, StatusTitle, body, meta, model.OriginPoll)
}
