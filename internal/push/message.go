package push

import (
	"time"

	"github.com/nhle/carfeed/internal/model"
)

// Inbound message types carried by the push channel.
const (
	TypeMessageReceived      = "message.received"
	TypeListingCreated       = "listing.created"
	TypeListingStatusChanged = "listing.status_changed"
	TypeSystemNotice         = "system.notice"
)

// Envelope is the wire shape of a push message.
type Envelope struct {
	UserID string     `json:"user_id"`
	Type   string     `json:"type"`
	Title  string     `json:"title,omitempty"`
	Body   string     `json:"body,omitempty"`
	Meta   model.Meta `json:"meta,omitempty"`
	SentAt time.Time  `json:"sent_at"`
}

// translation maps inbound message types to notification types.
var translation = map[string]model.NotificationType{
	TypeMessageReceived:      model.NotificationTypeMessage,
	TypeListingCreated:       model.NotificationTypeCar,
	TypeListingStatusChanged: model.NotificationTypeStatus,
	TypeSystemNotice:         model.NotificationTypeSystem,
}

// defaultTitles fill in envelopes that arrive without a title.
var defaultTitles = map[model.NotificationType]string{
	model.NotificationTypeMessage: "New message",
	model.NotificationTypeCar:     "Listing created",
	model.NotificationTypeStatus:  "Listing status updated",
	model.NotificationTypeSystem:  "Notice",
}

// Translate converts an envelope to a ChangeEvent. It reports false for
// message types outside the translation table.
func Translate(env Envelope) (model.ChangeEvent, bool) {
	t, ok := translation[env.Type]
	if !ok {
		return model.ChangeEvent{}, false
	}

	title := env.Title
	if title == "" {
		title = defaultTitles[t]
	}
	return model.NewChangeEvent(t, title, env.Body, env.Meta.Clone(), model.OriginPush), true
}

// KnownType reports whether typ is part of the translation table.
func KnownType(typ string) bool {
	_, ok := translation[typ]
	return ok
}
