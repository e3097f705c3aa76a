package model

import "time"

// NotificationType is the closed set of notification kinds shown in the feed.
type NotificationType string

const (
	NotificationTypeMessage NotificationType = "message"
	NotificationTypeCar     NotificationType = "car"
	NotificationTypeStatus  NotificationType = "status"
	NotificationTypeSystem  NotificationType = "system"
)

// Valid reports whether t is one of the known notification types.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationTypeMessage, NotificationTypeCar,
		NotificationTypeStatus, NotificationTypeSystem:
		return true
	}
	return false
}

// Well-known Meta keys carrying correlation identifiers.
const (
	MetaCarID          = "carId"
	MetaMessageID      = "messageId"
	MetaConversationID = "conversationId"
	MetaStatus         = "status"
	MetaPreviousStatus = "previousStatus"
	MetaSystemID       = "systemId"
)

// Meta is the open key-value payload attached to a notification.
type Meta map[string]string

// Clone returns a copy of m. A nil Meta clones to nil.
func (m Meta) Clone() Meta {
	if m == nil {
		return nil
	}
	out := make(Meta, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Notification is a single entry in a user's notification feed.
type Notification struct {
	// ID is the unique identifier assigned by the store on write.
	ID string `json:"id"`

	// UserID is the owner of this notification.
	UserID string `json:"user_id"`

	// Type classifies the notification.
	Type NotificationType `json:"type"`

	// Title is the short display heading.
	Title string `json:"title"`

	// Body is the display text.
	Body string `json:"body"`

	// Read indicates whether the user has seen this notification.
	// It only ever transitions from false to true.
	Read bool `json:"read"`

	// CreatedAt is when the notification was accepted into the feed.
	CreatedAt time.Time `json:"created_at"`

	// Meta carries source-specific correlation identifiers.
	Meta Meta `json:"meta,omitempty"`

	// CorrelationKey identifies the real-world event this record was
	// produced from.
	CorrelationKey string `json:"correlation_key,omitempty"`
}
