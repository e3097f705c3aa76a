package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Origin identifies which channel observed a change.
type Origin string

const (
	OriginPush Origin = "push"
	OriginPoll Origin = "poll"
)

// ChangeEvent is the normalized form of a detected change, produced by the
// push listener or the snapshot differ before the reconciler decides whether
// it becomes a notification.
type ChangeEvent struct {
	Type           NotificationType
	CorrelationKey string
	Title          string
	Body           string
	Meta           Meta
	Origin         Origin
}

// NewChangeEvent builds a ChangeEvent and derives its correlation key.
func NewChangeEvent(
	t NotificationType,
	title string,
	body string,
	meta Meta,
	origin Origin,
) ChangeEvent {
	return ChangeEvent{
		Type:           t,
		CorrelationKey: CorrelationKey(t, title, body, meta),
		Title:          title,
		Body:           body,
		Meta:           meta,
		Origin:         origin,
	}
}

// Key returns the event's correlation key, deriving it when unset.
func (e ChangeEvent) Key() string {
	if e.CorrelationKey != "" {
		return e.CorrelationKey
	}
	return CorrelationKey(e.Type, e.Title, e.Body, e.Meta)
}

// CorrelationKey derives a deterministic key identifying the real-world
// occurrence behind a change. Identifying meta fields are preferred; when the
// ones required for t are missing the key falls back to a content hash of
// (type, title, body).
func CorrelationKey(
	t NotificationType,
	title string,
	body string,
	meta Meta,
) string {
	switch t {
	case NotificationTypeMessage:
		if id := meta[MetaMessageID]; id != "" {
			return "message:" + id
		}
	case NotificationTypeCar:
		if id := meta[MetaCarID]; id != "" {
			return "car:" + id
		}
	case NotificationTypeStatus:
		carID, status := meta[MetaCarID], meta[MetaStatus]
		if carID != "" && status != "" {
			return "status:" + keyPart(carID) + ":" + keyPart(status)
		}
	case NotificationTypeSystem:
		if id := meta[MetaSystemID]; id != "" {
			return "system:" + id
		}
	}
	return contentKey(t, title, body)
}

// keyEscaper escapes the separator inside a multi-part key so that
// different tuples never join to the same key.
var keyEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

func keyPart(s string) string {
	return keyEscaper.Replace(s)
}

// contentKey hashes the display content of an event.
func contentKey(t NotificationType, title, body string) string {
	h := sha256.New()
	h.Write([]byte(t))
	h.Write([]byte{0})
	h.Write([]byte(title))
	h.Write([]byte{0})
	h.Write([]byte(body))
	return "hash:" + hex.EncodeToString(h.Sum(nil))[:32]
}
