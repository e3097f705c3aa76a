package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCorrelationKey_UsesIdentifyingMeta(t *testing.T) {
	tests := []struct {
		name string
		typ  NotificationType
		meta Meta
		want string
	}{
		{"message", NotificationTypeMessage, Meta{MetaMessageID: "m1"}, "message:m1"},
		{"car", NotificationTypeCar, Meta{MetaCarID: "c1"}, "car:c1"},
		{"status", NotificationTypeStatus, Meta{MetaCarID: "c1", MetaStatus: "Approved"}, "status:c1:Approved"},
		{"system", NotificationTypeSystem, Meta{MetaSystemID: "maint-1"}, "system:maint-1"},
		{"status with separator in car id", NotificationTypeStatus, Meta{MetaCarID: "a:b", MetaStatus: "c"}, "status:a%3Ab:c"},
		{"status with separator in status", NotificationTypeStatus, Meta{MetaCarID: "a", MetaStatus: "b:c"}, "status:a:b%3Ac"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CorrelationKey(tt.typ, "title", "body", tt.meta))
		})
	}
}

func TestCorrelationKey_StatusPartsAreUnambiguous(t *testing.T) {
	pairs := [][2]Meta{
		{{MetaCarID: "a", MetaStatus: "b:c"}, {MetaCarID: "a:b", MetaStatus: "c"}},
		{{MetaCarID: "a%3A", MetaStatus: "b"}, {MetaCarID: "a:", MetaStatus: "b"}},
		{{MetaCarID: "a%", MetaStatus: "3Ab"}, {MetaCarID: "a", MetaStatus: "%3Ab"}},
	}
	for _, p := range pairs {
		assert.NotEqual(t,
			CorrelationKey(NotificationTypeStatus, "t", "b", p[0]),
			CorrelationKey(NotificationTypeStatus, "t", "b", p[1]),
		)
	}
}

func TestCorrelationKey_StatusIgnoresPreviousStatus(t *testing.T) {
	a := CorrelationKey(NotificationTypeStatus, "a", "b", Meta{
		MetaCarID: "c1", MetaStatus: "Approved", MetaPreviousStatus: "Pending",
	})
	b := CorrelationKey(NotificationTypeStatus, "x", "y", Meta{
		MetaCarID: "c1", MetaStatus: "Approved",
	})
	assert.Equal(t, a, b, "push and poll observe the same transition")
}

func TestCorrelationKey_FallsBackToContentHash(t *testing.T) {
	// Status without a status value is malformed and must still get a key.
	k1 := CorrelationKey(NotificationTypeStatus, "Listing updated", "now live", Meta{MetaCarID: "c1"})
	k2 := CorrelationKey(NotificationTypeStatus, "Listing updated", "now live", nil)
	k3 := CorrelationKey(NotificationTypeStatus, "Listing updated", "now sold", nil)
	k4 := CorrelationKey(NotificationTypeMessage, "Listing updated", "now live", nil)

	assert.True(t, strings.HasPrefix(k1, "hash:"))
	assert.Len(t, k1, len("hash:")+32)
	assert.Equal(t, k1, k2, "hash ignores meta")
	assert.NotEqual(t, k2, k3)
	assert.NotEqual(t, k2, k4, "type participates in the hash")
}

func TestChangeEvent_Key(t *testing.T) {
	ev := NewChangeEvent(NotificationTypeCar, "New listing", "", Meta{MetaCarID: "c9"}, OriginPush)
	assert.Equal(t, "car:c9", ev.CorrelationKey)

	bare := ChangeEvent{Type: NotificationTypeCar, Meta: Meta{MetaCarID: "c9"}}
	assert.Equal(t, "car:c9", bare.Key())
}

func TestNotificationType_Valid(t *testing.T) {
	assert.True(t, NotificationTypeStatus.Valid())
	assert.False(t, NotificationType("promo").Valid())
}

func TestMeta_Clone(t *testing.T) {
	var nilMeta Meta
	assert.Nil(t, nilMeta.Clone())

	m := Meta{MetaCarID: "c1"}
	c := m.Clone()
	c[MetaCarID] = "c2"
	assert.Equal(t, "c1", m[MetaCarID])
}

func TestResource_DisplayName(t *testing.T) {
	assert.Equal(t, "Clean daily driver", Resource{ID: "1", Title: "Clean daily driver"}.DisplayName())
	assert.Equal(t, "2019 Toyota Corolla", Resource{ID: "1", Year: 2019, Make: "Toyota", Model: "Corolla"}.DisplayName())
	assert.Equal(t, "Listing 7", Resource{ID: "7"}.DisplayName())
}

func TestNewSnapshot_SkipsMissingIDs(t *testing.T) {
	s := NewSnapshot([]Resource{{ID: "a", Status: "Pending"}, {Status: "Approved"}})
	assert.Len(t, s, 1)
	assert.Equal(t, "Pending", s["a"].Status)
}
