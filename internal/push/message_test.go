package push

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/carfeed/internal/model"
)

func TestTranslate_Table(t *testing.T) {
	tests := []struct {
		typ  string
		meta model.Meta
		want model.NotificationType
		key  string
	}{
		{TypeMessageReceived, model.Meta{model.MetaMessageID: "m1"}, model.NotificationTypeMessage, "message:m1"},
		{TypeListingCreated, model.Meta{model.MetaCarID: "c1"}, model.NotificationTypeCar, "car:c1"},
		{TypeListingStatusChanged, model.Meta{model.MetaCarID: "c1", model.MetaStatus: "Approved"}, model.NotificationTypeStatus, "status:c1:Approved"},
		{TypeSystemNotice, model.Meta{model.MetaSystemID: "s1"}, model.NotificationTypeSystem, "system:s1"},
	}

	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			ev, ok := Translate(Envelope{Type: tt.typ, Meta: tt.meta})
			require.True(t, ok)
			assert.Equal(t, tt.want, ev.Type)
			assert.Equal(t, tt.key, ev.CorrelationKey)
			assert.Equal(t, model.OriginPush, ev.Origin)
			assert.NotEmpty(t, ev.Title)
		})
	}
}

func TestTranslate_UnknownType(t *testing.T) {
	_, ok := Translate(Envelope{Type: "listing.deleted"})
	assert.False(t, ok)
	assert.False(t, KnownType("listing.deleted"))
	assert.True(t, KnownType(TypeSystemNotice))
}

func TestTranslate_MissingMetaFallsBackToHash(t *testing.T) {
	ev, ok := Translate(Envelope{Type: TypeListingStatusChanged, Title: "t", Body: "b"})
	require.True(t, ok)
	assert.Contains(t, ev.CorrelationKey, "hash:")
}

func TestTranslate_CopiesMeta(t *testing.T) {
	meta := model.Meta{model.MetaCarID: "c1"}
	ev, _ := Translate(Envelope{Type: TypeListingCreated, Meta: meta})
	meta[model.MetaCarID] = "changed"
	assert.Equal(t, "c1", ev.Meta[model.MetaCarID])
}

func TestBackoff(t *testing.T) {
	b := newBackoff(500*time.Millisecond, 2*time.Second)
	assert.Equal(t, "500ms", b.Next().String())
	assert.Equal(t, "1s", b.Next().String())
	assert.Equal(t, "2s", b.Next().String())
	assert.Equal(t, "2s", b.Next().String())
	b.Reset()
	assert.Equal(t, "500ms", b.Next().String())

	d := newBackoff(0, 0)
	assert.Equal(t, DefaultReconnectMin, d.Next())
}
