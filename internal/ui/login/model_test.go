package login

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/carfeed/internal/auth"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"https://api.example.com", false},
		{"http://localhost:8080", false},
		{"", true},
		{"   ", true},
		{"api.example.com", true},
		{"ftp://api.example.com", true},
		{"https://", true},
	}
	for _, tt := range tests {
		err := validateURL(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
		} else {
			assert.NoError(t, err, tt.in)
		}
	}
}

func TestValidateToken(t *testing.T) {
	tok, err := auth.GenerateToken("secret", "u1", time.Hour)
	require.NoError(t, err)

	assert.NoError(t, validateToken(tok))
	assert.NoError(t, validateToken("  "+tok+"\n"))
	assert.Error(t, validateToken(""))
	assert.Error(t, validateToken("not-a-token"))
	assert.Error(t, validateToken("a..c"))
}

func TestValidateRequired(t *testing.T) {
	v := validateRequired("User ID")
	assert.NoError(t, v("u1"))
	err := v(" ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "User ID")
}

func TestModel_ResultBeforeCompletion(t *testing.T) {
	m := New(Credentials{UserID: "u1", BaseURL: "http://localhost:8080"}, 80)
	_, ok := m.Result()
	assert.False(t, ok)
	assert.Contains(t, m.View(), "carfeed login")
}

func TestModel_CtrlCAborts(t *testing.T) {
	m := New(Credentials{}, 80)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	_, ok := next.(Model).Result()
	assert.False(t, ok)
	assert.Empty(t, next.View())
}
