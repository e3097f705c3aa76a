package credential

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_TokenLifecycle(t *testing.T) {
	s := New(keyring.NewArrayKeyring(nil))

	_, err := s.Token("u1")
	assert.ErrorIs(t, err, ErrNoToken)

	require.NoError(t, s.SetToken("u1", "abc"))
	require.NoError(t, s.SetToken("u2", "xyz"))

	tok, err := s.Token("u1")
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	require.NoError(t, s.DeleteToken("u1"))
	require.NoError(t, s.DeleteToken("u1"))

	_, err = s.Token("u1")
	assert.ErrorIs(t, err, ErrNoToken)

	tok, err = s.Token("u2")
	require.NoError(t, err)
	assert.Equal(t, "xyz", tok)
}
