package credentials

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthContext_Validate(t *testing.T) {
	var nilCtx *AuthContext
	assert.ErrorIs(t, nilCtx.Validate(), ErrNotAuthenticated)
	assert.ErrorIs(t, (&AuthContext{}).Validate(), ErrNotAuthenticated)
	assert.ErrorIs(t, NewAuthContext("tok", "", "").Validate(), ErrNotAuthenticated)
	assert.NoError(t, NewAuthContext("tok", "5", "alice").Validate())
}

func TestStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")
	store, err := NewStore(path)
	require.NoError(t, err)

	empty, err := store.Load()
	require.NoError(t, err)
	assert.Error(t, empty.Validate())

	require.NoError(t, store.Save(NewAuthContext("tok", "5", "alice")))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok", loaded.Token())
	assert.Equal(t, "5", loaded.UserID().String())
	assert.Equal(t, "alice", loaded.Username())

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
