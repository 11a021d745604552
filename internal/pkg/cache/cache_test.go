package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anicoll/homgar-integration/internal/pkg/homgar"
)

func TestFile_SaveThenLoad(t *testing.T) {
	f, err := New(filepath.Join(t.TempDir(), "nested", "session.json"))
	require.NoError(t, err)

	state := homgar.SessionState{
		Email:     "user@example.com",
		Token:     "token-1",
		ExpiresAt: time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, f.Save(state))

	got, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, state.Email, got.Email)
	assert.Equal(t, state.Token, got.Token)
	assert.True(t, state.ExpiresAt.Equal(got.ExpiresAt))
}

func TestFile_MissingOrCorrupt(t *testing.T) {
	dir := t.TempDir()

	f, err := New(filepath.Join(dir, "absent.json"))
	require.NoError(t, err)
	_, err = f.Load()
	assert.ErrorIs(t, err, os.ErrNotExist)

	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{not json"), 0o600))
	f, err = New(corrupt)
	require.NoError(t, err)
	got, err := f.Load()
	assert.Error(t, err)
	assert.Equal(t, homgar.SessionState{}, got)
}
