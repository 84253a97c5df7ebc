package sqlstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guilherme-santos/compasssync/internal"
)

func TestAddUser(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t)
	u := newUser(t, s)
	assert.NotEmpty(t, u.ID)

	again := &internal.User{Email: u.Email, Platform: "google", Auth: "new"}
	require.NoError(t, s.AddUser(ctx, again))
	assert.Equal(t, u.ID, again.ID)

	got, err := s.UserByEmail(ctx, u.Email)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Auth)
	assert.Equal(t, internal.ImportIdle, got.ImportStatus)

	_, err = s.User(ctx, "missing")
	assert.True(t, errors.Is(err, internal.ErrNotFound))
}

func TestTransitionImportStatus(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t)
	u := newUser(t, s)

	ok, err := s.TransitionImportStatus(ctx, u.ID, internal.CanStart, internal.ImportImporting, "")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.TransitionImportStatus(ctx, u.ID, internal.CanStart, internal.ImportImporting, "")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetImportStatus(ctx, u.ID, internal.ImportErrored, "provider down"))
	got, err := s.User(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, internal.ImportErrored, got.ImportStatus)
	assert.Equal(t, "provider down", got.ImportReason)

	ok, err = s.TransitionImportStatus(ctx, u.ID, internal.CanRestart, internal.ImportRestart, "")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.TransitionImportStatus(ctx, u.ID, nil, internal.ImportIdle, "")
	assert.True(t, errors.Is(err, internal.ErrValidation))

	err = s.SetImportStatus(ctx, "missing", internal.ImportIdle, "")
	assert.True(t, errors.Is(err, internal.ErrNotFound))
}

func TestReclaimStaleImport(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t)
	u := newUser(t, s)
	now := time.Now()

	err := s.TouchImport(ctx, u.ID, now)
	require.True(t, errors.Is(err, internal.ErrNotFound))

	ok, err := s.TransitionImportStatus(ctx, u.ID, internal.CanStart, internal.ImportImporting, "")
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.User(ctx, u.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, now, got.ImportHeartbeat, 2*time.Second)

	// a live import is left alone
	ok, err = s.ReclaimStaleImport(ctx, u.ID, now.Add(-time.Minute), internal.ImportErrored, "stale")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.TouchImport(ctx, u.ID, now.Add(-time.Hour)))
	ok, err = s.ReclaimStaleImport(ctx, u.ID, now.Add(-time.Minute), internal.ImportErrored, "stale")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err = s.User(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, internal.ImportErrored, got.ImportStatus)
	assert.Equal(t, "stale", got.ImportReason)

	ok, err = s.ReclaimStaleImport(ctx, u.ID, now.Add(time.Hour), internal.ImportErrored, "stale")
	require.NoError(t, err)
	assert.False(t, ok)
}
