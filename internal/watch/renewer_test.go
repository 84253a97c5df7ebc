package watch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guilherme-santos/compasssync/internal"
)

func TestNewRenewer(t *testing.T) {
	e := newEnv(t)

	_, err := NewRenewer(nil, e.manager, "every hour", time.Hour)
	assert.True(t, errors.Is(err, internal.ErrValidation))

	r, err := NewRenewer(nil, e.manager, "@every 1h", time.Hour)
	require.NoError(t, err)
	r.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Stop(ctx)
}

func TestRenewerRun(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	old, err := e.manager.Start(ctx, e.user.ID, "primary")
	require.NoError(t, err)
	e.manager.now = func() time.Time { return now.Add(DefaultTTL - time.Hour) }

	r, err := NewRenewer(nil, e.manager, "@every 1h", 2*time.Hour)
	require.NoError(t, err)
	r.run()

	cur, err := e.store.FindSyncCursor(ctx, internal.EventsCursor(e.user.ID, "primary"))
	require.NoError(t, err)
	assert.NotEqual(t, old.ChannelID, cur.ChannelID)
	assert.Equal(t, []string{old.ChannelID}, e.provider.Stopped)
}
