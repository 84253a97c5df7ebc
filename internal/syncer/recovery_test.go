package syncer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guilherme-santos/compasssync/internal"
)

func TestStaleImportIsReclaimed(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.provider.FailOnce["page-1"] = errors.New("connection reset")
	_, err := e.syncer.Start(ctx, e.user.ID, internal.Date{})
	require.Error(t, err)

	// the process was killed halfway: the status is left importing and the
	// heartbeat stops
	require.NoError(t, e.store.SetImportStatus(ctx, e.user.ID, internal.ImportImporting, ""))
	require.NoError(t, e.store.TouchImport(ctx, e.user.ID, time.Now().Add(-time.Hour)))

	require.NoError(t, e.syncer.Restart(ctx, e.user.ID, false))
	status, reason, err := e.syncer.Status(ctx, e.user.ID)
	require.NoError(t, err)
	assert.Equal(t, internal.ImportRestart, status)
	assert.Equal(t, "stale import reclaimed", reason)

	res, err := e.syncer.Start(ctx, e.user.ID, internal.Date{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pages)
	assert.Len(t, e.events(t), 3)

	t.Run("start takes over directly", func(t *testing.T) {
		require.NoError(t, e.store.SetImportStatus(ctx, e.user.ID, internal.ImportImporting, ""))
		require.NoError(t, e.store.TouchImport(ctx, e.user.ID, time.Now().Add(-time.Hour)))

		res, err := e.syncer.Start(ctx, e.user.ID, internal.Date{})
		require.NoError(t, err)
		assert.Zero(t, res.Pages)

		status, _, err := e.syncer.Status(ctx, e.user.ID)
		require.NoError(t, err)
		assert.Equal(t, internal.ImportCompleted, status)
	})
}

func TestShutdownInterruptsBackgroundImports(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.provider.Hold = make(chan struct{})

	require.NoError(t, e.syncer.StartAsync(ctx, e.user.ID, internal.Date{}))

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, e.syncer.Shutdown(stopCtx))

	status, reason, err := e.syncer.Status(ctx, e.user.ID)
	require.NoError(t, err)
	assert.Equal(t, internal.ImportErrored, status)
	assert.Contains(t, reason, "import interrupted")

	require.NoError(t, e.syncer.Restart(ctx, e.user.ID, false))
}

func TestSyncCalendarKeepsTokenUntilLastPage(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	_, err := e.syncer.Start(ctx, e.user.ID, internal.Date{})
	require.NoError(t, err)
	key := internal.EventsCursor(e.user.ID, "primary")

	e.provider.Changes["sync-primary"] = &internal.Page{
		Items:         []*internal.ProviderEvent{{ID: "s1", Status: internal.StatusCancelled}},
		NextPageToken: "p2",
	}
	e.provider.Changes["sync-primary#p2"] = &internal.Page{NextSyncToken: "sync-2"}
	e.provider.FailOnce["sync-primary#p2"] = errors.New("backend error")

	_, err = e.syncer.SyncCalendar(ctx, e.user.ID, "primary")
	require.Error(t, err)
	cur, err := e.store.FindSyncCursor(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "sync-primary", cur.NextSyncToken)
	assert.Len(t, e.events(t), 2)

	// the first page comes again and changes nothing
	res, err := e.syncer.SyncCalendar(ctx, e.user.ID, "primary")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, 1, res.Skipped)
	assert.Len(t, e.events(t), 2)

	cur, err = e.store.FindSyncCursor(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "sync-2", cur.NextSyncToken)
}
