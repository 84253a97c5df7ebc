package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/guilherme-santos/compasssync/internal"
	"github.com/guilherme-santos/compasssync/internal/httpapi"
	"github.com/guilherme-santos/compasssync/internal/notify"
	"github.com/guilherme-santos/compasssync/internal/providertest"
	"github.com/guilherme-santos/compasssync/internal/sqlstore"
	"github.com/guilherme-santos/compasssync/internal/syncer"
)

var start = time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)

type env struct {
	store    *sqlstore.Storage
	provider *providertest.Provider
	hub      *notify.Hub
	syncer   *syncer.Syncer
	server   *httpapi.Server
	user     *internal.User
}

func newEnv(t *testing.T) *env {
	t.Helper()
	s, err := sqlstore.Open(sqlstore.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	user := &internal.User{Email: "jane@example.com", Platform: providertest.Platform}
	require.NoError(t, s.AddUser(context.Background(), user))

	p := providertest.New("primary")
	p.Pages["primary"] = []*internal.Page{{Items: []*internal.ProviderEvent{
		{
			ID: "g1", Status: internal.StatusConfirmed, Summary: "standup",
			Start: start, End: start.Add(30 * time.Minute),
			Recurrence: []string{"RRULE:FREQ=DAILY;COUNT=3"},
		},
		{
			ID: "s1", Status: internal.StatusConfirmed, Summary: "lunch",
			Start: start.Add(3 * time.Hour), End: start.Add(4 * time.Hour),
		},
	}}}
	hub := notify.NewHub(nil)
	sy := syncer.New(internal.DiscardLogger(), providertest.Mux{P: p}, s, hub)
	srv := httpapi.NewServer(internal.DiscardLogger(), sy, hub, httpapi.ServerConfig{WebhookToken: "s3cret"})
	return &env{store: s, provider: p, hub: hub, syncer: sy, server: srv, user: user}
}

type request struct {
	method  string
	path    string
	headers map[string]string
}

func (e *env) do(t *testing.T, req request) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(req.method, req.path, nil)
	for k, v := range req.headers {
		r.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, r)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func (e *env) waitStatus(t *testing.T, want internal.ImportStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		status, _, err := e.syncer.Status(context.Background(), e.user.ID)
		return err == nil && status == want
	}, 5*time.Second, 10*time.Millisecond)
}

func TestHealth(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, request{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestImport(t *testing.T) {
	e := newEnv(t)
	path := "/v1/users/" + e.user.ID + "/import"

	rec := e.do(t, request{method: http.MethodGet, path: path})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "idle", decode(t, rec)["status"])

	rec = e.do(t, request{method: http.MethodPost, path: path + "?from=2025-01-01"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	e.waitStatus(t, internal.ImportCompleted)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), e.provider.Lists[0].TimeMin.UTC())

	events, err := e.store.Events(context.Background(), e.user.ID)
	require.NoError(t, err)
	assert.Len(t, events, 4)

	rec = e.do(t, request{method: http.MethodPost, path: path, headers: map[string]string{"X-Correlation-Id": "corr_1"}})
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "conflict", body["code"])
	assert.Contains(t, body["message"], "restart")
	assert.Equal(t, "corr_1", body["correlationId"])

	rec = e.do(t, request{method: http.MethodPost, path: path + "/restart?full=true"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "restart", decode(t, rec)["status"])

	rec = e.do(t, request{method: http.MethodPost, path: path + "?from=yesterday"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportUnknownUser(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, request{method: http.MethodGet, path: "/v1/users/nobody/import"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, request{method: http.MethodPost, path: "/v1/users/nobody/import"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotification(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	path := "/v1/notifications/google"

	_, err := e.syncer.Start(ctx, e.user.ID, internal.Date{})
	require.NoError(t, err)
	key := internal.EventsCursor(e.user.ID, "primary")
	require.NoError(t, e.store.UpdateWatch(ctx, key, internal.WatchChannel{
		ChannelID: "ch-1", ResourceID: "res-1", Expiration: start.AddDate(0, 0, 7),
	}))
	e.provider.Changes["sync-primary"] = &internal.Page{
		Items:         []*internal.ProviderEvent{{ID: "s1", Status: internal.StatusCancelled}},
		NextSyncToken: "sync-2",
	}
	headers := func(state, token string) map[string]string {
		return map[string]string{
			httpapi.HeaderChannelID:     "ch-1",
			httpapi.HeaderResourceID:    "res-1",
			httpapi.HeaderResourceState: state,
			httpapi.HeaderChannelToken:  token,
		}
	}

	rec := e.do(t, request{method: http.MethodPost, path: path})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, request{method: http.MethodPost, path: path, headers: headers("exists", "wrong")})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	lists := len(e.provider.Lists)
	rec = e.do(t, request{method: http.MethodPost, path: path, headers: headers(syncer.ResourceStateSync, "s3cret")})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, e.provider.Lists, lists)

	rec = e.do(t, request{method: http.MethodPost, path: path, headers: headers("exists", "s3cret")})
	assert.Equal(t, http.StatusOK, rec.Code)

	events, err := e.store.Events(ctx, e.user.ID)
	require.NoError(t, err)
	assert.Len(t, events, 3)
	cur, err := e.store.FindSyncCursor(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "sync-2", cur.NextSyncToken)
}

func TestEventsWebsocket(t *testing.T) {
	e := newEnv(t)
	srv := httptest.NewServer(e.server)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	base := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, resp, err := websocket.Dial(ctx, base+"/v1/users/nobody/events/ws", nil)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	}

	c, _, err := websocket.Dial(ctx, base+"/v1/users/"+e.user.ID+"/events/ws", nil)
	require.NoError(t, err)
	defer c.CloseNow()
	require.Eventually(t, func() bool { return e.hub.Subscribers(e.user.ID) == 1 }, time.Second, 10*time.Millisecond)

	_, err = e.syncer.Start(ctx, e.user.ID, internal.Date{})
	require.NoError(t, err)

	var msg notify.Message
	require.NoError(t, wsjson.Read(ctx, c, &msg))
	assert.Equal(t, notify.Message{Type: notify.TypeEventsChanged, UserID: e.user.ID}, msg)
}
