package sqlstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/guilherme-santos/compasssync/internal"
)

const userColumns = `id, email, platform, auth, import_status, import_reason, import_heartbeat, created_at`

// AddUser creates the user or refreshes the credentials of an existing one,
// matched by email. The import status of an existing user is kept.
func (s *Storage) AddUser(ctx context.Context, u *internal.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.ImportStatus == "" {
		u.ImportStatus = internal.ImportIdle
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	var id string
	err := s.get(ctx, &id, `
		INSERT INTO users (id, email, platform, auth, import_status, import_reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (email) DO UPDATE SET
			platform = excluded.platform,
			auth = excluded.auth
		RETURNING id
	`, u.ID, u.Email, u.Platform, u.Auth, u.ImportStatus.String(), u.ImportReason, formatTime(u.CreatedAt))
	if err != nil {
		return internal.StoreErr("add user", err)
	}
	u.ID = id
	return nil
}

func (s *Storage) User(ctx context.Context, id string) (*internal.User, error) {
	var row User
	err := s.get(ctx, &row, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if err != nil {
		return nil, notFound("user", err)
	}
	return row.Convert(), nil
}

func (s *Storage) UserByEmail(ctx context.Context, email string) (*internal.User, error) {
	var row User
	err := s.get(ctx, &row, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	if err != nil {
		return nil, notFound("user by email", err)
	}
	return row.Convert(), nil
}

func (s *Storage) Users(ctx context.Context) ([]*internal.User, error) {
	var rows []User
	if err := s.selectAll(ctx, &rows, `SELECT `+userColumns+` FROM users ORDER BY email`); err != nil {
		return nil, internal.StoreErr("users", err)
	}
	res := make([]*internal.User, len(rows))
	for i, r := range rows {
		res[i] = r.Convert()
	}
	return res, nil
}

// TransitionImportStatus is a compare-and-set on the import status, done with
// a single conditional UPDATE so concurrent callers cannot both win. Every
// status write also renews the import heartbeat.
func (s *Storage) TransitionImportStatus(ctx context.Context, userID string, from []internal.ImportStatus, to internal.ImportStatus, reason string) (bool, error) {
	if len(from) == 0 {
		return false, internal.E(internal.ErrValidation, "transition import status", "no source status", nil)
	}
	statuses := make([]string, len(from))
	for i, st := range from {
		statuses[i] = st.String()
	}
	query, args, err := sqlx.In(`
		UPDATE users SET import_status = ?, import_reason = ?, import_heartbeat = ?
		WHERE id = ? AND import_status IN (?)
	`, to.String(), reason, time.Now().Unix(), userID, statuses)
	if err != nil {
		return false, internal.StoreErr("transition import status", err)
	}
	n, err := s.execN(ctx, "transition import status", query, args...)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Storage) SetImportStatus(ctx context.Context, userID string, status internal.ImportStatus, reason string) error {
	n, err := s.execN(ctx, "set import status", `
		UPDATE users SET import_status = ?, import_reason = ?, import_heartbeat = ? WHERE id = ?
	`, status.String(), reason, time.Now().Unix(), userID)
	if err != nil {
		return err
	}
	if n == 0 {
		return internal.E(internal.ErrNotFound, "set import status", userID, nil)
	}
	return nil
}

// TouchImport renews the heartbeat of a running import.
func (s *Storage) TouchImport(ctx context.Context, userID string, at time.Time) error {
	n, err := s.execN(ctx, "touch import", `
		UPDATE users SET import_heartbeat = ? WHERE id = ? AND import_status = ?
	`, at.Unix(), userID, internal.ImportImporting.String())
	if err != nil {
		return err
	}
	if n == 0 {
		return internal.E(internal.ErrNotFound, "touch import", userID+" is not importing", nil)
	}
	return nil
}

// ReclaimStaleImport moves an import whose heartbeat is older than before to
// status to. It reports whether it did.
func (s *Storage) ReclaimStaleImport(ctx context.Context, userID string, before time.Time, to internal.ImportStatus, reason string) (bool, error) {
	n, err := s.execN(ctx, "reclaim stale import", `
		UPDATE users SET import_status = ?, import_reason = ?, import_heartbeat = ?
		WHERE id = ? AND import_status = ? AND import_heartbeat < ?
	`, to.String(), reason, time.Now().Unix(), userID, internal.ImportImporting.String(), before.Unix())
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
