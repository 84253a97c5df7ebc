package sqlstore

func (s Storage) RunMigrations() error {
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR NOT NULL PRIMARY KEY,
		email VARCHAR NOT NULL,
		platform VARCHAR NOT NULL DEFAULT '',
		auth TEXT NOT NULL DEFAULT '',
		import_status VARCHAR NOT NULL DEFAULT 'idle',
		import_reason TEXT NOT NULL DEFAULT '',
		import_heartbeat BIGINT NOT NULL DEFAULT 0,
		created_at VARCHAR NOT NULL DEFAULT ''
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_email ON users (email)`,
	`CREATE TABLE IF NOT EXISTS events (
		id VARCHAR NOT NULL PRIMARY KEY,
		user_id VARCHAR NOT NULL,
		calendar_id VARCHAR NOT NULL DEFAULT '',
		g_event_id VARCHAR NOT NULL DEFAULT '',
		g_recurring_event_id VARCHAR NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		start_date VARCHAR NOT NULL,
		start_ts BIGINT NOT NULL,
		end_date VARCHAR NOT NULL,
		time_zone VARCHAR NOT NULL DEFAULT '',
		is_all_day BOOLEAN NOT NULL DEFAULT FALSE,
		is_someday BOOLEAN NOT NULL DEFAULT FALSE,
		priority VARCHAR NOT NULL DEFAULT 'unassigned',
		origin VARCHAR NOT NULL DEFAULT '',
		recurrence_rule TEXT NOT NULL DEFAULT '',
		recurrence_event_id VARCHAR NOT NULL DEFAULT '',
		updated_at VARCHAR NOT NULL DEFAULT ''
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS events_user_g_event_id
		ON events (user_id, g_event_id) WHERE g_event_id <> ''`,
	`CREATE INDEX IF NOT EXISTS events_series
		ON events (user_id, recurrence_event_id, start_ts)`,
	`CREATE TABLE IF NOT EXISTS sync_cursors (
		user_id VARCHAR NOT NULL,
		resource VARCHAR NOT NULL,
		calendar_id VARCHAR NOT NULL DEFAULT '',
		next_sync_token TEXT NOT NULL DEFAULT '',
		next_page_token TEXT NOT NULL DEFAULT '',
		last_synced_at VARCHAR NOT NULL DEFAULT '',
		channel_id VARCHAR NOT NULL DEFAULT '',
		resource_id VARCHAR NOT NULL DEFAULT '',
		expiration BIGINT NOT NULL DEFAULT 0,
		pending_events TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (user_id, resource, calendar_id)
	)`,
	`CREATE INDEX IF NOT EXISTS sync_cursors_channel ON sync_cursors (channel_id)`,
}
