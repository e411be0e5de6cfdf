package pgroster

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS roster (
  id TEXT PRIMARY KEY,
  station_id TEXT NOT NULL,
  transporter_id TEXT NOT NULL DEFAULT '',
  badge_id TEXT NULL,
  name TEXT NOT NULL,
  company_name TEXT NOT NULL DEFAULT '',
  start_time TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL,
  check_in_time TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_roster_station ON roster(station_id)`,
		`CREATE INDEX IF NOT EXISTS idx_roster_station_badge ON roster(station_id, badge_id)`,
		`
CREATE TABLE IF NOT EXISTS master_drivers (
  id TEXT PRIMARY KEY,
  station_id TEXT NOT NULL,
  user_id TEXT NOT NULL DEFAULT '',
  name TEXT NOT NULL,
  badge_id TEXT NULL,
  company_name TEXT NOT NULL DEFAULT '',
  transporter_id TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_master_station ON master_drivers(station_id)`,
		// One master entry per transporter within a station. Rows imported
		// before the rule existed may lack a transporter id, hence the filter.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_master_station_transporter
  ON master_drivers(station_id, transporter_id)
  WHERE transporter_id <> '' AND transporter_id <> 'N/A'`,
		`
CREATE TABLE IF NOT EXISTS accounts (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL DEFAULT '',
  badge_id TEXT NULL,
  password_hash TEXT NOT NULL,
  role TEXT NOT NULL,
  stations TEXT[] NOT NULL DEFAULT '{}',
  created_at TIMESTAMPTZ NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS audit_log (
  id BIGSERIAL PRIMARY KEY,
  station_id TEXT NULL,
  account TEXT NOT NULL DEFAULT '',
  action TEXT NOT NULL,
  details TEXT NOT NULL DEFAULT '',
  ts BIGINT NOT NULL
)`,
		// Per-station commit counter. Every mutation bumps it inside its own
		// transaction; the value orders change-feed notifications.
		`
CREATE TABLE IF NOT EXISTS station_changes (
  station_id TEXT PRIMARY KEY,
  seq BIGINT NOT NULL DEFAULT 0,
  changed_at TIMESTAMPTZ NOT NULL
)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
