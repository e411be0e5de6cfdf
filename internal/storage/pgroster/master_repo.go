package pgroster

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/wavecheck/wavecheck/internal/models"
)

const masterColumns = `id, user_id, name, badge_id, company_name, transporter_id`

func scanMaster(rows pgx.Rows, stationID string) (models.MasterDriver, error) {
	var m models.MasterDriver
	var badge *string
	err := rows.Scan(&m.ID, &m.UserID, &m.Name, &badge, &m.CompanyName, &m.TransporterID)
	if err != nil {
		return m, err
	}
	m.StationID = stationID
	if badge != nil {
		m.BadgeID = *badge
	}
	return m, nil
}

func (s *Storage) ListMaster(ctx context.Context, stationID string) ([]models.MasterDriver, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+masterColumns+`
FROM master_drivers
WHERE station_id = $1
ORDER BY created_at, id
`, stationID)
	if err != nil {
		return nil, errors.Wrap(err, "select master")
	}
	defer rows.Close()

	out := []models.MasterDriver{}
	for rows.Next() {
		m, err := scanMaster(rows, stationID)
		if err != nil {
			return nil, errors.Wrap(err, "scan master")
		}
		out = append(out, m)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) FindMasterByTransporter(ctx context.Context, stationID, transporterID string) (*models.MasterDriver, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+masterColumns+`
FROM master_drivers
WHERE station_id = $1 AND transporter_id = $2
ORDER BY created_at
LIMIT 1
`, stationID, transporterID)
	if err != nil {
		return nil, errors.Wrap(err, "select master by transporter")
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return nil, errors.Wrap(rows.Err(), "rows")
		}
		return nil, ErrNotFound
	}
	m, err := scanMaster(rows, stationID)
	if err != nil {
		return nil, errors.Wrap(err, "scan master")
	}
	return &m, nil
}

func (s *Storage) FindMasterByBadge(ctx context.Context, stationID, badgeID string) (*models.MasterDriver, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+masterColumns+`
FROM master_drivers
WHERE station_id = $1 AND badge_id = $2
ORDER BY created_at
LIMIT 1
`, stationID, badgeID)
	if err != nil {
		return nil, errors.Wrap(err, "select master by badge")
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return nil, errors.Wrap(rows.Err(), "rows")
		}
		return nil, ErrNotFound
	}
	m, err := scanMaster(rows, stationID)
	if err != nil {
		return nil, errors.Wrap(err, "scan master")
	}
	return &m, nil
}

func (s *Storage) CreateMaster(ctx context.Context, stationID string, in models.MasterCreateInput) (*models.MasterDriver, error) {
	m := models.MasterDriver{
		ID:            uuid.NewString(),
		StationID:     stationID,
		UserID:        in.UserID,
		Name:          in.Name,
		BadgeID:       in.BadgeID,
		CompanyName:   in.CompanyName,
		TransporterID: in.TransporterID,
	}
	now := time.Now().UTC()
	_, err := s.db.Exec(ctx, `
INSERT INTO master_drivers (id, station_id, user_id, name, badge_id, company_name, transporter_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
`, m.ID, stationID, m.UserID, m.Name, nullIfEmpty(m.BadgeID), m.CompanyName, m.TransporterID, now)
	if err != nil {
		return nil, errors.Wrap(err, "insert master")
	}
	return &m, nil
}

// CreateMasterBatch commits all entries in one transaction. Bulk replace
// runs this before the roster batch so a roster row never references a
// master entry that failed to land.
func (s *Storage) CreateMasterBatch(ctx context.Context, stationID string, ins []models.MasterCreateInput) error {
	if len(ins) == 0 {
		return nil
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, in := range ins {
		_, err := tx.Exec(ctx, `
INSERT INTO master_drivers (id, station_id, user_id, name, badge_id, company_name, transporter_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
`, uuid.NewString(), stationID, in.UserID, in.Name, nullIfEmpty(in.BadgeID), in.CompanyName, in.TransporterID, now)
		if err != nil {
			return errors.Wrap(err, "insert master batch")
		}
	}

	return errors.Wrap(tx.Commit(ctx), "commit tx")
}

// UpdateMasterByTransporter applies the same field edits that were just made
// to a roster row onto the matching master entry.
func (s *Storage) UpdateMasterByTransporter(ctx context.Context, stationID, transporterID string, upd DriverFieldUpdates) error {
	tag, err := s.db.Exec(ctx, `
UPDATE master_drivers
SET name = COALESCE($3, name),
    badge_id = COALESCE($4, badge_id),
    updated_at = now()
WHERE station_id = $1 AND transporter_id = $2
`, stationID, transporterID, upd.Name, upd.BadgeID)
	if err != nil {
		return errors.Wrap(err, "update master")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Storage) DeleteMaster(ctx context.Context, stationID, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM master_drivers WHERE station_id = $1 AND id = $2`, stationID, id)
	if err != nil {
		return errors.Wrap(err, "delete master")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Storage) ResetMaster(ctx context.Context, stationID string) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM master_drivers WHERE station_id = $1`, stationID)
	if err != nil {
		return 0, errors.Wrap(err, "reset master")
	}
	return tag.RowsAffected(), nil
}
