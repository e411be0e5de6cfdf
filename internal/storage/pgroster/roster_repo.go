package pgroster

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/wavecheck/wavecheck/internal/models"
)

// Snapshot is the complete daily roster of one station, paired with the
// commit sequence it reflects.
type Snapshot struct {
	Seq     uint64
	Drivers []models.DriverRecord
}

const driverColumns = `id, transporter_id, badge_id, name, company_name, start_time, status, check_in_time`

// bumpSeq advances the station's commit counter inside the caller's
// transaction and returns the new value.
func bumpSeq(ctx context.Context, tx pgx.Tx, stationID string) (uint64, error) {
	var seq uint64
	err := tx.QueryRow(ctx, `
INSERT INTO station_changes (station_id, seq, changed_at)
VALUES ($1, 1, now())
ON CONFLICT (station_id)
DO UPDATE SET seq = station_changes.seq + 1, changed_at = now()
RETURNING seq
`, stationID).Scan(&seq)
	if err != nil {
		return 0, errors.Wrap(err, "bump seq")
	}
	return seq, nil
}

func scanDriver(rows pgx.Rows, stationID string) (models.DriverRecord, error) {
	var d models.DriverRecord
	var badge, checkIn *string
	err := rows.Scan(&d.ID, &d.TransporterID, &badge, &d.Name, &d.CompanyName, &d.StartTime, &d.Status, &checkIn)
	if err != nil {
		return d, err
	}
	d.StationID = stationID
	if badge != nil {
		d.BadgeID = *badge
	}
	if checkIn != nil {
		d.CheckInTime = *checkIn
	}
	return d, nil
}

// LoadSnapshot reads the full roster plus the station's current commit seq
// in one transaction. A row that fails to decode is skipped, not fatal:
// historical data is allowed to be partially malformed.
func (s *Storage) LoadSnapshot(ctx context.Context, stationID string) (*Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	snap := &Snapshot{Drivers: []models.DriverRecord{}}
	err = tx.QueryRow(ctx, `SELECT seq FROM station_changes WHERE station_id = $1`, stationID).Scan(&snap.Seq)
	if err != nil && err != pgx.ErrNoRows {
		return nil, errors.Wrap(err, "select seq")
	}

	rows, err := tx.Query(ctx, `
SELECT `+driverColumns+`
FROM roster
WHERE station_id = $1
ORDER BY created_at, id
`, stationID)
	if err != nil {
		return nil, errors.Wrap(err, "select roster")
	}
	defer rows.Close()

	for rows.Next() {
		d, err := scanDriver(rows, stationID)
		if err != nil {
			slog.Warn("skipping undecodable roster row", "station", stationID, "err", err)
			continue
		}
		snap.Drivers = append(snap.Drivers, d)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return snap, nil
}

func (s *Storage) GetDriver(ctx context.Context, stationID, id string) (*models.DriverRecord, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+driverColumns+`
FROM roster
WHERE station_id = $1 AND id = $2
`, stationID, id)
	if err != nil {
		return nil, errors.Wrap(err, "select driver")
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return nil, errors.Wrap(rows.Err(), "rows")
		}
		return nil, ErrNotFound
	}
	d, err := scanDriver(rows, stationID)
	if err != nil {
		return nil, errors.Wrap(err, "scan driver")
	}
	return &d, nil
}

// FindDriversByBadge matches any of the candidate badge representations.
// Callers pass both the raw scanned string and its canonical numeric form
// so records persisted with either representation are found.
func (s *Storage) FindDriversByBadge(ctx context.Context, stationID string, candidates []string) ([]*models.DriverRecord, error) {
	if len(candidates) == 0 {
		return []*models.DriverRecord{}, nil
	}
	rows, err := s.db.Query(ctx, `
SELECT `+driverColumns+`
FROM roster
WHERE station_id = $1 AND badge_id = ANY($2)
ORDER BY created_at, id
`, stationID, candidates)
	if err != nil {
		return nil, errors.Wrap(err, "select by badge")
	}
	defer rows.Close()

	out := []*models.DriverRecord{}
	for rows.Next() {
		d, err := scanDriver(rows, stationID)
		if err != nil {
			return nil, errors.Wrap(err, "scan driver")
		}
		out = append(out, &d)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// CreateDriver inserts one roster row and returns it with the assigned id,
// along with the new commit seq.
func (s *Storage) CreateDriver(ctx context.Context, stationID string, d models.DriverRecord) (*models.DriverRecord, uint64, error) {
	now := time.Now().UTC()
	d.ID = uuid.NewString()
	d.StationID = stationID

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, 0, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
INSERT INTO roster (id, station_id, transporter_id, badge_id, name, company_name, start_time, status, check_in_time, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
`, d.ID, stationID, d.TransporterID, nullIfEmpty(d.BadgeID), d.Name, d.CompanyName, d.StartTime, d.Status, nullIfEmpty(d.CheckInTime), now)
	if err != nil {
		return nil, 0, errors.Wrap(err, "insert driver")
	}

	seq, err := bumpSeq(ctx, tx, stationID)
	if err != nil {
		return nil, 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, 0, errors.Wrap(err, "commit tx")
	}
	return &d, seq, nil
}

// CheckInDriver transitions a record into a checked-in status as a single
// conditional write: the update applies only when the record is not already
// checked in, so two near-simultaneous scans cannot both win. Returns the
// record as stored after the attempt and whether this call applied the
// transition.
func (s *Storage) CheckInDriver(ctx context.Context, stationID, id, status, checkInTime string) (*models.DriverRecord, bool, uint64, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, 0, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
UPDATE roster
SET status = $3, check_in_time = $4, updated_at = now()
WHERE station_id = $1 AND id = $2
  AND status NOT IN ($5, $6)
`, stationID, id, status, checkInTime, models.StatusCheckedIn, models.StatusCheckedInNoBadge)
	if err != nil {
		return nil, false, 0, errors.Wrap(err, "conditional check-in")
	}

	if tag.RowsAffected() == 0 {
		// Either the record is gone or it was already checked in.
		_ = tx.Rollback(ctx)
		d, err := s.GetDriver(ctx, stationID, id)
		if err != nil {
			return nil, false, 0, err
		}
		return d, false, 0, nil
	}

	seq, err := bumpSeq(ctx, tx, stationID)
	if err != nil {
		return nil, false, 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, 0, errors.Wrap(err, "commit tx")
	}

	d, err := s.GetDriver(ctx, stationID, id)
	if err != nil {
		return nil, false, 0, err
	}
	return d, true, seq, nil
}

// MarkRescue sets On Rescue and clears the check-in stamp, keeping the
// "stamp present iff checked in" rule intact.
func (s *Storage) MarkRescue(ctx context.Context, stationID, id string) (uint64, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
UPDATE roster
SET status = $3, check_in_time = NULL, updated_at = now()
WHERE station_id = $1 AND id = $2
`, stationID, id, models.StatusOnRescue)
	if err != nil {
		return 0, errors.Wrap(err, "update status")
	}
	if tag.RowsAffected() == 0 {
		return 0, ErrNotFound
	}

	seq, err := bumpSeq(ctx, tx, stationID)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, errors.Wrap(err, "commit tx")
	}
	return seq, nil
}

// DriverFieldUpdates carries the editable roster fields; nil means keep.
type DriverFieldUpdates struct {
	Name    *string
	BadgeID *string
}

func (u DriverFieldUpdates) Empty() bool {
	return u.Name == nil && u.BadgeID == nil
}

func (s *Storage) UpdateDriverFields(ctx context.Context, stationID, id string, upd DriverFieldUpdates) (*models.DriverRecord, uint64, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, 0, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
UPDATE roster
SET name = COALESCE($3, name),
    badge_id = COALESCE($4, badge_id),
    updated_at = now()
WHERE station_id = $1 AND id = $2
`, stationID, id, upd.Name, upd.BadgeID)
	if err != nil {
		return nil, 0, errors.Wrap(err, "update fields")
	}
	if tag.RowsAffected() == 0 {
		return nil, 0, ErrNotFound
	}

	seq, err := bumpSeq(ctx, tx, stationID)
	if err != nil {
		return nil, 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, 0, errors.Wrap(err, "commit tx")
	}

	d, err := s.GetDriver(ctx, stationID, id)
	if err != nil {
		return nil, 0, err
	}
	return d, seq, nil
}

func (s *Storage) DeleteDriver(ctx context.Context, stationID, id string) (uint64, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `DELETE FROM roster WHERE station_id = $1 AND id = $2`, stationID, id)
	if err != nil {
		return 0, errors.Wrap(err, "delete driver")
	}
	if tag.RowsAffected() == 0 {
		return 0, ErrNotFound
	}

	seq, err := bumpSeq(ctx, tx, stationID)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, errors.Wrap(err, "commit tx")
	}
	return seq, nil
}

// WipeRoster deletes every roster row of a station as one batch.
// Bulk replace calls this first; it is safe to re-run after a failure.
func (s *Storage) WipeRoster(ctx context.Context, stationID string) (int64, uint64, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, 0, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `DELETE FROM roster WHERE station_id = $1`, stationID)
	if err != nil {
		return 0, 0, errors.Wrap(err, "wipe roster")
	}

	seq, err := bumpSeq(ctx, tx, stationID)
	if err != nil {
		return 0, 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, 0, errors.Wrap(err, "commit tx")
	}
	return tag.RowsAffected(), seq, nil
}

// InsertDrivers commits a batch of roster rows atomically. Ids are assigned
// here; the input order is preserved.
func (s *Storage) InsertDrivers(ctx context.Context, stationID string, drivers []models.DriverRecord) (uint64, error) {
	if len(drivers) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i := range drivers {
		d := &drivers[i]
		d.ID = uuid.NewString()
		d.StationID = stationID
		_, err := tx.Exec(ctx, `
INSERT INTO roster (id, station_id, transporter_id, badge_id, name, company_name, start_time, status, check_in_time, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
`, d.ID, stationID, d.TransporterID, nullIfEmpty(d.BadgeID), d.Name, d.CompanyName, d.StartTime, d.Status, nullIfEmpty(d.CheckInTime), now)
		if err != nil {
			return 0, errors.Wrap(err, "insert roster batch")
		}
	}

	seq, err := bumpSeq(ctx, tx, stationID)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, errors.Wrap(err, "commit tx")
	}
	return seq, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
