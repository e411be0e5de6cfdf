package pgroster

import (
	"context"

	"github.com/pkg/errors"

	"github.com/wavecheck/wavecheck/internal/models"
)

func (s *Storage) AppendAudit(ctx context.Context, e models.AuditEntry) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO audit_log (station_id, account, action, details, ts)
VALUES ($1,$2,$3,$4,$5)
`, nullIfEmpty(e.StationID), e.User, e.Action, e.Details, e.Timestamp)
	return errors.Wrap(err, "insert audit")
}

func (s *Storage) ListAudit(ctx context.Context, stationID string, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
SELECT id, COALESCE(station_id, ''), account, action, details, ts
FROM audit_log
WHERE $1 = '' OR station_id = $1
ORDER BY id DESC
LIMIT $2
`, stationID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select audit")
	}
	defer rows.Close()

	out := []models.AuditEntry{}
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.StationID, &e.User, &e.Action, &e.Details, &e.Timestamp); err != nil {
			return nil, errors.Wrap(err, "scan audit")
		}
		out = append(out, e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
