package pgroster

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/wavecheck/wavecheck/internal/models"
)

const accountColumns = `id, email, name, badge_id, password_hash, role, stations`

func (s *Storage) scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	var badge *string
	err := row.Scan(&a.ID, &a.Email, &a.Name, &badge, &a.PasswordHash, &a.Role, &a.Stations)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan account")
	}
	if badge != nil {
		a.BadgeID = *badge
	}
	return &a, nil
}

func (s *Storage) AccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	row := s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	return s.scanAccount(row)
}

func (s *Storage) AccountByBadge(ctx context.Context, badgeID string) (*models.Account, error) {
	row := s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE badge_id = $1`, badgeID)
	return s.scanAccount(row)
}

func (s *Storage) CreateAccount(ctx context.Context, a models.Account) (*models.Account, error) {
	a.ID = uuid.NewString()
	_, err := s.db.Exec(ctx, `
INSERT INTO accounts (id, email, name, badge_id, password_hash, role, stations, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, a.ID, a.Email, a.Name, nullIfEmpty(a.BadgeID), a.PasswordHash, a.Role, a.Stations, time.Now().UTC())
	if err != nil {
		return nil, errors.Wrap(err, "insert account")
	}
	return &a, nil
}
