// Package sqlite holds the SQLite-backed repositories for profiles, bans and attributions.
// Every method issues a single statement, so no transaction spans a caller's suspension point.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	apperrors "github.com/open-builders/feedback-relay/internal/common/errors"
	domain "github.com/open-builders/feedback-relay/internal/domain/profile"
)

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// ProfileRepository stores profile snapshots keyed by Telegram user ID.
type ProfileRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db, now: time.Now}
}

// Upsert inserts the profile or overwrites display name and handle, and returns the
// stored row. created_at of an existing row is never touched; updated_at strictly
// increases on every write, so two snapshots of one user are always ordered.
func (r *ProfileRepository) Upsert(ctx context.Context, p *domain.Profile) (*domain.Profile, error) {
	const q = `
INSERT INTO profiles (user_id, display_name, handle, created_at, updated_at)
VALUES (?, ?, NULLIF(?, ''), ?, ?)
ON CONFLICT (user_id) DO UPDATE SET
	display_name = excluded.display_name,
	handle       = excluded.handle,
	updated_at   = MAX(excluded.updated_at, profiles.updated_at + 1)
RETURNING user_id, display_name, COALESCE(handle, ''), created_at, updated_at`
	now := toMillis(r.now())
	stored, err := scanProfile(r.db.QueryRowContext(ctx, q, p.ID, p.DisplayName, p.Handle, now, now))
	if err != nil {
		return nil, apperrors.NewDatabaseError("upsert profile", err).WithUserID(p.ID)
	}
	return stored, nil
}

// GetByID returns the profile, or nil if the user never wrote to the bot.
func (r *ProfileRepository) GetByID(ctx context.Context, id int64) (*domain.Profile, error) {
	const q = `SELECT user_id, display_name, COALESCE(handle, ''), created_at, updated_at FROM profiles WHERE user_id = ?`
	p, err := scanProfile(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.NewDatabaseError("get profile", err).WithUserID(id)
	}
	return p, nil
}

func scanProfile(row *sql.Row) (*domain.Profile, error) {
	var (
		p                    domain.Profile
		createdAt, updatedAt int64
	)
	if err := row.Scan(&p.ID, &p.DisplayName, &p.Handle, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	return &p, nil
}

var _ domain.Repository = (*ProfileRepository)(nil)
