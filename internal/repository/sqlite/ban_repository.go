package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	apperrors "github.com/open-builders/feedback-relay/internal/common/errors"
	domain "github.com/open-builders/feedback-relay/internal/domain/profile"
)

// BanRepository stores the ban list. A row per banned user; no row means not banned.
type BanRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewBanRepository(db *sql.DB) *BanRepository {
	return &BanRepository{db: db, now: time.Now}
}

// Ban is a no-op for an already banned user; the original banned_at is kept.
func (r *BanRepository) Ban(ctx context.Context, userID int64) error {
	const q = `INSERT INTO banned_users (user_id, banned_at) VALUES (?, ?) ON CONFLICT (user_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, q, userID, toMillis(r.now())); err != nil {
		return apperrors.NewDatabaseError("ban user", err).WithUserID(userID)
	}
	return nil
}

// Unban is a no-op for a user that is not banned.
func (r *BanRepository) Unban(ctx context.Context, userID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM banned_users WHERE user_id = ?`, userID); err != nil {
		return apperrors.NewDatabaseError("unban user", err).WithUserID(userID)
	}
	return nil
}

func (r *BanRepository) IsBanned(ctx context.Context, userID int64) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM banned_users WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return false, apperrors.NewDatabaseError("check ban", err).WithUserID(userID)
	}
	return n > 0, nil
}

// Get returns the ban record, or nil when the user is not banned.
func (r *BanRepository) Get(ctx context.Context, userID int64) (*domain.BanRecord, error) {
	var bannedAt int64
	err := r.db.QueryRowContext(ctx, `SELECT banned_at FROM banned_users WHERE user_id = ?`, userID).Scan(&bannedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.NewDatabaseError("get ban", err).WithUserID(userID)
	}
	return &domain.BanRecord{UserID: userID, BannedAt: fromMillis(bannedAt)}, nil
}

var _ domain.BanRepository = (*BanRepository)(nil)
