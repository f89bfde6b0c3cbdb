package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	apperrors "github.com/open-builders/feedback-relay/internal/common/errors"
	"github.com/open-builders/feedback-relay/internal/domain/attribution"
)

// AttributionRepository is the SQLite attribution ledger. Entries are ordered by an
// autoincrement sequence, so "most recent" is insertion order, not wall-clock order.
type AttributionRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewAttributionRepository(db *sql.DB) *AttributionRepository {
	return &AttributionRepository{db: db, now: time.Now}
}

// Record appends an entry. A second entry for the same messageID is rejected with
// DUPLICATE_ATTRIBUTION; the existing attribution is left untouched.
func (r *AttributionRepository) Record(ctx context.Context, messageID, senderID int64) error {
	const q = `INSERT INTO attributions (message_id, sender_id, created_at) VALUES (?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, q, messageID, senderID, toMillis(r.now())); err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewDuplicateAttributionError(messageID, err).WithUserID(senderID)
		}
		return apperrors.NewDatabaseError("record attribution", err).WithUserID(senderID)
	}
	return nil
}

func (r *AttributionRepository) LookupByMessage(ctx context.Context, messageID int64) (int64, bool, error) {
	var senderID int64
	err := r.db.QueryRowContext(ctx, `SELECT sender_id FROM attributions WHERE message_id = ?`, messageID).Scan(&senderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, apperrors.NewDatabaseError("lookup attribution", err).WithDetail("message_id", messageID)
	}
	return senderID, true, nil
}

func (r *AttributionRepository) LookupMostRecent(ctx context.Context) (int64, bool, error) {
	var senderID int64
	err := r.db.QueryRowContext(ctx, `SELECT sender_id FROM attributions ORDER BY seq DESC LIMIT 1`).Scan(&senderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, apperrors.NewDatabaseError("lookup most recent attribution", err)
	}
	return senderID, true, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ attribution.Ledger = (*AttributionRepository)(nil)
