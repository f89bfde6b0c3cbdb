package profile

import "context"

// Repository persists profile snapshots. Upsert returns the row as stored.
type Repository interface {
	Upsert(ctx context.Context, p *Profile) (*Profile, error)
	GetByID(ctx context.Context, id int64) (*Profile, error)
}

// BanRepository persists ban membership. Ban and Unban are idempotent.
type BanRepository interface {
	Ban(ctx context.Context, userID int64) error
	Unban(ctx context.Context, userID int64) error
	IsBanned(ctx context.Context, userID int64) (bool, error)
	Get(ctx context.Context, userID int64) (*BanRecord, error)
}
