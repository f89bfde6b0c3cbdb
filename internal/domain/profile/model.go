package profile

import "time"

// Profile is a snapshot of a Telegram user's identity, refreshed on every inbound message.
// ID is the Telegram user ID. Handle is the @username without the leading @, empty when unset.
type Profile struct {
	ID          int64     `json:"id"`
	DisplayName string    `json:"display_name"`
	Handle      string    `json:"handle,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Mention renders the handle as @handle, or "—" when the user has none.
func (p *Profile) Mention() string {
	if p == nil || p.Handle == "" {
		return "—"
	}
	return "@" + p.Handle
}

// BanRecord marks a user as banned. Its existence is the ban.
type BanRecord struct {
	UserID   int64     `json:"user_id"`
	BannedAt time.Time `json:"banned_at"`
}
