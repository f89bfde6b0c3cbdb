package attribution

import "context"

// Ledger is the durable store of attribution entries: which user sent the message
// copied into the operator chat under a given message id. Entries are append-only.
//
// Record is called only after the gateway confirmed the copy, so a crash between
// delivery and Record leaves the copied message unattributed. Replies to it then
// resolve only through LookupMostRecent.
type Ledger interface {
	Record(ctx context.Context, messageID, senderID int64) error
	LookupByMessage(ctx context.Context, messageID int64) (senderID int64, found bool, err error)
	LookupMostRecent(ctx context.Context) (senderID int64, found bool, err error)
}
