package routing

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/open-builders/feedback-relay/internal/common/errors"
	domain "github.com/open-builders/feedback-relay/internal/domain/profile"
)

func TestParseCallback(t *testing.T) {
	tests := []struct {
		data string
		want Callback
		ok   bool
	}{
		{data: "block_5", want: Callback{Action: ActionBlock, UserID: 5}, ok: true},
		{data: "unblock_77", want: Callback{Action: ActionUnblock, UserID: 77}, ok: true},
		{data: "whois_123456789", want: Callback{Action: ActionWhois, UserID: 123456789}, ok: true},
		{data: "explode_5"},
		{data: "block_"},
		{data: "block_abc"},
		{data: "block_-4"},
		{data: "block_0"},
		{data: "block"},
		{data: ""},
	}
	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			got, err := ParseCallback(tt.data)
			if !tt.ok {
				require.Error(t, err)
				assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeMalformedCallback))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.data, got.String())
		})
	}
}

func TestOperatorControls(t *testing.T) {
	kb := OperatorControls(9)
	require.Len(t, kb.InlineKeyboard, 1)
	row := kb.InlineKeyboard[0]
	require.Len(t, row, 2)
	assert.Equal(t, "whois_9", row[0].CallbackData)
	assert.Equal(t, "block_9", row[1].CallbackData)

	assert.Equal(t, "unblock_9", UnblockControls(9).InlineKeyboard[0][0].CallbackData)
}

func TestNotices(t *testing.T) {
	p := &domain.Profile{ID: 3, DisplayName: "Ada", Handle: "ada"}
	assert.Equal(t, "🚫 User Ada @ada has been blocked.", blockedNotice(p, 3))
	assert.Equal(t, "✅ User #3 — has been unblocked.", unblockedNotice(nil, 3))
	assert.Contains(t, whoisText(p, nil), "ID:  #3")
	assert.Contains(t, whoisText(p, nil), "Banned: no")

	ban := &domain.BanRecord{UserID: 3, BannedAt: time.Date(2026, time.March, 1, 12, 30, 0, 0, time.UTC)}
	assert.Contains(t, whoisText(p, ban), "Banned: since 2026-03-01 12:30 UTC")
}

func TestOperatorNotice(t *testing.T) {
	assert.Equal(t, msgSenderNotFound, OperatorNotice(apperrors.NewSenderNotFoundError(0)))
	assert.Contains(t, OperatorNotice(apperrors.NewDeliveryError(1, errors.New("x"))), "could not be delivered")
	assert.Contains(t, OperatorNotice(apperrors.NewMalformedCallbackError("x")), "unknown button")
	assert.Contains(t, OperatorNotice(errors.New("boom")), "see logs")
}
