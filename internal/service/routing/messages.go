package routing

import (
	"fmt"
	"html"

	apperrors "github.com/open-builders/feedback-relay/internal/common/errors"
	domain "github.com/open-builders/feedback-relay/internal/domain/profile"
)

const (
	labelWhois   = "👁️ Who is it?"
	labelBlock   = "🚫 Ban"
	labelUnblock = "Unblock"

	msgGreeting       = "👋 I am a feedback bot: write here and the owner will get your message."
	msgSent           = "✅ Your message has been sent, please wait for a reply."
	msgBannedNotSent  = "🚫 The message was not sent because you are blocked."
	msgLinksRejected  = "🚫 Your message contains links that are not allowed."
	msgYouAreBanned   = "🚫 You have been blocked."
	msgYouAreUnbanned = "✅ You have been unblocked and can write again."
	msgSenderNotFound = "❗ Error: could not find the user who sent this message."
	msgNoProfile      = "❗ Error: could not find information about this user."
)

const banTimeLayout = "2006-01-02 15:04 MST"

func displayName(p *domain.Profile, userID int64) string {
	if p == nil || p.DisplayName == "" {
		return fmt.Sprintf("#%d", userID)
	}
	return p.DisplayName
}

func senderNote(name string) string {
	return fmt.Sprintf("<i>Message from %s</i>", html.EscapeString(name))
}

func blockedNotice(p *domain.Profile, userID int64) string {
	return fmt.Sprintf("🚫 User %s %s has been blocked.", displayName(p, userID), p.Mention())
}

func unblockedNotice(p *domain.Profile, userID int64) string {
	return fmt.Sprintf("✅ User %s %s has been unblocked.", displayName(p, userID), p.Mention())
}

func whoisText(p *domain.Profile, ban *domain.BanRecord) string {
	status := "no"
	if ban != nil {
		status = "since " + ban.BannedAt.UTC().Format(banTimeLayout)
	}
	return fmt.Sprintf("👤 User info:\n\nID:  #%d\nHandle: %s\nName: %s\nBanned: %s", p.ID, p.Mention(), p.DisplayName, status)
}

// OperatorNotice turns a handler error into the text shown to the operator.
func OperatorNotice(err error) string {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		return "❗ Error: the action failed, see logs."
	}
	switch appErr.Code {
	case apperrors.ErrCodeDeliveryFailed:
		return "❗ Error: the message could not be delivered. The user may have blocked the bot."
	case apperrors.ErrCodeSenderNotFound:
		return msgSenderNotFound
	case apperrors.ErrCodeDuplicateAttribution:
		return "❗ Error: this message was already attributed, routing history left unchanged."
	case apperrors.ErrCodeMalformedCallback:
		return "❗ Error: unknown button."
	default:
		return "❗ Error: the action failed, see logs."
	}
}
