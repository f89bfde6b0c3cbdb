// Package routing decides where each inbound event goes: user messages to the
// operator, operator messages back to the user they answer, control presses to
// the identity store.
package routing

import (
	"context"

	apperrors "github.com/open-builders/feedback-relay/internal/common/errors"
	"github.com/open-builders/feedback-relay/internal/common/logger"
	"github.com/open-builders/feedback-relay/internal/domain/attribution"
	domain "github.com/open-builders/feedback-relay/internal/domain/profile"
	"github.com/open-builders/feedback-relay/internal/service/telegram"
)

// Gateway delivers messages on the chat platform.
type Gateway interface {
	CopyMessage(ctx context.Context, chatID, fromChatID, messageID int64, opts telegram.SendOptions) (int64, error)
	SendMessage(ctx context.Context, chatID int64, text string, opts telegram.SendOptions) (int64, error)
}

// Identity is the identity store the resolver reads and updates.
type Identity interface {
	UpsertProfile(ctx context.Context, userID int64, displayName, handle string) error
	GetProfile(ctx context.Context, userID int64) (*domain.Profile, error)
	Ban(ctx context.Context, userID int64) error
	Unban(ctx context.Context, userID int64) error
	IsBanned(ctx context.Context, userID int64) (bool, error)
	BanRecord(ctx context.Context, userID int64) (*domain.BanRecord, error)
}

// LinkChecker vets links in user messages.
type LinkChecker interface {
	Allowed(text string) bool
}

// Sender identifies the author of a user message.
type Sender struct {
	ID          int64
	DisplayName string
	Handle      string
}

// UserMessage is a message from anyone but the operator.
type UserMessage struct {
	ChatID    int64
	MessageID int64
	From      Sender
	Body      string
}

// OperatorMessage is a message written by the operator in their chat with the bot.
// ReplyToMessageID is zero when the message is not a reply.
type OperatorMessage struct {
	ChatID           int64
	MessageID        int64
	ReplyToMessageID int64
}

// Config is fixed at startup.
type Config struct {
	OperatorID int64
}

// Resolver routes inbound events. It holds no locks; concurrent calls may
// interleave, which only affects the most-recent fallback of Resolve.
type Resolver struct {
	cfg      Config
	gateway  Gateway
	identity Identity
	ledger   attribution.Ledger
	links    LinkChecker
}

// NewResolver wires the resolver. links may be nil to disable link checking.
func NewResolver(cfg Config, gateway Gateway, identity Identity, ledger attribution.Ledger, links LinkChecker) *Resolver {
	return &Resolver{cfg: cfg, gateway: gateway, identity: identity, ledger: ledger, links: links}
}

// IsOperator reports whether userID is the configured operator.
func (r *Resolver) IsOperator(userID int64) bool {
	return userID == r.cfg.OperatorID
}

// OperatorID returns the configured operator.
func (r *Resolver) OperatorID() int64 {
	return r.cfg.OperatorID
}

// HandleStart greets whoever sent /start.
func (r *Resolver) HandleStart(ctx context.Context, chatID int64) error {
	if _, err := r.gateway.SendMessage(ctx, chatID, msgGreeting, telegram.SendOptions{}); err != nil {
		return apperrors.NewDeliveryError(chatID, err)
	}
	return nil
}

// HandleUserMessage forwards m to the operator unless its author is banned, then
// records who sent the copy. The copy id only exists once delivery succeeded, so
// attribution is written afterwards and a crash in between loses it.
func (r *Resolver) HandleUserMessage(ctx context.Context, m UserMessage) error {
	log := logger.Ctx(ctx).With().Int64("user_id", m.From.ID).Logger()

	banned, err := r.identity.IsBanned(ctx, m.From.ID)
	if err != nil {
		return err
	}
	if banned {
		log.Info().Msg("message from banned user dropped")
		r.notifyUser(ctx, m.ChatID, msgBannedNotSent)
		return nil
	}

	if r.links != nil && !r.links.Allowed(m.Body) {
		log.Info().Msg("message with disallowed links rejected")
		r.notifyUser(ctx, m.ChatID, msgLinksRejected)
		return nil
	}

	if err := r.identity.UpsertProfile(ctx, m.From.ID, m.From.DisplayName, m.From.Handle); err != nil {
		return err
	}

	copyID, err := r.gateway.CopyMessage(ctx, r.cfg.OperatorID, m.ChatID, m.MessageID,
		telegram.SendOptions{ReplyMarkup: OperatorControls(m.From.ID)})
	if err != nil {
		return apperrors.NewDeliveryError(r.cfg.OperatorID, err).WithUserID(m.From.ID)
	}
	if err := r.ledger.Record(ctx, copyID, m.From.ID); err != nil {
		return err
	}
	log.Debug().Int64("copy_id", copyID).Msg("message forwarded to operator")

	name := m.From.DisplayName
	if name == "" {
		name = displayName(nil, m.From.ID)
	}
	if _, err := r.gateway.SendMessage(ctx, r.cfg.OperatorID, senderNote(name),
		telegram.SendOptions{ReplyToMessageID: copyID, ParseMode: "HTML"}); err != nil {
		log.Warn().Err(err).Msg("sender note not delivered")
	}

	r.notifyUser(ctx, m.ChatID, msgSent)
	return nil
}

// Resolve picks the user an operator message answers. An explicit reply resolves
// through the replied-to copy only; otherwise the sender of the latest copy is used.
// The fallback is racy when several users write at once.
func (r *Resolver) Resolve(ctx context.Context, replyToMessageID int64) (int64, error) {
	var (
		senderID int64
		found    bool
		err      error
	)
	if replyToMessageID != 0 {
		senderID, found, err = r.ledger.LookupByMessage(ctx, replyToMessageID)
	} else {
		senderID, found, err = r.ledger.LookupMostRecent(ctx)
	}
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, apperrors.NewSenderNotFoundError(replyToMessageID)
	}
	return senderID, nil
}

// HandleOperatorMessage copies the operator's message to the resolved user.
// When no user can be resolved the operator is told so and nothing is delivered.
func (r *Resolver) HandleOperatorMessage(ctx context.Context, m OperatorMessage) error {
	senderID, err := r.Resolve(ctx, m.ReplyToMessageID)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeSenderNotFound) {
			logger.Ctx(ctx).Info().Int64("reply_to", m.ReplyToMessageID).Msg("operator reply has no sender")
			if _, sendErr := r.gateway.SendMessage(ctx, m.ChatID, msgSenderNotFound,
				telegram.SendOptions{ReplyToMessageID: m.MessageID}); sendErr != nil {
				return apperrors.NewDeliveryError(m.ChatID, sendErr)
			}
			return nil
		}
		return err
	}

	logger.Ctx(ctx).Debug().Int64("user_id", senderID).Msg("reply to sender")
	if _, err := r.gateway.CopyMessage(ctx, senderID, m.ChatID, m.MessageID, telegram.SendOptions{}); err != nil {
		return apperrors.NewDeliveryError(senderID, err).WithUserID(senderID)
	}
	return nil
}

// HandleCallback applies an operator control. Notifying the affected user is best-effort:
// they may have blocked the bot, and that must not undo the ban.
func (r *Resolver) HandleCallback(ctx context.Context, cb Callback) error {
	switch cb.Action {
	case ActionBlock:
		if err := r.identity.Ban(ctx, cb.UserID); err != nil {
			return err
		}
		p, err := r.identity.GetProfile(ctx, cb.UserID)
		if err != nil {
			return err
		}
		opErr := r.notifyOperator(ctx, blockedNotice(p, cb.UserID), UnblockControls(cb.UserID))
		r.notifyUser(ctx, cb.UserID, msgYouAreBanned)
		return opErr

	case ActionUnblock:
		if err := r.identity.Unban(ctx, cb.UserID); err != nil {
			return err
		}
		p, err := r.identity.GetProfile(ctx, cb.UserID)
		if err != nil {
			return err
		}
		opErr := r.notifyOperator(ctx, unblockedNotice(p, cb.UserID), nil)
		r.notifyUser(ctx, cb.UserID, msgYouAreUnbanned)
		return opErr

	case ActionWhois:
		p, err := r.identity.GetProfile(ctx, cb.UserID)
		if err != nil {
			return err
		}
		if p == nil {
			return r.notifyOperator(ctx, msgNoProfile, nil)
		}
		ban, err := r.identity.BanRecord(ctx, cb.UserID)
		if err != nil {
			return err
		}
		return r.notifyOperator(ctx, whoisText(p, ban), nil)

	default:
		return apperrors.NewMalformedCallbackError(cb.String())
	}
}

func (r *Resolver) notifyOperator(ctx context.Context, text string, kb *telegram.InlineKeyboardMarkup) error {
	if _, err := r.gateway.SendMessage(ctx, r.cfg.OperatorID, text, telegram.SendOptions{ReplyMarkup: kb}); err != nil {
		return apperrors.NewDeliveryError(r.cfg.OperatorID, err)
	}
	return nil
}

func (r *Resolver) notifyUser(ctx context.Context, chatID int64, text string) {
	if _, err := r.gateway.SendMessage(ctx, chatID, text, telegram.SendOptions{}); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Int64("chat_id", chatID).
			Bool("blocked_by_user", telegram.IsBlockedByUser(err)).Msg("user notification not delivered")
	}
}
