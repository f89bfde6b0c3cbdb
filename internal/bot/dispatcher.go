// Package bot turns Bot API updates into routing events and runs their handlers.
package bot

import (
	"context"
	"runtime/debug"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/open-builders/feedback-relay/internal/common/errors"
	"github.com/open-builders/feedback-relay/internal/common/logger"
	"github.com/open-builders/feedback-relay/internal/service/routing"
	"github.com/open-builders/feedback-relay/internal/service/telegram"
)

// Router is the subset of routing.Resolver the dispatcher drives.
type Router interface {
	IsOperator(userID int64) bool
	OperatorID() int64
	HandleStart(ctx context.Context, chatID int64) error
	HandleUserMessage(ctx context.Context, m routing.UserMessage) error
	HandleOperatorMessage(ctx context.Context, m routing.OperatorMessage) error
	HandleCallback(ctx context.Context, cb routing.Callback) error
}

// Gateway is used for callback acknowledgements and operator error notices.
type Gateway interface {
	AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string) error
	SendMessage(ctx context.Context, chatID int64, text string, opts telegram.SendOptions) (int64, error)
}

const (
	eventStart    = "start"
	eventUser     = "user_message"
	eventOperator = "operator_message"
	eventCallback = "callback"
)

// Dispatcher runs one handler per update, at most limit at a time. A storage
// failure in any handler cancels Context and is returned by Wait.
type Dispatcher struct {
	router  Router
	gateway Gateway
	group   *errgroup.Group
	ctx     context.Context
}

func NewDispatcher(ctx context.Context, router Router, gateway Gateway, limit int) *Dispatcher {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	return &Dispatcher{router: router, gateway: gateway, group: g, ctx: gctx}
}

// Context is cancelled when the parent is, or when a handler hit a storage failure.
func (d *Dispatcher) Context() context.Context {
	return d.ctx
}

// Dispatch schedules u. It blocks while the handler limit is reached and fails
// once the dispatcher has stopped. A scheduled handler runs to completion even
// if the dispatcher stops meanwhile.
func (d *Dispatcher) Dispatch(u telegram.Update) error {
	if err := d.ctx.Err(); err != nil {
		return err
	}
	hctx := context.WithoutCancel(d.ctx)
	d.group.Go(func() error {
		return d.handle(hctx, u)
	})
	return nil
}

// Wait blocks until every scheduled handler returned, and reports the storage
// failure that stopped the dispatcher, if any.
func (d *Dispatcher) Wait() error {
	return d.group.Wait()
}

func (d *Dispatcher) handle(ctx context.Context, u telegram.Update) (err error) {
	eventID := uuid.NewString()
	l := logger.Ctx(ctx).With().
		Str("event_id", eventID).
		Int64("update_id", u.UpdateID).
		Logger()
	ctx = l.WithContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			l.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("Handler panic recovered")
			err = nil
		}
	}()

	event, fromOperator, herr := d.route(ctx, u)
	if herr == nil {
		return nil
	}
	appErr, isApp := apperrors.AsAppError(herr)
	if isApp {
		appErr.WithEventID(eventID)
	}
	if apperrors.IsStorage(herr) {
		l.Error().Err(herr).Str("event", event).Msg("Storage unavailable, stopping dispatcher")
		return herr
	}

	ev := l.Error().Err(herr).Str("event", event)
	if isApp && appErr.UserID != 0 {
		ev = ev.Int64("user_id", appErr.UserID)
	}
	ev.Msg("Handler failed")

	if fromOperator {
		if _, err := d.gateway.SendMessage(ctx, d.router.OperatorID(), routing.OperatorNotice(herr), telegram.SendOptions{}); err != nil {
			l.Warn().Err(err).Msg("Operator error notice not delivered")
		}
	}
	return nil
}

// route classifies u and calls the matching handler. Updates the relay does not
// handle are dropped with a debug line.
func (d *Dispatcher) route(ctx context.Context, u telegram.Update) (string, bool, error) {
	l := logger.Ctx(ctx)

	if cq := u.CallbackQuery; cq != nil {
		if err := d.gateway.AnswerCallbackQuery(ctx, cq.ID, ""); err != nil {
			l.Warn().Err(err).Msg("Callback query not answered")
		}
		if !d.router.IsOperator(cq.From.ID) {
			l.Warn().Int64("user_id", cq.From.ID).Msg("Callback from non-operator ignored")
			return eventCallback, false, nil
		}
		cb, err := routing.ParseCallback(cq.Data)
		if err != nil {
			return eventCallback, true, err
		}
		return eventCallback, true, d.router.HandleCallback(ctx, cb)
	}

	m := u.Message
	if m == nil || m.From == nil {
		l.Debug().Msg("Unsupported update skipped")
		return "", false, nil
	}
	if !m.Chat.IsPrivate() {
		l.Debug().Int64("chat_id", m.Chat.ID).Msg("Non-private chat skipped")
		return "", false, nil
	}

	fromOperator := d.router.IsOperator(m.From.ID)
	if m.Command() == "start" {
		return eventStart, fromOperator, d.router.HandleStart(ctx, m.Chat.ID)
	}

	if fromOperator {
		om := routing.OperatorMessage{ChatID: m.Chat.ID, MessageID: m.MessageID}
		if m.ReplyToMessage != nil {
			om.ReplyToMessageID = m.ReplyToMessage.MessageID
		}
		return eventOperator, true, d.router.HandleOperatorMessage(ctx, om)
	}

	return eventUser, false, d.router.HandleUserMessage(ctx, routing.UserMessage{
		ChatID:    m.Chat.ID,
		MessageID: m.MessageID,
		From: routing.Sender{
			ID:          m.From.ID,
			DisplayName: m.From.FullName(),
			Handle:      m.From.Username,
		},
		Body: m.Body(),
	})
}
