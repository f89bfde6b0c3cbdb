package bot

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	apperrors "github.com/open-builders/feedback-relay/internal/common/errors"
	"github.com/open-builders/feedback-relay/internal/service/routing"
	"github.com/open-builders/feedback-relay/internal/service/telegram"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const operatorID = 1000

type fakeRouter struct {
	mu        sync.Mutex
	starts    []int64
	users     []routing.UserMessage
	operators []routing.OperatorMessage
	callbacks []routing.Callback

	err     func() error
	onEvent func()
}

func (r *fakeRouter) IsOperator(id int64) bool { return id == operatorID }
func (r *fakeRouter) OperatorID() int64        { return operatorID }

func (r *fakeRouter) hook() error {
	if r.onEvent != nil {
		r.onEvent()
	}
	if r.err == nil {
		return nil
	}
	return r.err()
}

func (r *fakeRouter) HandleStart(_ context.Context, chatID int64) error {
	r.mu.Lock()
	r.starts = append(r.starts, chatID)
	r.mu.Unlock()
	return r.hook()
}

func (r *fakeRouter) HandleUserMessage(_ context.Context, m routing.UserMessage) error {
	r.mu.Lock()
	r.users = append(r.users, m)
	r.mu.Unlock()
	return r.hook()
}

func (r *fakeRouter) HandleOperatorMessage(_ context.Context, m routing.OperatorMessage) error {
	r.mu.Lock()
	r.operators = append(r.operators, m)
	r.mu.Unlock()
	return r.hook()
}

func (r *fakeRouter) HandleCallback(_ context.Context, cb routing.Callback) error {
	r.mu.Lock()
	r.callbacks = append(r.callbacks, cb)
	r.mu.Unlock()
	return r.hook()
}

type fakeGateway struct {
	mu       sync.Mutex
	answered []string
	notices  []string
}

func (g *fakeGateway) AnswerCallbackQuery(_ context.Context, id, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.answered = append(g.answered, id)
	return nil
}

func (g *fakeGateway) SendMessage(_ context.Context, chatID int64, text string, _ telegram.SendOptions) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if chatID == operatorID {
		g.notices = append(g.notices, text)
	}
	return 1, nil
}

func privateMessage(from int64, text string) *telegram.Message {
	return &telegram.Message{
		MessageID: 11,
		From:      &telegram.User{ID: from, FirstName: "Ada", LastName: "Lovelace", Username: "ada"},
		Chat:      telegram.Chat{ID: from, Type: "private"},
		Text:      text,
	}
}

func run(t *testing.T, router *fakeRouter, gw *fakeGateway, updates ...telegram.Update) error {
	t.Helper()
	d := NewDispatcher(context.Background(), router, gw, 4)
	for _, u := range updates {
		if err := d.Dispatch(u); err != nil {
			break
		}
	}
	return d.Wait()
}

func TestUserMessageIsRouted(t *testing.T) {
	router, gw := &fakeRouter{}, &fakeGateway{}
	require.NoError(t, run(t, router, gw, telegram.Update{UpdateID: 1, Message: privateMessage(5, "hello")}))

	require.Len(t, router.users, 1)
	got := router.users[0]
	assert.Equal(t, int64(5), got.ChatID)
	assert.Equal(t, int64(11), got.MessageID)
	assert.Equal(t, routing.Sender{ID: 5, DisplayName: "Ada Lovelace", Handle: "ada"}, got.From)
	assert.Equal(t, "hello", got.Body)
}

func TestOperatorReplyIsRouted(t *testing.T) {
	router, gw := &fakeRouter{}, &fakeGateway{}
	threaded := privateMessage(operatorID, "answer")
	threaded.ReplyToMessage = &telegram.Message{MessageID: 42}
	plain := privateMessage(operatorID, "answer")

	require.NoError(t, run(t, router, gw,
		telegram.Update{UpdateID: 1, Message: threaded},
		telegram.Update{UpdateID: 2, Message: plain},
	))

	require.Len(t, router.operators, 2)
	replyTo := []int64{router.operators[0].ReplyToMessageID, router.operators[1].ReplyToMessageID}
	assert.ElementsMatch(t, []int64{42, 0}, replyTo)
	assert.Empty(t, router.users)
}

func TestStartCommand(t *testing.T) {
	router, gw := &fakeRouter{}, &fakeGateway{}
	require.NoError(t, run(t, router, gw, telegram.Update{UpdateID: 1, Message: privateMessage(5, "/start")}))

	assert.Equal(t, []int64{5}, router.starts)
	assert.Empty(t, router.users)
}

func TestGroupAndEmptyUpdatesAreSkipped(t *testing.T) {
	router, gw := &fakeRouter{}, &fakeGateway{}
	group := privateMessage(5, "hi")
	group.Chat = telegram.Chat{ID: -100, Type: "supergroup"}
	anonymous := &telegram.Message{MessageID: 3, Chat: telegram.Chat{ID: 9, Type: "private"}}

	require.NoError(t, run(t, router, gw,
		telegram.Update{UpdateID: 1, Message: group},
		telegram.Update{UpdateID: 2, Message: anonymous},
		telegram.Update{UpdateID: 3},
	))

	assert.Empty(t, router.users)
	assert.Empty(t, router.operators)
}

func TestCallbackFromOperator(t *testing.T) {
	router, gw := &fakeRouter{}, &fakeGateway{}
	require.NoError(t, run(t, router, gw, telegram.Update{UpdateID: 1, CallbackQuery: &telegram.CallbackQuery{
		ID: "cq-1", From: telegram.User{ID: operatorID}, Data: "block_5",
	}}))

	assert.Equal(t, []routing.Callback{{Action: routing.ActionBlock, UserID: 5}}, router.callbacks)
	assert.Equal(t, []string{"cq-1"}, gw.answered)
	assert.Empty(t, gw.notices)
}

func TestCallbackFromOtherUserIsIgnored(t *testing.T) {
	router, gw := &fakeRouter{}, &fakeGateway{}
	require.NoError(t, run(t, router, gw, telegram.Update{UpdateID: 1, CallbackQuery: &telegram.CallbackQuery{
		ID: "cq-2", From: telegram.User{ID: 5}, Data: "unblock_5",
	}}))

	assert.Empty(t, router.callbacks)
	assert.Equal(t, []string{"cq-2"}, gw.answered)
}

func TestMalformedCallbackNotifiesOperator(t *testing.T) {
	router, gw := &fakeRouter{}, &fakeGateway{}
	require.NoError(t, run(t, router, gw, telegram.Update{UpdateID: 1, CallbackQuery: &telegram.CallbackQuery{
		ID: "cq-3", From: telegram.User{ID: operatorID}, Data: "explode_5",
	}}))

	assert.Empty(t, router.callbacks)
	require.Len(t, gw.notices, 1)
	assert.Contains(t, gw.notices[0], "unknown button")
}

func TestOperatorErrorsAreReported(t *testing.T) {
	router := &fakeRouter{err: func() error { return apperrors.NewDeliveryError(5, errors.New("forbidden")) }}
	gw := &fakeGateway{}

	require.NoError(t, run(t, router, gw,
		telegram.Update{UpdateID: 1, Message: privateMessage(operatorID, "answer")},
		telegram.Update{UpdateID: 2, Message: privateMessage(5, "question")},
	))

	require.Len(t, gw.notices, 1, "only the operator event produces a notice")
	assert.Contains(t, gw.notices[0], "could not be delivered")
}

func TestStorageFailureStopsDispatcher(t *testing.T) {
	router := &fakeRouter{err: func() error {
		return apperrors.NewDatabaseError("record attribution", errors.New("disk I/O error"))
	}}
	gw := &fakeGateway{}
	d := NewDispatcher(context.Background(), router, gw, 1)

	require.NoError(t, d.Dispatch(telegram.Update{UpdateID: 1, Message: privateMessage(5, "hello")}))
	err := d.Wait()
	require.Error(t, err)
	assert.True(t, apperrors.IsStorage(err))
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.NotEmpty(t, appErr.EventID)

	assert.Error(t, d.Context().Err())
	assert.Error(t, d.Dispatch(telegram.Update{UpdateID: 2, Message: privateMessage(5, "again")}))
	assert.Empty(t, gw.notices)
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	router := &fakeRouter{onEvent: func() { panic("boom") }}
	gw := &fakeGateway{}

	assert.NoError(t, run(t, router, gw,
		telegram.Update{UpdateID: 1, Message: privateMessage(5, "one")},
		telegram.Update{UpdateID: 2, Message: privateMessage(6, "two")},
	))
	assert.Len(t, router.users, 2)
}

func TestConcurrencyIsBounded(t *testing.T) {
	const limit = 3
	var (
		inFlight atomic.Int32
		peak     atomic.Int32
	)
	router := &fakeRouter{onEvent: func() {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
	}}
	d := NewDispatcher(context.Background(), router, &fakeGateway{}, limit)

	for i := int64(1); i <= 20; i++ {
		require.NoError(t, d.Dispatch(telegram.Update{UpdateID: i, Message: privateMessage(i, "hi")}))
	}
	require.NoError(t, d.Wait())

	assert.Len(t, router.users, 20)
	assert.LessOrEqual(t, peak.Load(), int32(limit))
}
