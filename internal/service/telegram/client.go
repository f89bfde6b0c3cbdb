package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	apperrors "github.com/open-builders/feedback-relay/internal/common/errors"
)

// AllowedUpdates is the set of update types the relay subscribes to.
var AllowedUpdates = []string{"message", "callback_query"}

// Client is a minimal Bot API client: just the calls the relay needs.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     zerolog.Logger
}

// APIError is a Bot API response with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// IsBlockedByUser reports whether the recipient blocked the bot or never started it.
func IsBlockedByUser(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusForbidden
}

// NewClient builds a client for baseURL (normally https://api.telegram.org).
func NewClient(baseURL, token string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		logger:     log.With().Str("component", "telegram").Logger(),
	}
}

// GetMe returns the bot's own user.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var out User
	if err := c.call(ctx, "getMe", struct{}{}, &out); err != nil {
		return nil, apperrors.NewTelegramAPIError("getMe", err)
	}
	return &out, nil
}

// GetUpdates long-polls for updates starting at offset. The returned offset is
// one past the highest update id seen, or offset unchanged when none arrived.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, int64, error) {
	secs := int(timeout.Seconds())
	if secs < 1 {
		secs = 1
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout+5*time.Second)
	defer cancel()

	var out []Update
	req := getUpdatesRequest{Offset: offset, Timeout: secs, AllowedUpdates: AllowedUpdates}
	// The long poll outlives httpClient.Timeout, so it runs on a client without one.
	if err := c.callWith(reqCtx, &http.Client{Transport: c.httpClient.Transport}, "getUpdates", req, &out); err != nil {
		return nil, offset, err
	}
	next := offset
	for _, u := range out {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}
	return out, next, nil
}

// CopyMessage copies messageID from fromChatID into chatID and returns the id of the copy.
func (c *Client) CopyMessage(ctx context.Context, chatID, fromChatID, messageID int64, opts SendOptions) (int64, error) {
	req := copyMessageRequest{
		ChatID:      chatID,
		FromChatID:  fromChatID,
		MessageID:   messageID,
		ReplyMarkup: opts.ReplyMarkup,
	}
	if opts.ReplyToMessageID != 0 {
		req.ReplyParameters = &replyParameters{MessageID: opts.ReplyToMessageID, AllowSendingWithoutReply: true}
	}
	var out messageIDResult
	if err := c.call(ctx, "copyMessage", req, &out); err != nil {
		return 0, err
	}
	c.logger.Debug().Int64("chat_id", chatID).Int64("from_chat_id", fromChatID).
		Int64("message_id", messageID).Int64("copy_id", out.MessageID).Msg("message copied")
	return out.MessageID, nil
}

// SendMessage sends text to chatID and returns the new message id.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, opts SendOptions) (int64, error) {
	req := sendMessageRequest{
		ChatID:      chatID,
		Text:        text,
		ParseMode:   opts.ParseMode,
		ReplyMarkup: opts.ReplyMarkup,
	}
	if opts.ReplyToMessageID != 0 {
		req.ReplyParameters = &replyParameters{MessageID: opts.ReplyToMessageID, AllowSendingWithoutReply: true}
	}
	var out Message
	if err := c.call(ctx, "sendMessage", req, &out); err != nil {
		return 0, err
	}
	return out.MessageID, nil
}

// AnswerCallbackQuery stops the loading indicator on the pressed button.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string) error {
	var ok bool
	return c.call(ctx, "answerCallbackQuery", answerCallbackQueryRequest{CallbackQueryID: callbackQueryID, Text: text}, &ok)
}

// SetWebhook registers webhookURL as the update endpoint, guarded by secret.
func (c *Client) SetWebhook(ctx context.Context, webhookURL, secret string) error {
	var ok bool
	if err := c.call(ctx, "setWebhook", setWebhookRequest{URL: webhookURL, SecretToken: secret, AllowedUpdates: AllowedUpdates}, &ok); err != nil {
		return apperrors.NewTelegramAPIError("setWebhook", err)
	}
	return nil
}

// DeleteWebhook switches the bot back to getUpdates delivery. Pending updates are kept.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	var ok bool
	if err := c.call(ctx, "deleteWebhook", deleteWebhookRequest{}, &ok); err != nil {
		return apperrors.NewTelegramAPIError("deleteWebhook", err)
	}
	return nil
}

func (c *Client) call(ctx context.Context, method string, in, out any) error {
	return c.callWith(ctx, c.httpClient, method, in, out)
}

func (c *Client) callWith(ctx context.Context, hc *http.Client, method string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("telegram %s: encode: %w", method, err)
	}
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		// The URL embeds the token; never let it reach the logs.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("telegram %s: read body: %w", method, err)
	}

	env := tgResponse[json.RawMessage]{}
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("telegram %s: http %d: %s", method, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if !env.Ok {
		code := env.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		return &APIError{Method: method, Code: code, Description: env.Description}
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("telegram %s: decode result: %w", method, err)
	}
	return nil
}
