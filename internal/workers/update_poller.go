package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/open-builders/feedback-relay/internal/common/logger"
	"github.com/open-builders/feedback-relay/internal/service/telegram"
)

// UpdateSource is the long-polling side of the Bot API.
type UpdateSource interface {
	DeleteWebhook(ctx context.Context) error
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, int64, error)
}

// UpdateSink accepts updates for handling. An error means it stopped accepting.
type UpdateSink interface {
	Dispatch(u telegram.Update) error
}

type UpdatePoller struct {
	src        UpdateSource
	sink       UpdateSink
	timeout    time.Duration
	retryDelay time.Duration
}

func NewUpdatePoller(src UpdateSource, sink UpdateSink, timeout time.Duration) *UpdatePoller {
	return &UpdatePoller{
		src:        src,
		sink:       sink,
		timeout:    timeout,
		retryDelay: time.Second,
	}
}

// Start polls until ctx is done or the sink stops. Any webhook is removed
// first since the Bot API refuses getUpdates while one is set.
func (w *UpdatePoller) Start(ctx context.Context) error {
	if err := w.src.DeleteWebhook(ctx); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}

	logger.Info().Dur("timeout", w.timeout).Msg("Starting update poller...")

	var offset int64
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Stopping update poller...")
			return nil
		default:
			updates, next, err := w.src.GetUpdates(ctx, offset, w.timeout)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				logger.Warn().Err(err).Msg("Error polling updates")
				select {
				case <-ctx.Done():
				case <-time.After(w.retryDelay):
				}
				continue
			}

			for _, u := range updates {
				if err := w.sink.Dispatch(u); err != nil {
					return fmt.Errorf("dispatch update %d: %w", u.UpdateID, err)
				}
			}
			offset = next
		}
	}
}
