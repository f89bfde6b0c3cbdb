// Package http serves the Bot API webhook.
package http

import (
	"context"
	"crypto/subtle"
	"errors"
	nethttp "net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/open-builders/feedback-relay/internal/common/logger"
	mw "github.com/open-builders/feedback-relay/internal/http/middleware"
	"github.com/open-builders/feedback-relay/internal/service/telegram"
)

const (
	WebhookPath  = "/telegram/webhook"
	secretHeader = "X-Telegram-Bot-Api-Secret-Token"
)

// UpdateSink accepts updates for handling. An error means it stopped accepting.
type UpdateSink interface {
	Dispatch(u telegram.Update) error
}

// NewRouter builds the gin engine with the webhook and health endpoints.
func NewRouter(sink UpdateSink, secret string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(mw.RequestID(), mw.Logger(), mw.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(nethttp.StatusOK, gin.H{"status": "ok"})
	})
	r.POST(WebhookPath, webhookHandler(sink, secret))
	return r
}

func webhookHandler(sink UpdateSink, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(secretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(nethttp.StatusUnauthorized, gin.H{"error": "invalid secret token"})
			return
		}

		var u telegram.Update
		if err := c.ShouldBindJSON(&u); err != nil {
			c.AbortWithStatusJSON(nethttp.StatusBadRequest, gin.H{"error": "invalid update"})
			return
		}

		// Non-2xx makes the Bot API redeliver the update later.
		if err := sink.Dispatch(u); err != nil {
			logger.Ctx(c.Request.Context()).Warn().Err(err).Int64("update_id", u.UpdateID).Msg("Update rejected")
			c.AbortWithStatusJSON(nethttp.StatusServiceUnavailable, gin.H{"error": "not accepting updates"})
			return
		}
		c.Status(nethttp.StatusOK)
	}
}

// Serve runs the webhook server on addr until ctx is done, then shuts it down.
func Serve(ctx context.Context, addr string, handler nethttp.Handler) error {
	srv := &nethttp.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Webhook server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		return err
	}
	logger.Info().Msg("Webhook server stopped")
	return nil
}
