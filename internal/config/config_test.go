package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/open-builders/feedback-relay/internal/common/errors"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_TOKEN", "123:abc")
	t.Setenv("OWNER_ID", "42")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.APIToken)
	assert.Equal(t, int64(42), cfg.OwnerID)
	assert.Equal(t, "bot.db", cfg.DatabasePath)
	assert.Equal(t, "https://api.telegram.org", cfg.Telegram.APIURL)
	assert.Equal(t, 30*time.Second, cfg.Telegram.PollTimeout)
	assert.Equal(t, time.Hour, cfg.Redis.TTL)
	assert.False(t, cfg.LinkCheck.Enabled)
	assert.Equal(t, 16, cfg.MaxConcurrentHandlers)
	assert.NoError(t, cfg.Validate())
}

func TestLoadRejectsBadOwnerID(t *testing.T) {
	t.Setenv("OWNER_ID", "not-a-number")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := &Config{APIToken: "t", OwnerID: 1, DatabasePath: "bot.db", MaxConcurrentHandlers: 1}
		return c
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing token", func(c *Config) { c.APIToken = " " }, "API_TOKEN"},
		{"missing owner", func(c *Config) { c.OwnerID = 0 }, "OWNER_ID"},
		{"missing db path", func(c *Config) { c.DatabasePath = "" }, "DATABASE_PATH"},
		{"zero handlers", func(c *Config) { c.MaxConcurrentHandlers = 0 }, "MAX_CONCURRENT_HANDLERS"},
		{"webhook without url", func(c *Config) { c.Webhook.Enabled = true; c.Webhook.Secret = "s" }, "WEBHOOK_URL"},
		{"webhook without secret", func(c *Config) { c.Webhook.Enabled = true; c.Webhook.URL = "https://x" }, "WEBHOOK_SECRET"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
		})
	}

	assert.NoError(t, valid().Validate())
}
