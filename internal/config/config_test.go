package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("ADMIN_TELEGRAM_IDS", "11, 22")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("DATA_DIR", "/var/lib/leads")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []int64{11, 22}, cfg.AdminIDs)
	assert.Equal(t, DefaultAPIEndpoint, cfg.BotAPIEndpoint)
	assert.Equal(t, DefaultCourseURL, cfg.CourseURL)
	assert.Equal(t, "name_choice", cfg.FormFlow)
	assert.Equal(t, filepath.Join("/var/lib/leads", "events.jsonl"), cfg.EventLogPath)
	assert.Equal(t, "export", cfg.ExportDir)
	assert.Equal(t, 587, cfg.Mail.Port)
	assert.Equal(t, "leads", cfg.Queue.Exchange)
	assert.Empty(t, cfg.Database.Host)
	assert.Empty(t, cfg.HTTPAddr)
	assert.Empty(t, cfg.CORSOrigins)
}

func TestLoadCORSOrigins(t *testing.T) {
	setRequired(t)
	t.Setenv("HTTP_CORS_ORIGINS", "https://a.example.com, ,https://b.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOrigins)
}

func TestLoadLegacyAdminVariable(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("ADMIN_TELEGRAM_IDS", "")
	t.Setenv("ADMIN_TELEGRAM_ID", "77")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []int64{77}, cfg.AdminIDs)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing token", func(t *testing.T) {
		t.Setenv("BOT_TOKEN", "")
		t.Setenv("ADMIN_TELEGRAM_IDS", "1")
		_, err := Load()
		assert.ErrorIs(t, err, ErrMissing)
	})

	t.Run("missing admins", func(t *testing.T) {
		t.Setenv("BOT_TOKEN", "x")
		t.Setenv("ADMIN_TELEGRAM_IDS", "")
		t.Setenv("ADMIN_TELEGRAM_ID", "")
		_, err := Load()
		assert.ErrorIs(t, err, ErrMissing)
	})

	t.Run("bad admin id", func(t *testing.T) {
		t.Setenv("BOT_TOKEN", "x")
		t.Setenv("ADMIN_TELEGRAM_IDS", "12,abc")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("smtp without sender", func(t *testing.T) {
		setRequired(t)
		t.Setenv("SMTP_HOST", "smtp.example.com")
		t.Setenv("SMTP_FROM", "")
		_, err := Load()
		assert.ErrorIs(t, err, ErrMissing)
	})

	t.Run("bad smtp port", func(t *testing.T) {
		setRequired(t)
		t.Setenv("SMTP_PORT", "twenty-five")
		_, err := Load()
		assert.Error(t, err)
	})
}
