// Package config reads the bot configuration from the environment. Call
// godotenv.Load before Load to pick up a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"leadform-bot/internal/database"
	"leadform-bot/internal/form"
	"leadform-bot/internal/mailer"
	"leadform-bot/internal/queue"
	"leadform-bot/pkg/logger"
)

var ErrMissing = errors.New("missing required setting")

const (
	DefaultAPIEndpoint = "https://api.telegram.org/bot%s/%s"
	DefaultCourseURL   = "https://xn--80ablbmpklx3m.xn--p1ai"
)

type Config struct {
	BotToken       string
	BotAPIEndpoint string
	AdminIDs       []int64

	CourseURL string
	FormFlow  string

	DataDir      string
	ExportDir    string
	EventLogPath string

	// HTTPAddr enables the health/metrics server when set.
	HTTPAddr    string
	CORSOrigins []string

	Logger logger.Config

	// Database is used for the audit trail when Host is set.
	Database database.Config
	// Queue publishes audit events when URL is set.
	Queue queue.Config
	// Mail sends the course link to new leads when Host is set.
	Mail mailer.Config
}

func Load() (*Config, error) {
	cfg := &Config{
		BotToken:       os.Getenv("BOT_TOKEN"),
		BotAPIEndpoint: getEnv("BOT_API_ENDPOINT", DefaultAPIEndpoint),
		CourseURL:      getEnv("COURSE_URL", DefaultCourseURL),
		FormFlow:       getEnv("FORM_FLOW", form.FlowNameChoice),
		DataDir:        getEnv("DATA_DIR", "data"),
		ExportDir:      getEnv("EXPORT_DIR", "export"),
		HTTPAddr:       os.Getenv("HTTP_ADDR"),
		Logger: logger.Config{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
		Database: database.Config{
			Host:     os.Getenv("DB_HOST"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			DBName:   os.Getenv("DB_NAME"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Queue: queue.Config{
			URL:      os.Getenv("AMQP_URL"),
			Exchange: getEnv("AMQP_EXCHANGE", queue.DefaultExchange),
		},
		Mail: mailer.Config{
			Host:     os.Getenv("SMTP_HOST"),
			User:     os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
		},
	}
	cfg.EventLogPath = getEnv("EVENT_LOG_PATH", filepath.Join(cfg.DataDir, "events.jsonl"))

	if cfg.BotToken == "" {
		return nil, fmt.Errorf("%w: BOT_TOKEN", ErrMissing)
	}

	admins := getEnv("ADMIN_TELEGRAM_IDS", os.Getenv("ADMIN_TELEGRAM_ID"))
	if admins == "" {
		return nil, fmt.Errorf("%w: ADMIN_TELEGRAM_IDS", ErrMissing)
	}
	ids, err := parseIDs(admins)
	if err != nil {
		return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_IDS: %w", err)
	}
	cfg.AdminIDs = ids
	cfg.CORSOrigins = splitList(os.Getenv("HTTP_CORS_ORIGINS"))

	port, err := strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}
	cfg.Mail.Port = port

	if cfg.Mail.Host != "" && cfg.Mail.From == "" {
		return nil, fmt.Errorf("%w: SMTP_FROM (required with SMTP_HOST)", ErrMissing)
	}

	return cfg, nil
}

func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, errors.New("no ids")
	}
	return ids, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
