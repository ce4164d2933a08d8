package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"leadform-bot/internal/bot"
	"leadform-bot/internal/config"
	"leadform-bot/internal/database"
	"leadform-bot/internal/events"
	"leadform-bot/internal/form"
	"leadform-bot/internal/handlers"
	"leadform-bot/internal/leadstore"
	"leadform-bot/internal/mailer"
	"leadform-bot/internal/queue"
	"leadform-bot/internal/server"
	"leadform-bot/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	zapLogger, err := logger.New(&cfg.Logger, logger.DefaultServiceName)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to init logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = zapLogger.Sync() }()
	zap.ReplaceGlobals(zapLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := leadstore.New(cfg.DataDir, cfg.ExportDir)
	if err != nil {
		zap.L().Fatal("Failed to open lead store", zap.Error(err))
	}
	zap.L().Info("Lead store ready", zap.String("path", store.Path()))

	eventLog, err := events.NewFileLog(cfg.EventLogPath)
	if err != nil {
		zap.L().Fatal("Failed to open event log", zap.Error(err))
	}
	recorders := events.Multi{eventLog}

	var httpOpts []server.Option

	if cfg.Database.Enabled() {
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			zap.L().Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		zap.L().Info("Running database migrations...")
		if err := db.RunMigrations(); err != nil {
			zap.L().Fatal("Failed to run migrations", zap.Error(err))
		}
		recorders = append(recorders, db)
		httpOpts = append(httpOpts, server.WithDependency("postgres", db))
	}

	if cfg.Queue.Enabled() {
		publisher, err := queue.Dial(cfg.Queue)
		if err != nil {
			zap.L().Fatal("Failed to connect to message broker", zap.Error(err))
		}
		defer publisher.Close()
		recorders = append(recorders, publisher)
	}

	engineOpts := []form.EngineOption{
		form.WithRecorder(recorders),
		form.WithLogger(zap.L().Named("form")),
	}
	if cfg.Mail.Enabled() {
		engineOpts = append(engineOpts, form.WithNotifier(mailer.New(cfg.Mail, cfg.CourseURL)))
	}

	flow, err := form.ByName(cfg.FormFlow, cfg.CourseURL)
	if err != nil {
		zap.L().Fatal("Invalid FORM_FLOW", zap.Error(err))
	}
	engine, err := form.New(flow, store, engineOpts...)
	if err != nil {
		zap.L().Fatal("Failed to build form engine", zap.Error(err))
	}
	defer engine.Wait()

	api, err := bot.Connect(cfg.BotToken, cfg.BotAPIEndpoint)
	if err != nil {
		zap.L().Fatal("Failed to create bot", zap.Error(err))
	}
	b := bot.New(api, store, engine, cfg.AdminIDs)

	if err := b.RegisterCommands(); err != nil {
		zap.L().Warn("Failed to register command menu", zap.Error(err))
	}

	if cfg.HTTPAddr != "" {
		httpOpts = append(httpOpts,
			server.WithCORS(cfg.CORSOrigins),
			server.WithLogger(zap.L().Named("http")))
		srv := server.New(cfg.HTTPAddr, store, httpOpts...)
		go func() {
			if err := srv.Start(); err != nil {
				zap.L().Error("HTTP server stopped", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	zap.L().Info("Bot started successfully",
		zap.String("flow", flow.Name),
		zap.Int("admins", len(cfg.AdminIDs)))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("Shutting down")
			api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			handlers.HandleUpdate(ctx, b, update)
		}
	}
}
