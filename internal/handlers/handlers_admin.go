package handlers

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"leadform-bot/internal/bot"
	"leadform-bot/internal/leadstore"
	"leadform-bot/internal/metrics"
	"leadform-bot/internal/models"
	"leadform-bot/pkg/logger"
)

const (
	inboxLimit = 10
	findLimit  = 10
)

const (
	resultOK     = "ok"
	resultDenied = "denied"
	resultUsage  = "usage"
	resultError  = "error"
)

const msgForbidden = "Команда недоступна."

// requireAdmin answers non-admins and reports whether the command may run.
func requireAdmin(b *bot.Bot, message *tgbotapi.Message, command string) bool {
	if b.IsAdmin(message.From.ID) {
		return true
	}

	metrics.RecordAdminCommand(command, resultDenied)
	zap.L().Info("Admin command denied",
		zap.String(logger.FieldCommand, command),
		zap.Int64(logger.FieldUserID, message.From.ID))
	b.SendMessage(message.Chat.ID, msgForbidden, nil)
	return false
}

func handleInbox(b *bot.Bot, message *tgbotapi.Message) {
	if !requireAdmin(b, message, "inbox") {
		return
	}

	leads, err := b.Leads.List(inboxLimit)
	if err != nil {
		metrics.RecordAdminCommand("inbox", resultError)
		replyError(b, message.Chat.ID, message.From.ID, "inbox", err)
		return
	}

	metrics.RecordAdminCommand("inbox", resultOK)
	if len(leads) == 0 {
		b.SendMessage(message.Chat.ID, "Заявок пока нет.", nil)
		return
	}
	b.SendMessage(message.Chat.ID, formatLeads(leads), nil)
}

func handleFind(b *bot.Bot, message *tgbotapi.Message) {
	if !requireAdmin(b, message, "find") {
		return
	}

	query := strings.TrimSpace(message.CommandArguments())
	if query == "" {
		metrics.RecordAdminCommand("find", resultUsage)
		b.SendMessage(message.Chat.ID, "Использование: /find Иван", nil)
		return
	}

	leads, err := b.Leads.Find(query)
	if err != nil {
		metrics.RecordAdminCommand("find", resultError)
		replyError(b, message.Chat.ID, message.From.ID, "find", err)
		return
	}

	metrics.RecordAdminCommand("find", resultOK)
	if len(leads) == 0 {
		b.SendMessage(message.Chat.ID, "Ничего не найдено.", nil)
		return
	}

	text := formatLeads(leads[:min(len(leads), findLimit)])
	if len(leads) > findLimit {
		text = fmt.Sprintf("Найдено: %d, показаны первые %d.\n\n%s", len(leads), findLimit, text)
	}
	b.SendMessage(message.Chat.ID, text, nil)
}

func handleSetStatus(b *bot.Bot, message *tgbotapi.Message) {
	if !requireAdmin(b, message, "set_status") {
		return
	}

	usage := fmt.Sprintf("Формат: /set_status <id> <%s>", statusList())

	args := strings.Fields(message.CommandArguments())
	if len(args) < 2 {
		metrics.RecordAdminCommand("set_status", resultUsage)
		b.SendMessage(message.Chat.ID, usage, nil)
		return
	}

	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil || id <= 0 {
		metrics.RecordAdminCommand("set_status", resultUsage)
		b.SendMessage(message.Chat.ID, usage, nil)
		return
	}
	status := models.LeadStatus(strings.ToLower(args[1]))

	err = b.Leads.SetStatus(id, status)
	switch {
	case err == nil:
		metrics.RecordAdminCommand("set_status", resultOK)
		zap.L().Info("Lead status changed",
			zap.Int64(logger.FieldLeadID, id),
			zap.String("status", string(status)),
			zap.Int64(logger.FieldUserID, message.From.ID))
		b.SendMessage(message.Chat.ID, fmt.Sprintf("✅ Статус заявки #%d: %s", id, status), nil)
	case errors.Is(err, leadstore.ErrInvalidStatus):
		metrics.RecordAdminCommand("set_status", resultUsage)
		b.SendMessage(message.Chat.ID, fmt.Sprintf("Недопустимый статус. Допустимые: %s", statusList()), nil)
	case errors.Is(err, leadstore.ErrLeadNotFound):
		metrics.RecordAdminCommand("set_status", resultUsage)
		b.SendMessage(message.Chat.ID, fmt.Sprintf("Заявка #%d не найдена.", id), nil)
	default:
		metrics.RecordAdminCommand("set_status", resultError)
		replyError(b, message.Chat.ID, message.From.ID, "set_status", err)
	}
}

func handleExport(b *bot.Bot, message *tgbotapi.Message) {
	command := message.Command()
	if !requireAdmin(b, message, command) {
		return
	}

	path, err := b.Leads.Export()
	if err != nil {
		metrics.RecordAdminCommand(command, resultError)
		zap.L().Error("Failed to export leads", zap.Error(err))
		b.SendMessage(message.Chat.ID, "Экспорт не получился.", nil)
		return
	}

	if err := b.SendDocument(message.Chat.ID, path, filepath.Base(path)); err != nil {
		metrics.RecordAdminCommand(command, resultError)
		zap.L().Error("Failed to send export", zap.String("path", path), zap.Error(err))
		b.SendMessage(message.Chat.ID, "Экспорт не получился.", nil)
		return
	}
	metrics.RecordAdminCommand(command, resultOK)
}

func formatLeads(leads []models.Lead) string {
	lines := make([]string, 0, len(leads))
	for _, l := range leads {
		lines = append(lines, formatLead(l))
	}
	return strings.Join(lines, "\n")
}

func formatLead(l models.Lead) string {
	line := fmt.Sprintf("#%d | %s | %s | %s | %s", l.ID, l.FIO, l.Email, l.Gender, l.Status)
	if l.Username != "" {
		line += " | @" + l.Username
	}
	return line
}

func statusList() string {
	names := make([]string, 0, len(models.AllowedStatuses))
	for _, s := range models.AllowedStatuses {
		names = append(names, string(s))
	}
	return strings.Join(names, "|")
}
