package handlers

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"leadform-bot/internal/bot"
	"leadform-bot/internal/form"
	"leadform-bot/internal/metrics"
	"leadform-bot/pkg/logger"
)

const (
	msgInternalError  = "Произошла ошибка. Попробуйте ещё раз позже."
	msgUnknownCommand = "Неизвестная команда. Список команд: /help"
	msgUnknownAction  = "Неизвестное действие."
	msgFeedbackPrompt = "Будем признательны за обратную связь: одним сообщением напишите, что бы вы хотели улучшить."
	msgHelp           = "Команды:\n" +
		"/start — оформить доступ к курсу\n" +
		"/help — помощь\n" +
		"/settings — статус согласия\n" +
		"/feedback — оставить отзыв\n" +
		"/cancel — прервать анкету"
	msgAdminHelp = "\n\nДля администратора:\n" +
		"/inbox — последние заявки\n" +
		"/find <запрос> — поиск заявок\n" +
		"/set_status <id> <статус> — сменить статус\n" +
		"/export_csv — выгрузка заявок (CSV)\n" +
		"/export — то же, что /export_csv"
)

// HandleUpdate dispatches one update. A panic while handling it is logged
// and does not stop the update loop.
func HandleUpdate(ctx context.Context, b *bot.Bot, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordHandlerError("panic")
			zap.L().Error("Recovered from panic while handling update",
				zap.Int("update_id", update.UpdateID),
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()

	if update.Message != nil {
		// The form is a one-on-one conversation; group chats are ignored.
		if !update.Message.Chat.IsPrivate() {
			return
		}
		if update.Message.IsCommand() {
			HandleCommand(ctx, b, update.Message)
		} else {
			HandleMessage(ctx, b, update.Message)
		}
	} else if update.CallbackQuery != nil {
		HandleCallbackQuery(ctx, b, update.CallbackQuery)
	}
}

func HandleCommand(ctx context.Context, b *bot.Bot, message *tgbotapi.Message) {
	if message.From == nil {
		return
	}

	switch message.Command() {
	case "start":
		HandleStart(ctx, b, message)
	case "help":
		handleHelp(b, message)
	case "settings":
		handleSettings(b, message)
	case "feedback":
		b.SendMessage(message.Chat.ID, msgFeedbackPrompt, nil)
	case "cancel":
		reply := b.Form.Cancel(ctx, formUser(message.From))
		sendReply(b, message.Chat.ID, reply)
	case "inbox":
		handleInbox(b, message)
	case "find":
		handleFind(b, message)
	case "set_status":
		handleSetStatus(b, message)
	case "export_csv", "export":
		handleExport(b, message)
	default:
		b.SendMessage(message.Chat.ID, msgUnknownCommand, nil)
	}
}

func HandleStart(ctx context.Context, b *bot.Bot, message *tgbotapi.Message) {
	reply, err := b.Form.Start(ctx, formUser(message.From))
	if err != nil {
		replyError(b, message.Chat.ID, message.From.ID, "start", err)
		return
	}
	sendReply(b, message.Chat.ID, reply)
}

// HandleMessage routes plain text to the form. Text answers the pending
// question, or becomes feedback when nothing is pending.
func HandleMessage(ctx context.Context, b *bot.Bot, message *tgbotapi.Message) {
	if message.From == nil || message.Text == "" {
		return
	}

	reply, err := b.Form.Text(ctx, formUser(message.From), message.Text)
	if err != nil {
		replyError(b, message.Chat.ID, message.From.ID, "text", err)
		return
	}
	sendReply(b, message.Chat.ID, reply)
}

func HandleCallbackQuery(ctx context.Context, b *bot.Bot, callback *tgbotapi.CallbackQuery) {
	defer b.AnswerCallbackQuery(callback.ID, "")

	action, token, _ := strings.Cut(callback.Data, ":")
	if action != bot.ChoicePrefix || token == "" {
		chatID := callback.From.ID
		if callback.Message != nil {
			chatID = callback.Message.Chat.ID
		}
		b.SendMessage(chatID, msgUnknownAction, nil)
		return
	}

	reply, err := b.Form.Choice(ctx, formUser(callback.From), token)
	if callback.Message == nil {
		// Inline-mode messages cannot be edited through the chat, so answer in private.
		if err != nil {
			replyError(b, callback.From.ID, callback.From.ID, "choice", err)
			return
		}
		sendReply(b, callback.From.ID, reply)
		return
	}

	if err != nil {
		replyError(b, callback.Message.Chat.ID, callback.From.ID, "choice", err)
		return
	}
	if err := b.EditReply(callback.Message.Chat.ID, callback.Message.MessageID, reply); err != nil {
		zap.L().Warn("Failed to edit message, sending a new one",
			zap.Int64(logger.FieldChatID, callback.Message.Chat.ID),
			zap.Error(err))
		sendReply(b, callback.Message.Chat.ID, reply)
	}
}

func handleHelp(b *bot.Bot, message *tgbotapi.Message) {
	text := msgHelp
	if b.IsAdmin(message.From.ID) {
		text += msgAdminHelp
	}
	b.SendMessage(message.Chat.ID, text, nil)
}

func handleSettings(b *bot.Bot, message *tgbotapi.Message) {
	view := b.Form.Status(message.From.ID)

	consent := "не указано"
	if view.Consent != nil {
		if *view.Consent {
			consent = "да"
		} else {
			consent = "нет"
		}
	}

	stage := "анкета не заполняется"
	if view.Stage != form.StageIdle {
		stage = "ожидается ответ (" + view.Stage + ")"
	}

	text := fmt.Sprintf("Статус согласия: %s\nСостояние: %s\n\nЧтобы изменить — выполните /start.", consent, stage)
	b.SendMessage(message.Chat.ID, text, nil)
}

func formUser(from *tgbotapi.User) form.User {
	return form.User{
		ID:          from.ID,
		Username:    from.UserName,
		DisplayName: strings.TrimSpace(from.FirstName + " " + from.LastName),
	}
}

func sendReply(b *bot.Bot, chatID int64, reply form.Reply) {
	if err := b.SendReply(chatID, reply); err != nil {
		zap.L().Error("Failed to send reply", zap.Int64(logger.FieldChatID, chatID), zap.Error(err))
	}
}

// replyError logs an internal failure and tells the user something went
// wrong without exposing details.
func replyError(b *bot.Bot, chatID, userID int64, kind string, err error) {
	metrics.RecordHandlerError(kind)
	zap.L().Error("Failed to handle update",
		zap.String(logger.FieldOperation, kind),
		zap.Int64(logger.FieldUserID, userID),
		zap.Error(err))
	b.SendMessage(chatID, msgInternalError, nil)
}
