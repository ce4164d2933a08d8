package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"leadform-bot/internal/form"
	"leadform-bot/internal/leadstore"
)

// ChoicePrefix marks callback data that carries a form choice token.
const ChoicePrefix = "form"

const buttonsPerRow = 3

// API is the subset of *tgbotapi.BotAPI used to talk to users.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Bot struct {
	API      API
	Leads    *leadstore.Store
	Form     *form.Engine
	AdminIDs map[int64]bool
}

// Connect authorizes against the Bot API. endpoint is a format string such
// as tgbotapi.APIEndpoint; Bale and self-hosted servers use their own.
func Connect(token, endpoint string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	zap.L().Info("Authorized on account", zap.String("username", api.Self.UserName))
	return api, nil
}

func New(api API, leads *leadstore.Store, engine *form.Engine, adminIDs []int64) *Bot {
	admins := make(map[int64]bool, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = true
	}

	return &Bot{
		API:      api,
		Leads:    leads,
		Form:     engine,
		AdminIDs: admins,
	}
}

func (b *Bot) IsAdmin(userID int64) bool {
	return b.AdminIDs[userID]
}

func (b *Bot) SendMessage(chatID int64, text string, replyMarkup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if replyMarkup != nil {
		msg.ReplyMarkup = replyMarkup
	}

	_, err := b.API.Send(msg)
	return err
}

func (b *Bot) EditMessage(chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewEditMessageText(chatID, messageID, text)
	msg.ReplyMarkup = markup

	_, err := b.API.Send(msg)
	return err
}

func (b *Bot) AnswerCallbackQuery(callbackID string, text string) error {
	callback := tgbotapi.NewCallback(callbackID, text)
	_, err := b.API.Request(callback)
	return err
}

func (b *Bot) SendDocument(chatID int64, path, caption string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(path))
	doc.Caption = caption

	_, err := b.API.Send(doc)
	return err
}

// SendReply sends a form reply as a new message.
func (b *Bot) SendReply(chatID int64, reply form.Reply) error {
	if markup := ReplyMarkup(reply); markup != nil {
		return b.SendMessage(chatID, reply.Text, *markup)
	}
	return b.SendMessage(chatID, reply.Text, nil)
}

// EditReply replaces the message whose button was pressed.
func (b *Bot) EditReply(chatID int64, messageID int, reply form.Reply) error {
	return b.EditMessage(chatID, messageID, reply.Text, ReplyMarkup(reply))
}

// ReplyMarkup renders choices as callback buttons and the link as a URL
// button. It returns nil when there is nothing to show.
func ReplyMarkup(reply form.Reply) *tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton

	var row []tgbotapi.InlineKeyboardButton
	for _, c := range reply.Choices {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(c.Label, ChoiceData(c.Token)))
		if len(row) == buttonsPerRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	if reply.Link != nil && reply.Link.URL != "" {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL(reply.Link.Label, reply.Link.URL),
		))
	}

	if len(rows) == 0 {
		return nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

func ChoiceData(token string) string {
	return ChoicePrefix + ":" + token
}

// RegisterCommands publishes the command menu shown by Telegram clients.
func (b *Bot) RegisterCommands() error {
	cmds := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "start", Description: "оформить доступ к курсу"},
		tgbotapi.BotCommand{Command: "help", Description: "помощь"},
		tgbotapi.BotCommand{Command: "settings", Description: "статус согласия"},
		tgbotapi.BotCommand{Command: "feedback", Description: "оставить отзыв"},
		tgbotapi.BotCommand{Command: "cancel", Description: "прервать анкету"},
		tgbotapi.BotCommand{Command: "inbox", Description: "последние заявки (админ)"},
		tgbotapi.BotCommand{Command: "find", Description: "поиск заявок (админ)"},
		tgbotapi.BotCommand{Command: "set_status", Description: "сменить статус (админ)"},
		tgbotapi.BotCommand{Command: "export_csv", Description: "выгрузка заявок (CSV, админ)"},
		tgbotapi.BotCommand{Command: "export", Description: "выгрузка заявок (CSV, админ)"},
	)
	_, err := b.API.Request(cmds)
	return err
}
