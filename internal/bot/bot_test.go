package bot

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadform-bot/internal/form"
)

type fakeAPI struct {
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func TestReplyMarkup(t *testing.T) {
	t.Run("nothing to render", func(t *testing.T) {
		assert.Nil(t, ReplyMarkup(form.Reply{Text: "hi"}))
	})

	t.Run("choices are chunked and link comes last", func(t *testing.T) {
		reply := form.Reply{
			Choices: []form.Choice{
				{Token: "a", Label: "A"}, {Token: "b", Label: "B"},
				{Token: "c", Label: "C"}, {Token: "d", Label: "D"},
			},
			Link: &form.Link{Label: "Site", URL: "https://example.com"},
		}

		markup := ReplyMarkup(reply)
		require.NotNil(t, markup)
		require.Len(t, markup.InlineKeyboard, 3)
		assert.Len(t, markup.InlineKeyboard[0], 3)
		assert.Len(t, markup.InlineKeyboard[1], 1)

		first := markup.InlineKeyboard[0][0]
		require.NotNil(t, first.CallbackData)
		assert.Equal(t, "form:a", *first.CallbackData)

		link := markup.InlineKeyboard[2][0]
		require.NotNil(t, link.URL)
		assert.Equal(t, "https://example.com", *link.URL)
	})
}

func TestSendReply(t *testing.T) {
	api := &fakeAPI{}
	b := New(api, nil, nil, []int64{1})

	require.NoError(t, b.SendReply(10, form.Reply{Text: "plain"}))
	require.NoError(t, b.SendReply(10, form.Reply{Text: "pick", Choices: []form.Choice{{Token: "x", Label: "X"}}}))

	require.Len(t, api.sent, 2)
	plain := api.sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, "plain", plain.Text)
	assert.Nil(t, plain.ReplyMarkup)

	pick := api.sent[1].(tgbotapi.MessageConfig)
	assert.IsType(t, tgbotapi.InlineKeyboardMarkup{}, pick.ReplyMarkup)
}

func TestIsAdmin(t *testing.T) {
	b := New(&fakeAPI{}, nil, nil, []int64{1, 2})
	assert.True(t, b.IsAdmin(2))
	assert.False(t, b.IsAdmin(3))
}

func TestRegisterCommands(t *testing.T) {
	api := &fakeAPI{}
	b := New(api, nil, nil, nil)

	require.NoError(t, b.RegisterCommands())
	require.Len(t, api.requests, 1)
	cfg := api.requests[0].(tgbotapi.SetMyCommandsConfig)
	assert.Equal(t, "start", cfg.Commands[0].Command)
}
