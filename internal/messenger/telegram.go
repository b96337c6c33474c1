// Package messenger delivers outbound chat messages through the Telegram
// Bot API.
package messenger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/BatmanBruc/paygate-bot/internal/messages"
	"github.com/BatmanBruc/paygate-bot/types"
)

type Telegram struct {
	bot    *bot.Bot
	logger *slog.Logger
}

type Option func(*options)

type options struct {
	serverURL string
}

// WithServerURL points the client at a different Bot API endpoint.
func WithServerURL(url string) Option {
	return func(o *options) {
		o.serverURL = url
	}
}

func NewTelegram(token string, logger *slog.Logger, opts ...Option) (*Telegram, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	botOpts := []bot.Option{bot.WithSkipGetMe()}
	if o.serverURL != "" {
		botOpts = append(botOpts, bot.WithServerURL(o.serverURL))
	}
	b, err := bot.New(token, botOpts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Telegram{bot: b, logger: logger}, nil
}

// Send delivers msg as HTML with an optional inline keyboard.
func (t *Telegram) Send(ctx context.Context, msg types.OutboundMessage) error {
	params := &bot.SendMessageParams{
		ChatID:    msg.ChatID,
		Text:      msg.Text,
		ParseMode: messages.ParseModeHTML,
	}
	if len(msg.Buttons) > 0 {
		params.ReplyMarkup = BuildInlineKeyboard(msg.Buttons)
	}
	if _, err := t.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("send message to chat %d: %w", msg.ChatID, err)
	}
	return nil
}

func (t *Telegram) AnswerCallback(ctx context.Context, callbackID string) error {
	_, err := t.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
	})
	return err
}

// RegisterWebhook points Telegram at publicURL + "/webhook".
func (t *Telegram) RegisterWebhook(ctx context.Context, publicURL string) error {
	url := strings.TrimRight(publicURL, "/") + "/webhook"
	ok, err := t.bot.SetWebhook(ctx, &bot.SetWebhookParams{URL: url})
	if err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	if !ok {
		return fmt.Errorf("set webhook: telegram refused %s", url)
	}
	t.logger.InfoContext(ctx, "telegram webhook registered", "url", url)
	return nil
}

// BuildInlineKeyboard lays buttons out three per row.
func BuildInlineKeyboard(buttons []types.Button) *models.InlineKeyboardMarkup {
	pad := func(s string) string { return " " + s + " " }
	rows := make([][]models.InlineKeyboardButton, 0)
	row := make([]models.InlineKeyboardButton, 0, 3)
	for i, button := range buttons {
		if i > 0 && i%3 == 0 {
			rows = append(rows, row)
			row = make([]models.InlineKeyboardButton, 0, 3)
		}
		row = append(row, models.InlineKeyboardButton{
			Text:         pad(button.Text),
			CallbackData: button.Data,
		})
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	return &models.InlineKeyboardMarkup{
		InlineKeyboard: rows,
	}
}
