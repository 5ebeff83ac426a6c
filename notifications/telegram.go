package notifications

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// telegramSender is the part of tgbotapi.BotAPI used to deliver messages.
type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier sends alerts through a Telegram bot.
type TelegramNotifier struct {
	bot         telegramSender
	defaultChat string
	log         *zap.Logger
}

// NewTelegramNotifier authenticates the bot token. Messages without a chat id go to
// defaultChat.
func NewTelegramNotifier(token, defaultChat string, log *zap.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	log.Info("✅ Telegram bot authorised", zap.String("bot", bot.Self.UserName))
	return &TelegramNotifier{bot: bot, defaultChat: defaultChat, log: log}, nil
}

// Notify sends msg to its chat.
func (t *TelegramNotifier) Notify(ctx context.Context, msg Message) error {
	chat := msg.ChatID
	if chat == "" {
		chat = t.defaultChat
	}
	if chat == "" {
		return fmt.Errorf("telegram: no chat id for alert %d", msg.AlertID)
	}
	chatID, err := strconv.ParseInt(chat, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q: %w", chat, err)
	}

	out := tgbotapi.NewMessage(chatID, FormatTelegram(msg))
	out.ParseMode = tgbotapi.ModeHTML
	out.DisableWebPagePreview = true

	if _, err := t.bot.Send(out); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	t.log.Debug("Telegram alert sent", zap.Uint("alert_id", msg.AlertID), zap.String("ticker", msg.Ticker))
	return nil
}

// FormatTelegram renders msg as the HTML body of a Telegram message.
func FormatTelegram(msg Message) string {
	title := msg.Title
	if title == "" {
		title = "Wheel Screener Alert"
	}
	return fmt.Sprintf("🔔 <b>%s</b>\n\n%s\n\n<i>%s</i>",
		tgbotapi.EscapeText(tgbotapi.ModeHTML, title),
		tgbotapi.EscapeText(tgbotapi.ModeHTML, msg.Text),
		msg.At.Format("2006-01-02 15:04 MST"))
}
