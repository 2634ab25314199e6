package services

import (
	"context"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/gitopia/gitopia-discord-bot/internal/logging"
)

const helpText = `Gitopia notifications for this chat.

/subscribe <name> - follow events of a user or DAO
/subscribe * - follow every event
/subscribe list - show what this chat follows
/unsubscribe <name> - stop following a name`

// UpdatesAPI is the subset of *tgbotapi.BotAPI the command bot needs.
type UpdatesAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramBotService long-polls Telegram and answers subscription commands.
type TelegramBotService struct {
	bot      UpdatesAPI
	commands *Commands
	logger   zerolog.Logger
}

func NewTelegramBotService(bot UpdatesAPI, commands *Commands, logger zerolog.Logger) *TelegramBotService {
	return &TelegramBotService{
		bot:      bot,
		commands: commands,
		logger:   logging.Component(logger, "telegram_bot"),
	}
}

// Run polls updates until ctx is done. Without a bot it returns immediately.
func (t *TelegramBotService) Run(ctx context.Context) error {
	if t.bot == nil {
		t.logger.Warn().Msg("no telegram token, command bot disabled")
		return nil
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.bot.GetUpdatesChan(u)
	defer t.bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message != nil {
				t.handleMessage(update.Message)
			}
		}
	}
}

func (t *TelegramBotService) handleMessage(message *tgbotapi.Message) {
	text, ok := t.reply(message)
	if !ok {
		return
	}
	msg := tgbotapi.NewMessage(message.Chat.ID, text)
	msg.ReplyToMessageID = message.MessageID
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Error().Err(err).Int64("chat_id", message.Chat.ID).Msg("send reply")
	}
}

// reply returns the answer to a command message, if any.
func (t *TelegramBotService) reply(message *tgbotapi.Message) (string, bool) {
	if message.Chat == nil || !message.IsCommand() {
		return "", false
	}
	channelID := strconv.FormatInt(message.Chat.ID, 10)
	args := message.CommandArguments()

	t.logger.Info().
		Str("channel_id", channelID).
		Str("command", message.Command()).
		Str("args", args).
		Msg("command received")

	switch message.Command() {
	case "subscribe":
		return t.commands.Subscribe(channelID, args), true
	case "unsubscribe":
		return t.commands.Unsubscribe(channelID, args), true
	case "start", "help":
		return helpText, true
	default:
		return "Unknown command. Use /help to see available commands.", true
	}
}
