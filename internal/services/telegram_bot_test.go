package services

import (
	"context"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUpdates struct {
	updates chan tgbotapi.Update
	mu      sync.Mutex
	sent    []tgbotapi.MessageConfig
	stopped bool
}

func newFakeUpdates() *fakeUpdates {
	return &fakeUpdates{updates: make(chan tgbotapi.Update, 8)}
}

func (f *fakeUpdates) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeUpdates) StopReceivingUpdates() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func (f *fakeUpdates) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func (f *fakeUpdates) replies() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.MessageConfig(nil), f.sent...)
}

func commandMessage(id int, chatID int64, text string) *tgbotapi.Message {
	length := len(text)
	for i, r := range text {
		if r == ' ' {
			length = i
			break
		}
	}
	return &tgbotapi.Message{
		MessageID: id,
		Chat:      &tgbotapi.Chat{ID: chatID},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}},
	}
}

func TestTelegramBotReply(t *testing.T) {
	registry := NewRegistry(nil)
	bot := NewTelegramBotService(nil, NewCommands(registry), zerolog.Nop())

	tests := []struct {
		text string
		want string
	}{
		{"/subscribe alice", "Subscribed to alice"},
		{"/subscribe@gitopia_bot alice", "Already subscribed to alice"},
		{"/subscribe list", "Active subscriptions: alice"},
		{"/unsubscribe bob", "Not subscribing to bob already"},
		{"/help", helpText},
		{"/start", helpText},
		{"/wat", "Unknown command. Use /help to see available commands."},
	}
	for _, tt := range tests {
		got, ok := bot.reply(commandMessage(1, -100, tt.text))
		require.True(t, ok, tt.text)
		assert.Equal(t, tt.want, got, tt.text)
	}
	assert.Equal(t, []string{"alice"}, registry.Names("-100"))

	_, ok := bot.reply(&tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1}, Text: "hello"})
	assert.False(t, ok)
}

func TestTelegramBotRunRepliesToInvokingMessage(t *testing.T) {
	api := newFakeUpdates()
	registry := NewRegistry(nil)
	bot := NewTelegramBotService(api, NewCommands(registry), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bot.Run(ctx) }()

	api.updates <- tgbotapi.Update{Message: commandMessage(17, 42, "/subscribe *")}
	api.updates <- tgbotapi.Update{Message: &tgbotapi.Message{MessageID: 18, Chat: &tgbotapi.Chat{ID: 42}, Text: "chatter"}}

	require.Eventually(t, func() bool { return len(api.replies()) == 1 }, time.Second, 5*time.Millisecond)
	reply := api.replies()[0]
	assert.Equal(t, int64(42), reply.ChatID)
	assert.Equal(t, 17, reply.ReplyToMessageID)
	assert.Equal(t, "Subscribed to *", reply.Text)
	assert.Equal(t, []string{"*"}, registry.Names("42"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("bot did not stop")
	}
	api.mu.Lock()
	assert.True(t, api.stopped)
	api.mu.Unlock()
}

func TestTelegramBotWithoutToken(t *testing.T) {
	bot := NewTelegramBotService(nil, NewCommands(NewRegistry(nil)), zerolog.Nop())
	assert.NoError(t, bot.Run(context.Background()))
}
