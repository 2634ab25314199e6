// Package notifiers delivers notifications to Telegram chats.
package notifiers

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/gitopia/gitopia-discord-bot/internal/domain"
	"github.com/gitopia/gitopia-discord-bot/internal/ports"
)

// maxCaptionLen is the Telegram limit for photo captions.
const maxCaptionLen = 1024

// BotAPI is the subset of *tgbotapi.BotAPI used for delivery.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetChat(config tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error)
}

// TelegramNotifier resolves chat ids into deliverable channels. All channels
// share one outbound rate limiter.
type TelegramNotifier struct {
	bot     BotAPI
	limiter *rate.Limiter
}

var _ ports.ChannelResolver = (*TelegramNotifier)(nil)

// NewTelegramNotifier returns a notifier sending at most perSecond messages
// per second with the given burst. perSecond <= 0 disables the limit.
func NewTelegramNotifier(bot BotAPI, perSecond float64, burst int) *TelegramNotifier {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &TelegramNotifier{bot: bot, limiter: rate.NewLimiter(limit, burst)}
}

// Channel looks the chat up. channelID is a numeric chat id or an @username.
func (t *TelegramNotifier) Channel(ctx context.Context, channelID string) (ports.Channel, error) {
	if t.bot == nil {
		return nil, errors.New("telegram bot is not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := tgbotapi.ChatInfoConfig{}
	if id, err := strconv.ParseInt(channelID, 10, 64); err == nil {
		cfg.ChatID = id
	} else {
		cfg.SuperGroupUsername = channelID
	}
	chat, err := t.bot.GetChat(cfg)
	if err != nil {
		return nil, fmt.Errorf("get chat %s: %w", channelID, err)
	}
	return &telegramChannel{id: channelID, chatID: chat.ID, notifier: t}, nil
}

type telegramChannel struct {
	id       string
	chatID   int64
	notifier *TelegramNotifier
}

func (c *telegramChannel) ID() string { return c.id }

func (c *telegramChannel) Send(ctx context.Context, n domain.Notification) error {
	if err := c.notifier.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := c.notifier.bot.Send(Message(c.chatID, n)); err != nil {
		return fmt.Errorf("send to chat %d: %w", c.chatID, err)
	}
	return nil
}

// Message builds the Telegram request for n: a photo with caption when the
// notification has a thumbnail that fits, a plain HTML message otherwise.
func Message(chatID int64, n domain.Notification) tgbotapi.Chattable {
	text := RenderHTML(n)
	if n.Thumbnail != "" && utf8.RuneCountInString(text) <= maxCaptionLen {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(n.Thumbnail))
		photo.Caption = text
		photo.ParseMode = tgbotapi.ModeHTML
		return photo
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	return msg
}

// RenderHTML renders n with the HTML subset Telegram accepts.
func RenderHTML(n domain.Notification) string {
	var b strings.Builder
	if n.Author != nil && n.Author.Name != "" {
		b.WriteString("<i>")
		b.WriteString(link(escape(n.Author.Name), n.Author.URL))
		b.WriteString("</i>\n")
	}

	b.WriteString("<b>")
	b.WriteString(link(escape(n.Title), n.URL))
	b.WriteString("</b>")

	if n.Description != "" {
		b.WriteString("\n")
		b.WriteString(markdownToHTML(n.Description))
	}
	for _, f := range n.Fields {
		b.WriteString("\n\n<b>")
		b.WriteString(escape(f.Name))
		b.WriteString("</b>\n")
		b.WriteString(markdownToHTML(f.Value))
	}
	if !n.Timestamp.IsZero() {
		b.WriteString("\n\n<i>")
		b.WriteString(n.Timestamp.UTC().Format("Jan 2, 2006 15:04 UTC"))
		b.WriteString("</i>")
	}
	return b.String()
}

var (
	mdLinkPattern   = regexp.MustCompile(`\[((?:\\.|[^\\\]])*)\]\(([^)\s]+)\)`)
	mdUnescapeText  = regexp.MustCompile(`\\(.)`)
	attributeQuoter = strings.NewReplacer(`"`, "&quot;")
)

// markdownToHTML converts [text](url) links and escapes everything else.
func markdownToHTML(s string) string {
	var b strings.Builder
	last := 0
	for _, m := range mdLinkPattern.FindAllStringSubmatchIndex(s, -1) {
		b.WriteString(escape(s[last:m[0]]))
		text := mdUnescapeText.ReplaceAllString(s[m[2]:m[3]], "$1")
		b.WriteString(link(escape(text), s[m[4]:m[5]]))
		last = m[1]
	}
	b.WriteString(escape(s[last:]))
	return b.String()
}

func link(html, href string) string {
	if href == "" {
		return html
	}
	return `<a href="` + attributeQuoter.Replace(escape(href)) + `">` + html + "</a>"
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeHTML, s)
}
