package ports

import (
	"context"

	"github.com/gitopia/gitopia-discord-bot/internal/domain"
)

// Channel is a resolved delivery target.
type Channel interface {
	ID() string
	Send(ctx context.Context, n domain.Notification) error
}

// ChannelResolver turns a channel id into a deliverable handle.
type ChannelResolver interface {
	Channel(ctx context.Context, channelID string) (Channel, error)
}
