package ports

import (
	"context"

	"github.com/gitopia/gitopia-discord-bot/internal/domain"
)

// EventHandler consumes transaction events in the order they were received.
// It returns only after the event is fully processed.
type EventHandler interface {
	HandleEvent(ctx context.Context, event domain.RawEvent)
}
