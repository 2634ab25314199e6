// Package services holds the relay use cases: decoding and mapping stream
// events, dispatching notifications, and the chat subscription commands.
package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/gitopia/gitopia-discord-bot/internal/adapters/stream"
	"github.com/gitopia/gitopia-discord-bot/internal/domain"
	"github.com/gitopia/gitopia-discord-bot/internal/logging"
	"github.com/gitopia/gitopia-discord-bot/internal/mapping"
	"github.com/gitopia/gitopia-discord-bot/internal/metrics"
	"github.com/gitopia/gitopia-discord-bot/internal/ports"
)

// Pipeline turns each raw stream event into at most one notification and
// dispatches it before returning.
type Pipeline struct {
	mapper     *mapping.Mapper
	dispatcher *Dispatcher
	logger     zerolog.Logger
	metrics    *metrics.Metrics
}

var _ ports.EventHandler = (*Pipeline)(nil)

func NewPipeline(mapper *mapping.Mapper, dispatcher *Dispatcher, logger zerolog.Logger, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		mapper:     mapper,
		dispatcher: dispatcher,
		logger:     logging.Component(logger, "pipeline"),
		metrics:    m,
	}
}

func (p *Pipeline) HandleEvent(ctx context.Context, event domain.RawEvent) {
	logger := p.logger.With().Str("frame_id", logging.FrameID(ctx)).Logger()

	attrs, ok, err := stream.Decode(event)
	if err != nil {
		logger.Error().Err(err).Msg("decode event")
		p.skip("decode")
		return
	}
	if !ok {
		return
	}
	if p.metrics != nil {
		p.metrics.EventsDecoded.Inc()
	}

	action := attrs.Action()
	logger = logger.With().Str("action", string(action)).Logger()

	res, err := p.mapper.Map(ctx, attrs)
	switch {
	case errors.Is(err, domain.ErrUnhandledAction):
		logger.Info().Msg("unhandled action")
		p.skip("unhandled_action")
		return
	case errors.Is(err, context.DeadlineExceeded):
		logger.Error().Err(err).Msg("lookup timed out")
		p.skip("timeout")
		return
	case err != nil:
		logger.Error().Err(err).Msg("build notification")
		p.skip("error")
		return
	}
	if !res.Notification.Dispatchable() {
		p.skip("empty")
		return
	}
	if p.metrics != nil {
		p.metrics.NotificationsBuilt.WithLabelValues(string(action)).Inc()
	}

	delivered := p.dispatcher.Dispatch(ctx, res.Notification, res.MatchName)
	logger.Debug().
		Str("match_name", res.MatchName).
		Int("delivered", delivered).
		Msg("event processed")
}

func (p *Pipeline) skip(reason string) {
	if p.metrics != nil {
		p.metrics.EventsSkipped.WithLabelValues(reason).Inc()
	}
}
