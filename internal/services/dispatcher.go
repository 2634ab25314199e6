package services

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gitopia/gitopia-discord-bot/internal/domain"
	"github.com/gitopia/gitopia-discord-bot/internal/logging"
	"github.com/gitopia/gitopia-discord-bot/internal/metrics"
	"github.com/gitopia/gitopia-discord-bot/internal/ports"
)

// Dispatcher delivers notifications to the channels subscribed to them.
type Dispatcher struct {
	registry *Registry
	channels ports.ChannelResolver
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

func NewDispatcher(registry *Registry, channels ports.ChannelResolver, logger zerolog.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		channels: channels,
		logger:   logging.Component(logger, "dispatcher"),
		metrics:  m,
	}
}

// Dispatch sends n to every channel following the wildcard or matchName and
// waits for all deliveries. Failures are logged per channel. It returns the
// number of successful deliveries.
func (d *Dispatcher) Dispatch(ctx context.Context, n *domain.Notification, matchName string) int {
	if !n.Dispatchable() {
		return 0
	}
	targets := d.registry.Match(matchName)
	if len(targets) == 0 {
		return 0
	}

	results := make([]bool, len(targets))
	var g errgroup.Group
	for i, t := range targets {
		i, t := i, t
		g.Go(func() error {
			err := d.deliver(ctx, t, *n)
			results[i] = err == nil
			return err
		})
	}
	_ = g.Wait()

	delivered := 0
	for _, ok := range results {
		if ok {
			delivered++
		}
	}
	return delivered
}

func (d *Dispatcher) deliver(ctx context.Context, t Target, n domain.Notification) error {
	logger := d.logger.With().
		Str("channel_id", t.ChannelID).
		Str("frame_id", logging.FrameID(ctx)).
		Logger()

	ch := t.Channel
	if ch == nil {
		var err error
		ch, err = d.channels.Channel(ctx, t.ChannelID)
		if err != nil {
			logger.Error().Err(err).Msg("resolve channel")
			d.count("unresolved")
			return err
		}
		d.registry.SetChannel(t.ChannelID, ch)
	}

	if err := ch.Send(ctx, n); err != nil {
		logger.Error().Err(err).Str("title", n.Title).Msg("deliver notification")
		d.count("error")
		return err
	}
	logger.Debug().Str("title", n.Title).Msg("notification delivered")
	d.count("ok")
	return nil
}

func (d *Dispatcher) count(status string) {
	if d.metrics != nil {
		d.metrics.Deliveries.WithLabelValues(status).Inc()
	}
}
