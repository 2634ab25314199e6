// Package stream keeps a Tendermint websocket subscription alive and feeds
// the transaction events it carries to an event handler.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/gitopia/gitopia-discord-bot/internal/domain"
	"github.com/gitopia/gitopia-discord-bot/internal/logging"
	"github.com/gitopia/gitopia-discord-bot/internal/metrics"
	"github.com/gitopia/gitopia-discord-bot/internal/ports"
)

// TxQuery selects every committed transaction.
const TxQuery = "tm.event='Tx'"

// State is the connection state of the supervisor.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	default:
		return "unknown"
	}
}

// SubscribeRequest is the JSON-RPC request sent right after connecting.
type SubscribeRequest struct {
	Method  string          `json:"method"`
	Params  SubscribeParams `json:"params"`
	ID      int             `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
}

type SubscribeParams struct {
	Query string `json:"query"`
}

func newSubscribeRequest() SubscribeRequest {
	return SubscribeRequest{
		Method:  "subscribe",
		Params:  SubscribeParams{Query: TxQuery},
		ID:      1,
		JSONRPC: "2.0",
	}
}

// frame is the part of a subscription frame the relay reads.
// Data or Value are nil for acks and other control frames.
type frame struct {
	Result *struct {
		Data *struct {
			Value *struct {
				TxResult struct {
					Result struct {
						Events []domain.RawEvent `json:"events"`
					} `json:"result"`
				} `json:"TxResult"`
			} `json:"value"`
		} `json:"data"`
	} `json:"result"`
}

// Config controls the supervisor connection.
type Config struct {
	URL              string
	ReconnectDelay   time.Duration
	HandshakeTimeout time.Duration
}

// Supervisor owns the single node connection. It reconnects after a fixed
// delay whenever the connection closes, until its context is cancelled.
type Supervisor struct {
	cfg     Config
	handler ports.EventHandler
	logger  zerolog.Logger
	metrics *metrics.Metrics
	dialer  *websocket.Dialer
	state   atomic.Int32
}

func NewSupervisor(cfg Config, handler ports.EventHandler, logger zerolog.Logger, m *metrics.Metrics) *Supervisor {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 45 * time.Second
	}
	return &Supervisor{
		cfg:     cfg,
		handler: handler,
		logger:  logging.Component(logger, "stream"),
		metrics: m,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

func (s *Supervisor) setState(st State) {
	s.state.Store(int32(st))
	if s.metrics != nil {
		s.metrics.ConnectionState.Set(float64(st))
	}
}

// Run connects and keeps reconnecting until ctx is cancelled. It never
// returns an error for transport failures.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		err := s.session(ctx)
		s.setState(StateDisconnected)
		if ctx.Err() != nil {
			s.logger.Info().Msg("stream supervisor stopped")
			return nil
		}

		ev := s.logger.Warn().Err(err).Dur("retry_in", s.cfg.ReconnectDelay)
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			ev = ev.Int("code", ce.Code).Str("reason", ce.Text)
		}
		ev.Msg("websocket connection closed")

		if s.metrics != nil {
			s.metrics.Reconnects.Inc()
		}
		timer := time.NewTimer(s.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info().Msg("stream supervisor stopped")
			return nil
		case <-timer.C:
		}
	}
}

// session runs one connection from dial to close. The connection is closed
// and its reader finished before session returns.
func (s *Supervisor) session(ctx context.Context) error {
	s.setState(StateConnecting)
	conn, _, err := s.dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.cfg.URL, err)
	}

	var closeOnce sync.Once
	closeConn := func() { closeOnce.Do(func() { _ = conn.Close() }) }
	done := make(chan struct{})
	defer closeConn()
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	if err := conn.WriteJSON(newSubscribeRequest()); err != nil {
		return fmt.Errorf("send subscribe: %w", err)
	}
	s.setState(StateSubscribed)
	s.logger.Info().Str("url", s.cfg.URL).Str("query", TxQuery).Msg("connected to websocket server")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.handleFrame(ctx, data)
	}
}

// handleFrame processes one frame's events sequentially, in order.
func (s *Supervisor) handleFrame(ctx context.Context, data []byte) {
	frameID := uuid.NewString()
	logger := s.logger.With().Str("frame_id", frameID).Logger()
	if s.metrics != nil {
		s.metrics.FramesReceived.Inc()
	}

	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		logger.Error().Err(err).Msg("invalid JSON frame")
		s.discard("invalid_json")
		return
	}
	if f.Result == nil || f.Result.Data == nil || f.Result.Data.Value == nil {
		logger.Debug().Msg("ignoring message without value")
		s.discard("no_value")
		return
	}

	events := f.Result.Data.Value.TxResult.Result.Events
	logger.Debug().Int("events", len(events)).Msg("frame received")

	ctx = logging.WithFrameID(ctx, frameID)
	for _, event := range events {
		if ctx.Err() != nil {
			return
		}
		s.handler.HandleEvent(ctx, event)
	}
}

func (s *Supervisor) discard(reason string) {
	if s.metrics != nil {
		s.metrics.FramesDiscarded.WithLabelValues(reason).Inc()
	}
}
