package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"marketfeed/internal/channel"
	"marketfeed/internal/dispatch"
	"marketfeed/internal/protocol"
	"marketfeed/internal/subscription"
)

// ManagerStats provides statistics about the connection manager.
type ManagerStats struct {
	FramesReceived   int64
	BinaryFrames     int64
	LegacyFrames     int64
	ControlAcks      int64
	DecodeErrors     int64
	SubscribesSent   int64
	UnsubscribesSent int64
}

// Manager owns the single socket's lifecycle and the reader loop. Every
// inbound frame is classified, decoded, and handed to the dispatcher to
// completion before the next frame is read; there is no parallel message
// processing within one connection.
//
// Reconnection is not automatic: on unexpected close the active channel
// set is forgotten (the server forgot it too) and the caller decides when
// to Reconnect. The desired set survives, so the next Reconcile restores
// the previous subscription intent.
type Manager struct {
	cfg        ManagerConfig
	registry   *subscription.Registry
	dispatcher *dispatch.Dispatcher
	limiter    *rate.Limiter
	logger     *slog.Logger

	mu         sync.Mutex
	state      State
	client     Client
	readerDone chan struct{}

	statsMu sync.Mutex
	stats   ManagerStats
}

// NewManager creates a connection manager in the disconnected state.
func NewManager(cfg ManagerConfig, registry *subscription.Registry, dispatcher *dispatch.Dispatcher, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		cfg:        cfg,
		registry:   registry,
		dispatcher: dispatcher,
		limiter:    rate.NewLimiter(rate.Limit(cfg.ControlRate), cfg.ControlBurst),
		logger:     logger,
		state:      StateDisconnected,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stats returns current counters.
func (m *Manager) Stats() ManagerStats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return m.stats
}

// SetAccessToken stores the bearer token used when subscribing private
// channels. Market channels are unaffected.
func (m *Manager) SetAccessToken(token string) {
	m.registry.Tokens().Set(token)
}

// ClearAccessToken removes the bearer token.
func (m *Manager) ClearAccessToken() {
	m.registry.Tokens().Clear()
}

// SetDesired replaces the desired channel set. Takes effect on the next
// Reconcile.
func (m *Manager) SetDesired(channels []channel.Channel) {
	m.registry.SetDesired(channels)
}

// Connect opens the socket. Valid only from the disconnected or error
// state. The connecting state is bounded by ConnectTimeout; a dial still
// pending at the bound fails with ErrConnectTimeout and the manager moves
// to the error state.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateConnecting || m.state == StateConnected {
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	m.state = StateConnecting

	cl := NewClient(ClientConfig{
		URL:          m.cfg.URL,
		PingTimeout:  m.cfg.PingTimeout,
		WriteTimeout: m.cfg.WriteTimeout,
		DialTimeout:  m.cfg.ConnectTimeout,
		BufferSize:   m.cfg.BufferSize,
	}, m.logger)
	m.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	if err := cl.Connect(dialCtx); err != nil {
		m.mu.Lock()
		// A Disconnect racing the dial already moved the state on.
		if m.state == StateConnecting {
			m.state = StateError
		}
		m.mu.Unlock()

		if errors.Is(err, context.DeadlineExceeded) || dialCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w: %v", ErrConnectTimeout, err)
		}
		return fmt.Errorf("connect: %w", err)
	}

	done := make(chan struct{})

	m.mu.Lock()
	if m.state != StateConnecting {
		// Disconnect won the race while the dial was in flight; the
		// connection it never saw must not come alive now.
		m.mu.Unlock()
		cl.Close()
		return ErrConnectAborted
	}
	m.client = cl
	m.readerDone = done
	m.state = StateConnected
	m.mu.Unlock()

	go m.readLoop(cl, done)

	m.logger.Info("connected", "url", m.cfg.URL)
	return nil
}

// Disconnect closes the socket and forgets the active channel set. The
// desired set is untouched.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	cl := m.client
	done := m.readerDone
	m.client = nil
	m.readerDone = nil
	m.state = StateDisconnected
	m.mu.Unlock()

	if done != nil {
		close(done)
	}

	m.registry.ClearActive()

	if cl == nil {
		return nil
	}
	return cl.Close()
}

// Reconnect disconnects then connects, sequentially, with no overlap.
func (m *Manager) Reconnect(ctx context.Context) error {
	if err := m.Disconnect(); err != nil {
		m.logger.Warn("disconnect before reconnect failed", "error", err)
	}
	return m.Connect(ctx)
}

// Reconcile computes the subscription diff and emits the corresponding
// control frames. The registry applies the diff eagerly; if a control
// frame never makes it onto the wire, the failed portion is rolled back
// so the channels stay pending for the next Reconcile.
func (m *Manager) Reconcile(ctx context.Context) error {
	diff := m.registry.Reconcile()
	if diff.Empty() {
		return nil
	}

	if len(diff.ToSubscribe) > 0 {
		if err := m.sendControl(ctx, ActionSubscribe, diff.ToSubscribe); err != nil {
			m.registry.Rollback(diff)
			return fmt.Errorf("subscribe: %w", err)
		}
		m.count(func(s *ManagerStats) { s.SubscribesSent++ })
	}

	if len(diff.ToUnsubscribe) > 0 {
		if err := m.sendControl(ctx, ActionUnsubscribe, diff.ToUnsubscribe); err != nil {
			m.registry.Rollback(subscription.Diff{ToUnsubscribe: diff.ToUnsubscribe})
			return fmt.Errorf("unsubscribe: %w", err)
		}
		m.count(func(s *ManagerStats) { s.UnsubscribesSent++ })
	}

	return nil
}

// UnsubscribeAll sends one UNSUBSCRIBE covering every active channel and
// clears the active set. Desired intent survives for a later Reconcile.
func (m *Manager) UnsubscribeAll(ctx context.Context) error {
	was := m.registry.UnsubscribeAll()
	if len(was) == 0 {
		return nil
	}

	if err := m.sendControl(ctx, ActionUnsubscribe, was); err != nil {
		m.registry.Rollback(subscription.Diff{ToUnsubscribe: was})
		return fmt.Errorf("unsubscribe all: %w", err)
	}
	m.count(func(s *ManagerStats) { s.UnsubscribesSent++ })
	return nil
}

// sendControl emits one SUBSCRIBE/UNSUBSCRIBE JSON text frame, paced by
// the control-frame rate limiter.
func (m *Manager) sendControl(ctx context.Context, action string, channels []channel.Channel) error {
	m.mu.Lock()
	cl := m.client
	m.mu.Unlock()

	if cl == nil {
		return ErrNotConnected
	}

	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}

	frame := ControlFrame{
		Action:   action,
		ID:       uuid.NewString(),
		Channels: make([]string, 0, len(channels)),
	}

	private := false
	for _, ch := range channels {
		frame.Channels = append(frame.Channels, ch.String())
		if ch.IsPrivate() {
			private = true
		}
	}
	if action == ActionSubscribe && private {
		frame.Token = m.registry.Tokens().Bearer()
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal control frame: %w", err)
	}

	m.logger.Debug("control frame sent",
		"action", action,
		"channels", len(frame.Channels),
	)

	return cl.SendText(data)
}

// readLoop consumes one connection until it closes or errors. Each frame
// is processed to completion before the next is read.
func (m *Manager) readLoop(cl Client, done chan struct{}) {
	for {
		select {
		case <-done:
			return

		case err := <-cl.Errors():
			m.logger.Warn("connection lost", "error", err)
			m.handleClose(cl)
			return

		case msg, ok := <-cl.Messages():
			if !ok {
				m.handleClose(cl)
				return
			}
			m.handleFrame(msg)
		}
	}
}

// handleClose records an unexpected close: active channels are forgotten,
// desired intent is kept, and the caller is responsible for Reconnect.
func (m *Manager) handleClose(cl Client) {
	cl.Close()

	m.mu.Lock()
	if m.client == cl {
		m.client = nil
		m.readerDone = nil
		m.state = StateDisconnected
	}
	m.mu.Unlock()

	m.registry.ClearActive()
}

// handleFrame classifies and decodes one inbound frame, then hands it to
// the dispatcher. Decode failures are logged and dropped; the stream
// continues.
func (m *Manager) handleFrame(msg TimestampedMessage) {
	m.count(func(s *ManagerStats) { s.FramesReceived++ })

	switch msg.Kind {
	case websocket.BinaryMessage:
		m.count(func(s *ManagerStats) { s.BinaryFrames++ })

		decoded, err := protocol.Decode(msg.Data)
		if err != nil {
			m.logger.Warn("binary frame dropped", "error", err)
			m.count(func(s *ManagerStats) { s.DecodeErrors++ })
			return
		}
		m.dispatcher.Dispatch(decoded)

	case websocket.TextMessage:
		m.handleTextFrame(msg.Data)

	default:
		m.logger.Debug("ignoring frame", "kind", msg.Kind)
	}
}

// handleTextFrame routes a JSON text frame: control acks are logged, the
// legacy data path decodes into the same tagged union as binary frames.
func (m *Manager) handleTextFrame(data []byte) {
	kind, err := protocol.ClassifyText(data)
	if err != nil {
		m.logger.Warn("text frame dropped", "error", err)
		m.count(func(s *ManagerStats) { s.DecodeErrors++ })
		return
	}

	switch kind {
	case protocol.FrameControl:
		ack, err := protocol.DecodeControl(data)
		if err != nil {
			m.logger.Warn("control ack dropped", "error", err)
			m.count(func(s *ManagerStats) { s.DecodeErrors++ })
			return
		}
		m.count(func(s *ManagerStats) { s.ControlAcks++ })
		m.logger.Debug("control ack",
			"action", ack.Action,
			"status", ack.Status,
			"channels", len(ack.Channels),
		)

	case protocol.FrameLegacyData:
		m.count(func(s *ManagerStats) { s.LegacyFrames++ })

		decoded, err := protocol.DecodeLegacy(data)
		if err != nil {
			m.logger.Warn("legacy frame dropped", "error", err)
			m.count(func(s *ManagerStats) { s.DecodeErrors++ })
			return
		}
		m.dispatcher.Dispatch(decoded)
	}
}

func (m *Manager) count(f func(*ManagerStats)) {
	m.statsMu.Lock()
	f(&m.stats)
	m.statsMu.Unlock()
}
