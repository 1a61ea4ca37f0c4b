package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrConnectTimeout   = errors.New("connect timeout")
	ErrConnectAborted   = errors.New("connect aborted by disconnect")
	ErrStaleConnection  = errors.New("connection stale (no ping)")
	ErrAlreadyClosed    = errors.New("already closed")
)

// State is the connection lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// TimestampedMessage wraps one raw WebSocket frame with its kind and
// receive timestamp.
type TimestampedMessage struct {
	Kind       int       // websocket.TextMessage or websocket.BinaryMessage
	Data       []byte    // Raw frame bytes
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ControlFrame is the JSON text frame sent by the client to manage
// subscriptions. Token is present only when at least one private channel
// is included and an access token is set.
type ControlFrame struct {
	Action   string   `json:"action"` // "SUBSCRIBE" or "UNSUBSCRIBE"
	ID       string   `json:"id"`     // Client correlation ID
	Channels []string `json:"channels"`
	Token    string   `json:"token,omitempty"` // "Bearer <jwt>"
}

const (
	ActionSubscribe   = "SUBSCRIBE"
	ActionUnsubscribe = "UNSUBSCRIBE"
)

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL          string        // WebSocket URL (e.g., wss://feed.example.com/ws)
	PingTimeout  time.Duration // Max time without ping before considering connection stale
	WriteTimeout time.Duration // Write deadline for sends
	DialTimeout  time.Duration // Handshake timeout for the initial dial
	BufferSize   int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
		DialTimeout:  10 * time.Second,
		BufferSize:   1000,
	}
}

// ManagerConfig configures the connection manager.
type ManagerConfig struct {
	URL            string        // WebSocket URL
	ConnectTimeout time.Duration // Bound on the connecting state
	PingTimeout    time.Duration // Passed through to the client
	WriteTimeout   time.Duration // Passed through to the client
	BufferSize     int           // Client message buffer size
	ControlRate    float64       // Outbound control frames per second
	ControlBurst   int           // Control frame burst allowance
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		ConnectTimeout: 10 * time.Second,
		PingTimeout:    60 * time.Second,
		WriteTimeout:   5 * time.Second,
		BufferSize:     1000,
		ControlRate:    10,
		ControlBurst:   5,
	}
}
