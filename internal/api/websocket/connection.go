package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle position of one ingestion stream.
type State int

const (
	StateConnecting State = iota
	StateAuthenticating
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection is the ephemeral per-stream session state. It is never
// persisted and dies with the transport.
type Connection struct {
	ID          uuid.UUID
	RemoteAddr  string
	ConnectedAt time.Time

	mu     sync.Mutex
	state  State
	userID string
}

// NewConnection creates a session in the Connecting state.
func NewConnection(remoteAddr string) *Connection {
	return &Connection{
		ID:          uuid.New(),
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now(),
		state:       StateConnecting,
	}
}

// Transition moves the session to the next state. Transitions are
// forward-only; a closed session stays closed.
func (c *Connection) Transition(next State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}
	c.state = next
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Authenticate records the validated identity and enters Streaming.
func (c *Connection) Authenticate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}
	c.userID = userID
	c.state = StateStreaming
}

// UserID returns the validated identity, empty until authenticated.
func (c *Connection) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}
