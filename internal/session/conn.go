package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// State connection lifecycle state
type State int

const (
	StateHandshaking State = iota // reading connection metadata
	StateAuthorized               // token resolved, access verified
	StateJoined                   // member of the broadcast group
	StateClosed                   // torn down
)

// String returns the state as a string
func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateAuthorized:
		return "authorized"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is one client connection's lifecycle record (thread-safe). Protocol
// operations and chat are only accepted in StateJoined.
type Conn struct {
	ID           string
	CourseID     int64
	WhiteboardID int64
	UserID       int64
	ConnectedAt  time.Time

	state State
	mu    sync.RWMutex
}

// New creates a connection record in the handshaking state
func New() *Conn {
	return &Conn{
		ID:          uuid.New().String(),
		ConnectedAt: time.Now(),
		state:       StateHandshaking,
	}
}

// Authorize records the resolved identity and moves to StateAuthorized
func (c *Conn) Authorize(courseID, whiteboardID, userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.CourseID = courseID
	c.WhiteboardID = whiteboardID
	c.UserID = userID
	c.state = StateAuthorized
}

// Join moves to StateJoined once the connection is in the broadcast group
func (c *Conn) Join() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = StateJoined
}

// Close marks the connection torn down; idempotent
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = StateClosed
}

// GetState returns the current state
func (c *Conn) GetState() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.state
}

// IsJoined reports whether protocol operations may be accepted
func (c *Conn) IsJoined() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.state == StateJoined
}

// Duration time since the connection was established
func (c *Conn) Duration() time.Duration {
	return time.Since(c.ConnectedAt)
}
