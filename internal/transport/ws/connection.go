package ws

import (
	"sync"

	"github.com/google/uuid"
)

// Socket is the slice of the websocket transport the gateway needs. The
// fiber contrib websocket.Conn satisfies it; tests substitute a fake.
type Socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v any) error
	Close() error
}

type connState int

const (
	stateConnecting connState = iota
	stateAuthenticated
	stateDisconnected
)

// connection is one live socket. ownerID is set only after authentication
// succeeds. All mutation of rooms and state happens under the gateway lock;
// writeMu serializes frames because fan-out and the read loop's own replies
// may write concurrently.
type connection struct {
	id      string
	ownerID string
	sock    Socket
	state   connState
	rooms   map[string]struct{}

	writeMu sync.Mutex
}

func newConnection(sock Socket) *connection {
	return &connection{
		id:    uuid.New().String(),
		sock:  sock,
		state: stateConnecting,
		rooms: make(map[string]struct{}),
	}
}

func (c *connection) send(event string, payload any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.sock.WriteJSON(outboundMessage{Event: event, Payload: payload})
}
