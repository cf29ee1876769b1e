package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/voxscribe/backend/internal/core/ports"
	"github.com/voxscribe/backend/internal/domain"
	"github.com/voxscribe/backend/internal/infrastructure/logger"
)

// Gateway is the notification fan-out hub. It owns the room table and the
// user-to-connections index exclusively; other components reach it only
// through Notify. It holds no durable state and starts empty after a
// restart, which is what the startup reconciler compensates for.
type Gateway struct {
	verifier        ports.TokenVerifier
	log             *logger.Logger
	verifyTimeout   time.Duration
	disconnectDelay time.Duration

	mu     sync.RWMutex
	rooms  map[string]map[*connection]struct{}
	byUser map[string]map[*connection]struct{}
}

type GatewayConfig struct {
	VerifyTimeout   time.Duration
	DisconnectDelay time.Duration
}

func NewGateway(verifier ports.TokenVerifier, cfg GatewayConfig, log *logger.Logger) *Gateway {
	if cfg.VerifyTimeout <= 0 {
		cfg.VerifyTimeout = 5 * time.Second
	}
	if cfg.DisconnectDelay <= 0 {
		cfg.DisconnectDelay = 500 * time.Millisecond
	}
	return &Gateway{
		verifier:        verifier,
		log:             log,
		verifyTimeout:   cfg.VerifyTimeout,
		disconnectDelay: cfg.DisconnectDelay,
		rooms:           make(map[string]map[*connection]struct{}),
		byUser:          make(map[string]map[*connection]struct{}),
	}
}

// Handle is the fiber websocket entry point. The bearer token travels in
// the query string because browsers cannot set headers on websocket
// upgrades.
func (g *Gateway) Handle(c *websocket.Conn) {
	g.serve(c, c.Query("token"))
}

// serve runs the full connection lifecycle on the caller's goroutine and
// returns when the connection is gone. Split from Handle so the state
// machine is testable without a network socket.
func (g *Gateway) serve(sock Socket, token string) {
	conn := newConnection(sock)

	if !g.authenticate(conn, token) {
		return
	}

	defer g.unregister(conn)
	g.readLoop(conn)
}

// authenticate drives Connecting -> Authenticated. On any failure it emits
// auth_error and tears the socket down after a short delay, so the error
// frame is flushed before the transport closes.
func (g *Gateway) authenticate(conn *connection, token string) bool {
	if token == "" {
		g.log.Warnw("ws_auth_missing_token", "conn_id", conn.id)
		g.rejectAuth(conn, authErrorPayload{Message: "authentication required"})
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.verifyTimeout)
	defer cancel()

	ownerID, err := g.verifier.Verify(ctx, token)
	if err != nil {
		payload := authErrorPayload{Message: "authentication failed"}
		if errors.Is(err, ports.ErrTokenExpired) {
			payload.Code = CodeTokenExpired
			payload.Message = "token expired"
		}
		g.log.Warnw("ws_auth_failed", "conn_id", conn.id, "error", err)
		g.rejectAuth(conn, payload)
		return false
	}

	conn.ownerID = ownerID
	conn.state = stateAuthenticated

	g.mu.Lock()
	set, ok := g.byUser[ownerID]
	if !ok {
		set = make(map[*connection]struct{})
		g.byUser[ownerID] = set
	}
	set[conn] = struct{}{}
	g.mu.Unlock()

	if err := conn.send(EventConnected, connectedPayload{OwnerID: ownerID}); err != nil {
		g.log.Warnw("ws_connected_ack_failed", "conn_id", conn.id, "error", err)
	}
	g.log.Infow("ws_connected", "conn_id", conn.id, "owner", ownerID)
	return true
}

func (g *Gateway) rejectAuth(conn *connection, payload authErrorPayload) {
	if err := conn.send(EventAuthError, payload); err != nil {
		g.log.Warnw("ws_auth_error_send_failed", "conn_id", conn.id, "error", err)
	}
	time.Sleep(g.disconnectDelay)
	conn.state = stateDisconnected
	conn.sock.Close()
}

func (g *Gateway) readLoop(conn *connection) {
	for {
		_, data, err := conn.sock.ReadMessage()
		if err != nil {
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			g.log.Warnw("ws_bad_message", "conn_id", conn.id, "error", err)
			continue
		}

		switch msg.Event {
		case EventSubscribeTask:
			g.join(conn, domain.TaskRoom(msg.TaskID))
		case EventUnsubscribeTask:
			g.leave(conn, domain.TaskRoom(msg.TaskID))
		case EventSubscribeComments:
			g.join(conn, domain.CommentsRoom(msg.TaskID))
		case EventUnsubscribeComments:
			g.leave(conn, domain.CommentsRoom(msg.TaskID))
		default:
			g.log.Warnw("ws_unknown_event", "conn_id", conn.id, "event", msg.Event)
		}
	}
}

func (g *Gateway) join(conn *connection, roomKey string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	room, ok := g.rooms[roomKey]
	if !ok {
		room = make(map[*connection]struct{})
		g.rooms[roomKey] = room
	}
	room[conn] = struct{}{}
	conn.rooms[roomKey] = struct{}{}
}

func (g *Gateway) leave(conn *connection, roomKey string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.leaveLocked(conn, roomKey)
}

func (g *Gateway) leaveLocked(conn *connection, roomKey string) {
	if room, ok := g.rooms[roomKey]; ok {
		delete(room, conn)
		if len(room) == 0 {
			delete(g.rooms, roomKey)
		}
	}
	delete(conn.rooms, roomKey)
}

// unregister removes the connection from every room and from its owner's
// entry in the index, synchronously, so a concurrent fan-out cannot
// reintroduce it. Owners never linger with an empty connection set.
func (g *Gateway) unregister(conn *connection) {
	g.mu.Lock()
	for roomKey := range conn.rooms {
		g.leaveLocked(conn, roomKey)
	}
	if set, ok := g.byUser[conn.ownerID]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(g.byUser, conn.ownerID)
		}
	}
	conn.state = stateDisconnected
	g.mu.Unlock()

	conn.sock.Close()
	g.log.Infow("ws_disconnected", "conn_id", conn.id, "owner", conn.ownerID)
}

// Notify fans an event out to every connection subscribed to the room and
// returns once each has been written to. A room with no subscribers is a
// silent no-op: a user who closed their last tab is not an error upstream.
func (g *Gateway) Notify(roomKey, event string, payload any) {
	g.mu.RLock()
	room := g.rooms[roomKey]
	targets := make([]*connection, 0, len(room))
	for conn := range room {
		targets = append(targets, conn)
	}
	g.mu.RUnlock()

	for _, conn := range targets {
		if err := conn.send(event, payload); err != nil {
			g.log.Warnw("ws_notify_failed", "conn_id", conn.id, "room", roomKey, "event", event, "error", err)
		}
	}
}

// NotifyTaskProgress, NotifyTaskCompleted and NotifyTaskFailed wrap Notify
// with the canonical payload shapes, so callers do not hand-build them.
func (g *Gateway) NotifyTaskProgress(ev domain.ProgressEvent) {
	g.Notify(domain.TaskRoom(ev.TaskID), EventTaskProgress, ev)
}

func (g *Gateway) NotifyTaskCompleted(taskID string) {
	g.Notify(domain.TaskRoom(taskID), EventTaskCompleted, taskCompletedPayload{TaskID: taskID})
}

func (g *Gateway) NotifyTaskFailed(taskID, errMsg string) {
	g.Notify(domain.TaskRoom(taskID), EventTaskFailed, taskFailedPayload{TaskID: taskID, Error: errMsg})
}

// NotifyCommentAdded targets the comments room rather than the task room,
// so progress watchers and comment watchers stay independent.
func (g *Gateway) NotifyCommentAdded(taskID string, comment any) {
	g.Notify(domain.CommentsRoom(taskID), EventCommentAdded, comment)
}
