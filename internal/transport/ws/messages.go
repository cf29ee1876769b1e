package ws

import "github.com/voxscribe/backend/internal/domain"

// Wire event names. Inbound events are client-initiated; connection
// lifecycle events are gateway-local. Fan-out event names are shared with
// their producers through the domain package.
const (
	EventSubscribeTask       = "subscribe_task"
	EventUnsubscribeTask     = "unsubscribe_task"
	EventSubscribeComments   = "subscribe_comments"
	EventUnsubscribeComments = "unsubscribe_comments"

	EventConnected = "connected"
	EventAuthError = "auth_error"

	EventTaskProgress  = domain.EventTaskProgress
	EventTaskCompleted = domain.EventTaskCompleted
	EventTaskFailed    = domain.EventTaskFailed
	EventCommentAdded  = domain.EventCommentAdded
)

// CodeTokenExpired lets the client distinguish an expired credential, which
// is worth refreshing, from a token that will never verify.
const CodeTokenExpired = "token_expired"

type inboundMessage struct {
	Event  string `json:"event"`
	TaskID string `json:"taskId"`
}

type outboundMessage struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

type connectedPayload struct {
	OwnerID string `json:"ownerId"`
}

type authErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type taskCompletedPayload struct {
	TaskID string `json:"taskId"`
}

type taskFailedPayload struct {
	TaskID string `json:"taskId"`
	Error  string `json:"error"`
}
