package domain

// Wire event names for gateway fan-out. Producers (worker, reconciler) and
// the gateway address rooms with the same names, so they live here beside
// the room-key helpers rather than in the transport layer.
const (
	EventTaskProgress  = "task_progress"
	EventTaskCompleted = "task_completed"
	EventTaskFailed    = "task_failed"
	EventCommentAdded  = "comment_added"
)
