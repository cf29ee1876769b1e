package domain

// Room keys for the notification gateway. Deterministic so that any
// component holding a task id can address the room without a lookup.

func TaskRoom(taskID string) string {
	return "task:" + taskID
}

func CommentsRoom(taskID string) string {
	return "comments:" + taskID
}
