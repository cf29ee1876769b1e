package domain

import "time"

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusProcessing TaskStatus = "PROCESSING"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusFailed     TaskStatus = "FAILED"
)

// IsTerminal reports whether the status is final. Terminal statuses are
// never overwritten, not even by another terminal status.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Task is the durable record for one transcription job. The queue entry and
// any progress events are transient; this row is the source of truth.
type Task struct {
	ID        string     `json:"id" gorm:"primaryKey;size:64"`
	OwnerID   string     `json:"owner_id" gorm:"size:64;index"`
	Status    TaskStatus `json:"status" gorm:"size:16;index"`
	Progress  int        `json:"progress"` // 0-100
	Stage     string     `json:"stage"`
	Message   string     `json:"message"`
	Error     string     `json:"error,omitempty"`
	FileName  string     `json:"file_name"`
	FilePath  string     `json:"-"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ProgressEvent is the advisory payload fanned out to subscribed clients.
// It is never persisted; a client that misses one recovers by polling the
// task record.
type ProgressEvent struct {
	TaskID   string     `json:"taskId"`
	Status   TaskStatus `json:"status"`
	Progress int        `json:"progress"`
	Stage    string     `json:"stage"`
	Message  string     `json:"message"`
}
