package models

import "time"

type TaskType string

const (
	TaskTypeTrack    TaskType = "track"
	TaskTypePlaylist TaskType = "playlist"
)

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Task is the ingestion-job ledger row backing the async /songs and
// /tasks/{id} surfaces. Transitions are monotonic: pending -> running ->
// {completed, failed}. Only the worker owning a task may advance it.
type Task struct {
	ID             string     `gorm:"primaryKey;type:text" json:"task_id"`
	TaskType       TaskType   `gorm:"not null" json:"task_type"`
	SourceURL      string     `gorm:"not null" json:"source_url"`
	Status         TaskStatus `gorm:"not null;index" json:"status"`
	ProcessedItems int        `gorm:"default:0" json:"processed_items"`
	TotalItems     int        `gorm:"default:0" json:"total_items"`
	ResultBlob     string     `gorm:"type:text" json:"result_blob,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (Task) TableName() string { return "tasks" }

// CanTransitionTo reports whether moving from t's current status to next
// is a legal, monotonic transition.
func (t *Task) CanTransitionTo(next TaskStatus) bool {
	switch t.Status {
	case TaskStatusPending:
		return next == TaskStatusRunning || next == TaskStatusFailed
	case TaskStatusRunning:
		return next == TaskStatusCompleted || next == TaskStatusFailed
	default:
		return false
	}
}
