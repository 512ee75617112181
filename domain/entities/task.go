package entities

import "time"

// Task represents one queued unit of work for the worker loop
type Task struct {
	ID          string     `json:"id"`
	Request     Request    `json:"request"`
	Status      TaskStatus `json:"status"`
	Result      *Envelope  `json:"result,omitempty"`
	CallbackURL string     `json:"callbackUrl,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
}

// TaskStatus represents the status of a task
type TaskStatus string

const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Done - completed and failed are terminal
func (s TaskStatus) Done() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}
