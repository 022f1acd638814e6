package models

import "time"

// ProgressError is the progress value that signals a failed run.
const ProgressError = -1

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCanceled   JobStatus = "canceled"
)

// IsDone reports whether the job reached a terminal state.
func (s JobStatus) IsDone() bool {
	return s == JobCompleted || s == JobFailed || s == JobCanceled
}

// Job is a persisted conversion run.
type Job struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Source    string    `json:"source"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Lang      string    `json:"lang"`
	Voice     string    `json:"voice"`
	Speed     float64   `json:"speed"`
	Status    JobStatus `json:"status"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message,omitempty"`
	Output    string    `json:"output,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
