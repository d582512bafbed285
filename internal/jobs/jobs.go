// Package jobs provides an in-memory queue and status store for background
// CSV-processing runs, so API uploads return immediately and progress can be
// polled.
package jobs

import (
	"context"
	"time"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ProcessJob is one background CSV-processing run.
type ProcessJob struct {
	ID              string     `json:"id"`
	FilePath        string     `json:"-"`
	Filename        string     `json:"filename"`
	ExcludedIndices []int      `json:"excluded_indices,omitempty"`
	Status          Status     `json:"status"`
	Stage           string     `json:"stage,omitempty"`
	Progress        int        `json:"progress"`
	Result          any        `json:"result,omitempty"`
	Error           string     `json:"error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// Store tracks job state. Implementations must be safe for concurrent use.
type Store interface {
	// SaveJob inserts or replaces a job's state.
	SaveJob(job *ProcessJob)

	// GetJob retrieves a job by ID, or false when unknown.
	GetJob(id string) (*ProcessJob, bool)

	// ListJobs returns all jobs, newest first.
	ListJobs() []*ProcessJob
}

// Handler processes one job. It may update the job and re-save it through the
// store to publish intermediate progress; the queue persists the final state.
type Handler func(ctx context.Context, job *ProcessJob) error
