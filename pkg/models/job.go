package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a matching job
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// CancelKind selects how a cancellation request takes effect
type CancelKind string

const (
	// CancelGraceful lets the batch in flight finish before stopping
	CancelGraceful CancelKind = "graceful"
	// CancelImmediate aborts at the next per-item checkpoint
	CancelImmediate CancelKind = "immediate"
)

// JobKind selects which matching stages a job runs
type JobKind string

const (
	JobKindFullPass  JobKind = "full_pass"  // interchange + exact + rule + fuzzy
	JobKindAI        JobKind = "ai"         // external AI stage only
	JobKindWebSearch JobKind = "web_search" // external web-search stage only
)

// UsesExternalStage reports whether the job kind calls a rate- and
// cost-sensitive external collaborator
func (k JobKind) UsesExternalStage() bool {
	return k == JobKindAI || k == JobKindWebSearch
}

// MatchingJob is a stateful unit of matching work bound to one project.
// Created by a caller; mutated only by the queue manager and by the stage
// executing inside it.
type MatchingJob struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	ProjectID       uuid.UUID  `json:"project_id" db:"project_id"`
	UserID          string     `json:"user_id" db:"user_id"`
	Kind            JobKind    `json:"kind" db:"kind"`
	Priority        int        `json:"priority" db:"priority"`
	Status          JobStatus  `json:"status" db:"status"`
	ProcessedItems  int        `json:"processed_items" db:"processed_items"`
	TotalItems      int        `json:"total_items" db:"total_items"`
	CancelRequested bool       `json:"cancel_requested" db:"cancel_requested"`
	CancelKind      *string    `json:"cancel_kind,omitempty" db:"cancel_kind"`
	Error           *string    `json:"error,omitempty" db:"error"`
	EnqueuedAt      time.Time  `json:"enqueued_at" db:"enqueued_at"`
	StartedAt       *time.Time `json:"started_at,omitempty" db:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}
