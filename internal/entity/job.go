package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusSkipped    JobStatus = "skipped"
)

// EntityKind is the closed set of text sources the pipeline processes.
type EntityKind string

const (
	KindJournalText       EntityKind = "journal-text"
	KindReferenceFragment EntityKind = "reference-fragment"
)

func (k EntityKind) Valid() bool {
	return k == KindJournalText || k == KindReferenceFragment
}

// Job is one processing attempt lineage for an entity's text.
// Rows are append-only: a job is superseded by a new job for the same
// entity, never deleted.
type Job struct {
	ID           uuid.UUID  `json:"id"`
	EntityID     string     `json:"entity_id"`
	EntityKind   EntityKind `json:"entity_kind"`
	Status       JobStatus  `json:"status"`
	Priority     int        `json:"priority"`
	Attempts     int        `json:"attempts"`
	MaxAttempts  int        `json:"max_attempts"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	Text         string     `json:"-"`
	ScheduledAt  time.Time  `json:"scheduled_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
