package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the processing state of a generic job.
type JobStatus string

// Possible job status values
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// DefaultJobMaxAttempts bounds how often a failing job is retried before it
// is marked terminally failed.
const DefaultJobMaxAttempts = 3

// Common validation errors for Job
var (
	ErrEmptyJobID   = errors.New("job ID cannot be empty")
	ErrEmptyJobType = errors.New("job type cannot be empty")
)

// Job is a generic, typed unit of deferred work carried across process
// boundaries by the job queue. The payload is opaque to the queue and
// interpreted by the handler registered for the job's type.
type Job struct {
	ID          uuid.UUID       `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      JobStatus       `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Error       *string         `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// NewJob creates a pending job of the given type, serializing payload to JSON.
// maxAttempts <= 0 selects DefaultJobMaxAttempts.
func NewJob(jobType string, payload interface{}, maxAttempts int) (*Job, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	if maxAttempts <= 0 {
		maxAttempts = DefaultJobMaxAttempts
	}

	job := &Job{
		ID:          uuid.New(),
		Type:        jobType,
		Payload:     payloadBytes,
		Status:      JobStatusPending,
		MaxAttempts: maxAttempts,
		CreatedAt:   time.Now().UTC(),
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}
	return job, nil
}

// Validate checks if the Job has valid data.
func (j *Job) Validate() error {
	if j.ID == uuid.Nil {
		return ErrEmptyJobID
	}
	if j.Type == "" {
		return ErrEmptyJobType
	}
	if !isValidJobStatus(j.Status) {
		return ErrInvalidJobStatus
	}
	return nil
}

// UnmarshalPayload decodes the job payload into the provided structure.
func (j *Job) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(j.Payload, v)
}

// Exhausted reports whether the job has used up its retry budget.
// A job that fails while exhausted becomes terminally failed.
func (j *Job) Exhausted() bool {
	return j.Attempts >= j.MaxAttempts
}

// isValidJobStatus checks if the given status is a valid JobStatus.
func isValidJobStatus(status JobStatus) bool {
	switch status {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}
