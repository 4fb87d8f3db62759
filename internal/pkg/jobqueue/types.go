package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeSendMessage JobType = "send_message"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Options control retry behavior for a single enqueued job. Retry state is
// queue metadata; the enqueuing service never tracks attempts itself.
type Options struct {
	MaxAttempts int
	BackoffBase time.Duration
}

// Job represents a durable background job. The queue owns a job from enqueue
// until it completes or exhausts its attempts.
type Job struct {
	ID            string                 `json:"id"`
	Type          JobType                `json:"type"`
	Status        JobStatus              `json:"status"`
	Payload       map[string]interface{} `json:"payload"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
	ProcessedAt   *time.Time             `json:"processed_at,omitempty"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg      string                 `json:"error_msg,omitempty"`
	Attempt       int                    `json:"attempt"`
	MaxAttempts   int                    `json:"max_attempts"`
	BackoffBaseMS int64                  `json:"backoff_base_ms"`
}

// SendMessageJobPayload contains the payload for outbound message jobs. It
// deliberately stores only what is needed to re-resolve credentials at
// dispatch time -- never a resolved access token, which may rotate or expire
// while the job waits in a backlog.
type SendMessageJobPayload struct {
	TenantID string          `json:"tenant_id"`
	To       string          `json:"to"`
	Payload  json.RawMessage `json:"payload"`
}

// ToMap converts the payload to a map for storage
func (p SendMessageJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"tenant_id": p.TenantID,
		"to":        p.To,
		"payload":   string(p.Payload),
	}
}

// SendMessageJobPayloadFromMap creates a payload from a stored map
func SendMessageJobPayloadFromMap(data map[string]interface{}) (*SendMessageJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var raw struct {
		TenantID string `json:"tenant_id"`
		To       string `json:"to"`
		Payload  string `json:"payload"`
	}
	if err := json.Unmarshal(jsonData, &raw); err != nil {
		return nil, err
	}
	return &SendMessageJobPayload{
		TenantID: raw.TenantID,
		To:       raw.To,
		Payload:  json.RawMessage(raw.Payload),
	}, nil
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.Attempt < j.MaxAttempts
}

// NextBackoff returns the delay before the next attempt: base * 2^(n-1) for
// the attempt that just failed.
func (j *Job) NextBackoff() time.Duration {
	base := time.Duration(j.BackoffBaseMS) * time.Millisecond
	if base <= 0 {
		base = time.Second
	}
	attempt := j.Attempt
	if attempt < 1 {
		attempt = 1
	}
	return base << uint(attempt-1)
}

// MarkAsProcessing updates the job status to processing and counts the attempt
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
	j.Attempt++
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
