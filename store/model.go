package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/kestrelq/kestrelq/job"
	"github.com/uptrace/bun"
)

// jobModel is the bun ORM mapping for the jobs table. Field names
// follow the data model in SPEC_FULL.md; Doc columns are stored as
// JSON/JSONB.
type jobModel struct {
	bun.BaseModel `bun:"table:jobs,alias:j"`

	ID       uuid.UUID  `bun:"id,pk,type:uuid"`
	Name     string     `bun:"name,notnull"`
	JobType  string     `bun:"job_type,notnull"`
	Status   job.Status `bun:"status,notnull"`
	Priority int        `bun:"priority,notnull,default:0"`

	Payload job.Doc `bun:"payload,type:jsonb"`
	Result  job.Doc  `bun:"result,type:jsonb"`

	ErrorMessage *string `bun:"error_message"`

	Attempt     int        `bun:"attempt,notnull,default:0"`
	MaxRetries  int        `bun:"max_retries,notnull,default:3"`
	NextRetryAt *time.Time `bun:"next_retry_at"`

	CreatedAt       time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	ScheduledAt     *time.Time `bun:"scheduled_at"`
	StartedAt       *time.Time `bun:"started_at"`
	CompletedAt     *time.Time `bun:"completed_at"`
	DurationSeconds *float64   `bun:"duration_seconds"`

	CreatedBy *string `bun:"created_by"`
	WorkerID  *string `bun:"worker_id"`
}

func (m *jobModel) toJob() *job.Job {
	return &job.Job{
		ID:              m.ID,
		Name:            m.Name,
		JobType:         m.JobType,
		Status:          m.Status,
		Priority:        m.Priority,
		Payload:         m.Payload,
		Result:          m.Result,
		ErrorMessage:    m.ErrorMessage,
		Attempt:         m.Attempt,
		MaxRetries:      m.MaxRetries,
		NextRetryAt:     m.NextRetryAt,
		CreatedAt:       m.CreatedAt,
		ScheduledAt:     m.ScheduledAt,
		StartedAt:       m.StartedAt,
		CompletedAt:     m.CompletedAt,
		DurationSeconds: m.DurationSeconds,
		CreatedBy:       m.CreatedBy,
		WorkerID:        m.WorkerID,
	}
}

func fromJob(j *job.Job) *jobModel {
	return &jobModel{
		ID:              j.ID,
		Name:            j.Name,
		JobType:         j.JobType,
		Status:          j.Status,
		Priority:        j.Priority,
		Payload:         j.Payload,
		Result:          j.Result,
		ErrorMessage:    j.ErrorMessage,
		Attempt:         j.Attempt,
		MaxRetries:      j.MaxRetries,
		NextRetryAt:     j.NextRetryAt,
		CreatedAt:       j.CreatedAt,
		ScheduledAt:     j.ScheduledAt,
		StartedAt:       j.StartedAt,
		CompletedAt:     j.CompletedAt,
		DurationSeconds: j.DurationSeconds,
		CreatedBy:       j.CreatedBy,
		WorkerID:        j.WorkerID,
	}
}
