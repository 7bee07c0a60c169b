package job

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Doc is a schemaless structured document exchanged with handlers: a
// job's Payload and Result. It stands in for the source system's
// dynamically-typed key-value tree; a Go handler validates the subset
// of keys it needs via Bind rather than relying on a fixed schema.
type Doc map[string]any

// Bind decodes the document into dst (typically a pointer to a struct
// tagged for encoding/json) by round-tripping through JSON. A decode
// failure means the payload did not satisfy what the caller expected
// and should be treated as a transient, retryable failure rather than
// a permanent one, since a republished job with a corrected payload
// may succeed.
func (d Doc) Bind(dst any) error {
	raw, err := json.Marshal(map[string]any(d))
	if err != nil {
		return fmt.Errorf("job: marshal doc: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("job: bind doc: %w", err)
	}
	return nil
}

// Job is the durable record of a single unit of work managed by
// kestrelq.
//
// CreatedAt records insertion time. ScheduledAt, if set, is the
// earliest instant at which the job becomes eligible for dispatch.
// StartedAt and CompletedAt record the most recent claim and terminal
// transition respectively. DurationSeconds is CompletedAt - StartedAt
// of the latest attempt.
//
// Attempt is a counter incremented at claim time; it does not decrease
// across automatic retries. An explicit retry (store.Store's
// ResetForRetry) resets it to 0. NextRetryAt is set only while
// Status is Retrying, and is in the future at the moment it is
// assigned.
//
// Job values returned by a store.Store are snapshots; mutating them
// does not change the underlying record. Transitions must be
// performed through store.Store methods.
type Job struct {
	ID       uuid.UUID
	Name     string
	JobType  string
	Status   Status
	Priority int

	Payload Doc
	Result  Doc

	ErrorMessage *string

	Attempt     int
	MaxRetries  int
	NextRetryAt *time.Time

	CreatedAt       time.Time
	ScheduledAt     *time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	DurationSeconds *float64

	CreatedBy *string
	WorkerID  *string
}

// IsEligibleForClaim reports whether a job in this status may be
// transitioned to Running by a claim.
func (s Status) IsEligibleForClaim() bool {
	return s == Pending || s == Queued || s == Retrying
}
