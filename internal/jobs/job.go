// Package jobs runs work that must not block or roll back an auth request: sending account
// emails and invalidating every session of a user after a password reset.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Type names a job kind.
type Type string

const (
	TypeSendEmail          Type = "send_email"
	TypeInvalidateSessions Type = "invalidate_sessions"
)

// ErrUnknownType is returned by Runner for a job type it does not handle.
var ErrUnknownType = errors.New("jobs: unknown job type")

// Job is one unit of background work. It is serialized as JSON on the queue.
type Job struct {
	Type       Type              `json:"type"`
	UserID     string            `json:"user_id"`
	Email      string            `json:"email,omitempty"`
	Template   string            `json:"template,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
}

// SendEmail builds a send_email job rendering template for email.
func SendEmail(userID, email, template string, data map[string]string) Job {
	return Job{Type: TypeSendEmail, UserID: userID, Email: email, Template: template, Data: data}
}

// InvalidateSessions builds a job revoking every session of userID.
func InvalidateSessions(userID string) Job {
	return Job{Type: TypeInvalidateSessions, UserID: userID}
}

// Enqueuer schedules jobs. Implementations do not wait for the job to run.
type Enqueuer interface {
	Enqueue(ctx context.Context, job Job) error
}

// Handler executes a job.
type Handler interface {
	Run(ctx context.Context, job Job) error
}

func encode(job Job) ([]byte, error) {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	return json.Marshal(job)
}

func decode(b []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(b, &job); err != nil {
		return Job{}, err
	}
	if job.Type == "" {
		return Job{}, ErrUnknownType
	}
	return job, nil
}
