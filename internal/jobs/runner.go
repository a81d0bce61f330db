package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"taskflow/backend/internal/mail"
)

// SessionRevoker revokes every live session of a user.
type SessionRevoker interface {
	RevokeAllByUser(ctx context.Context, userID string, at time.Time) ([]string, error)
}

// TokenRevoker revokes the refresh tokens of sessions.
type TokenRevoker interface {
	RevokeBySessions(ctx context.Context, sessionIDs []string, at time.Time) error
}

// TxRunner runs fn in one transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Runner executes jobs.
type Runner struct {
	renderer *mail.Renderer
	sender   mail.Sender
	tx       TxRunner
	sessions SessionRevoker
	tokens   TokenRevoker
	log      *zap.Logger
	now      func() time.Time
}

// NewRunner returns a Runner. log may be nil.
func NewRunner(renderer *mail.Renderer, sender mail.Sender, tx TxRunner, sessions SessionRevoker, tokens TokenRevoker, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		renderer: renderer,
		sender:   sender,
		tx:       tx,
		sessions: sessions,
		tokens:   tokens,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run dispatches on job.Type.
func (r *Runner) Run(ctx context.Context, job Job) error {
	switch job.Type {
	case TypeSendEmail:
		return r.sendEmail(ctx, job)
	case TypeInvalidateSessions:
		return r.invalidateSessions(ctx, job)
	}
	return fmt.Errorf("%w: %q", ErrUnknownType, job.Type)
}

func (r *Runner) sendEmail(ctx context.Context, job Job) error {
	msg, err := r.renderer.Render(job.Template, job.Email, job.Data)
	if err != nil {
		return err
	}
	if err := r.sender.Send(ctx, msg); err != nil {
		return err
	}
	r.log.Debug("jobs: email sent", zap.String("template", job.Template), zap.String("user_id", job.UserID))
	return nil
}

func (r *Runner) invalidateSessions(ctx context.Context, job Job) error {
	if job.UserID == "" {
		return fmt.Errorf("jobs: %s without user id", job.Type)
	}
	now := r.now()
	var revoked []string
	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		ids, err := r.sessions.RevokeAllByUser(ctx, job.UserID, now)
		if err != nil {
			return err
		}
		revoked = ids
		return r.tokens.RevokeBySessions(ctx, ids, now)
	})
	if err != nil {
		return fmt.Errorf("jobs: invalidate sessions: %w", err)
	}
	r.log.Info("jobs: sessions invalidated", zap.String("user_id", job.UserID), zap.Int("count", len(revoked)))
	return nil
}
