package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	auditdomain "taskflow/backend/internal/audit/domain"
	confirmationdomain "taskflow/backend/internal/confirmation/domain"
	"taskflow/backend/internal/jobs"
	"taskflow/backend/internal/mail"
	"taskflow/backend/internal/security"
	"taskflow/backend/internal/telemetry"
	userdomain "taskflow/backend/internal/user/domain"
	userrepo "taskflow/backend/internal/user/repository"
)

// RegisterInput is the Register request.
type RegisterInput struct {
	Email       string
	Password    string
	PhoneNumber string
}

// RegisterResult is the outcome of Register.
type RegisterResult struct {
	UserID                    string
	EmailConfirmationRequired bool
}

// Register creates a user with the default role. A taken email is reported before the password
// policy. When email confirmation is required a code is issued and mailed after the user is committed.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	email, err := security.ValidateEmail(in.Email)
	if err != nil {
		return nil, ErrInvalidEmail
	}
	normalized := security.NormalizeEmail(email)
	existing, err := s.Users.GetByNormalizedEmail(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("register: lookup user: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailAlreadyRegistered
	}
	if violations := s.opts.PasswordPolicy.Validate(in.Password); len(violations) > 0 {
		return nil, &ValidationError{Errors: violations}
	}
	hash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("register: hash password: %w", err)
	}
	now := s.now()
	user := &userdomain.User{
		ID:              uuid.New().String(),
		Email:           email,
		NormalizedEmail: normalized,
		PasswordHash:    hash,
		PhoneNumber:     in.PhoneNumber,
		LockoutEnabled:  s.opts.LockoutEnabled,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err = s.UnitOfWork.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.Users.Create(ctx, user); err != nil {
			if errors.Is(err, userrepo.ErrDuplicateEmail) {
				return ErrEmailAlreadyRegistered
			}
			return fmt.Errorf("create user: %w", err)
		}
		if s.opts.DefaultRole == "" {
			return nil
		}
		role, err := s.Roles.GetByName(ctx, s.opts.DefaultRole)
		if err != nil {
			return fmt.Errorf("lookup default role: %w", err)
		}
		if role == nil {
			return nil
		}
		return s.Roles.AssignToUser(ctx, user.ID, role.ID, now)
	})
	if errors.Is(err, ErrEmailAlreadyRegistered) {
		return nil, ErrEmailAlreadyRegistered
	}
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	s.record(ctx, user.ID, "", auditdomain.ActionRegister, nil)
	s.emit(ctx, telemetry.EventUserRegistered, user.ID, "", nil)
	if s.opts.RequireConfirmedEmail {
		// The user is committed; a failed send is recoverable through ResendEmailConfirmation.
		if err := s.sendCode(ctx, user, confirmationdomain.TypeEmailConfirmation); err != nil {
			s.logger(ctx).Error("register: confirmation code not sent", zap.String("user_id", user.ID), zap.Error(err))
		}
	}
	return &RegisterResult{UserID: user.ID, EmailConfirmationRequired: s.opts.RequireConfirmedEmail}, nil
}

// ResendEmailConfirmation mails a fresh confirmation code. Unknown or already confirmed addresses
// are a silent no-op so the response does not reveal which emails are registered.
func (s *AuthService) ResendEmailConfirmation(ctx context.Context, email string) error {
	user, err := s.lookupForCode(ctx, email)
	if err != nil || user == nil || user.EmailConfirmed {
		return err
	}
	if err := s.sendCode(ctx, user, confirmationdomain.TypeEmailConfirmation); err != nil {
		s.logger(ctx).Error("resend confirmation: code not sent", zap.String("user_id", user.ID), zap.Error(err))
	}
	return nil
}

// ForgotPassword mails a password reset code. Unknown addresses are a silent no-op.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.lookupForCode(ctx, email)
	if err != nil || user == nil || !user.IsActive {
		return err
	}
	if err := s.sendCode(ctx, user, confirmationdomain.TypeResetPassword); err != nil {
		s.logger(ctx).Error("forgot password: code not sent", zap.String("user_id", user.ID), zap.Error(err))
	}
	return nil
}

// ConfirmEmail consumes an email confirmation code and marks the address confirmed.
func (s *AuthService) ConfirmEmail(ctx context.Context, email, code string) error {
	user, err := s.lookupForCode(ctx, email)
	if err != nil {
		return err
	}
	if user == nil || code == "" {
		return ErrInvalidCode
	}
	now := s.now()
	err = s.UnitOfWork.WithinTx(ctx, func(ctx context.Context) error {
		ok, err := s.Codes.Consume(ctx, user.ID, confirmationdomain.TypeEmailConfirmation, security.HashCode(code), now)
		if err != nil {
			return fmt.Errorf("consume code: %w", err)
		}
		if !ok {
			return ErrInvalidCode
		}
		return s.Users.SetEmailConfirmed(ctx, user.ID, now)
	})
	if errors.Is(err, ErrInvalidCode) {
		return ErrInvalidCode
	}
	if err != nil {
		return fmt.Errorf("confirm email: %w", err)
	}
	s.record(ctx, user.ID, "", auditdomain.ActionEmailConfirmed, nil)
	s.emit(ctx, telemetry.EventEmailConfirmed, user.ID, "", nil)
	return nil
}

// VerifyResetPasswordCode checks a reset code without consuming it.
func (s *AuthService) VerifyResetPasswordCode(ctx context.Context, email, code string) error {
	user, err := s.lookupForCode(ctx, email)
	if err != nil {
		return err
	}
	if user == nil || code == "" {
		return ErrInvalidCode
	}
	ok, err := s.Codes.Exists(ctx, user.ID, confirmationdomain.TypeResetPassword, security.HashCode(code), s.now())
	if err != nil {
		return fmt.Errorf("verify reset code: %w", err)
	}
	if !ok {
		return ErrInvalidCode
	}
	return nil
}

// ResetPassword consumes a reset code and replaces the password, clearing any lockout. Every
// session of the user is then invalidated by a background job.
func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if violations := s.opts.PasswordPolicy.Validate(newPassword); len(violations) > 0 {
		return &ValidationError{Errors: violations}
	}
	user, err := s.lookupForCode(ctx, email)
	if err != nil {
		return err
	}
	if user == nil || code == "" {
		return ErrInvalidCode
	}
	hash, err := s.Hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("reset password: hash password: %w", err)
	}
	now := s.now()
	err = s.UnitOfWork.WithinTx(ctx, func(ctx context.Context) error {
		ok, err := s.Codes.Consume(ctx, user.ID, confirmationdomain.TypeResetPassword, security.HashCode(code), now)
		if err != nil {
			return fmt.Errorf("consume code: %w", err)
		}
		if !ok {
			return ErrInvalidCode
		}
		return s.Users.UpdatePassword(ctx, user.ID, hash, now)
	})
	if errors.Is(err, ErrInvalidCode) {
		return ErrInvalidCode
	}
	if err != nil {
		return fmt.Errorf("reset password: %w", err)
	}

	s.record(ctx, user.ID, "", auditdomain.ActionPasswordReset, nil)
	s.emit(ctx, telemetry.EventPasswordReset, user.ID, "", nil)
	s.invalidateSessions(ctx, user.ID)
	return nil
}

// invalidateSessions enqueues the revocation of every session of the user. If the job cannot be
// enqueued the sessions are revoked inline.
func (s *AuthService) invalidateSessions(ctx context.Context, userID string) {
	if s.Jobs != nil {
		err := s.Jobs.Enqueue(ctx, jobs.InvalidateSessions(userID))
		if err == nil {
			return
		}
		s.logger(ctx).Warn("invalidate sessions: enqueue failed, revoking inline", zap.String("user_id", userID), zap.Error(err))
	}
	now := s.now()
	var revoked []string
	err := s.UnitOfWork.WithinTx(ctx, func(ctx context.Context) error {
		ids, err := s.Sessions.RevokeAllByUser(ctx, userID, now)
		if err != nil {
			return err
		}
		revoked = ids
		return s.RefreshTokens.RevokeBySessions(ctx, ids, now)
	})
	if err != nil {
		s.logger(ctx).Error("invalidate sessions: inline revoke failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	s.emit(ctx, telemetry.EventSessionsRevoked, userID, "", map[string]string{"count": fmt.Sprint(len(revoked))})
}

func (s *AuthService) lookupForCode(ctx context.Context, email string) (*userdomain.User, error) {
	normalized := security.NormalizeEmail(email)
	if normalized == "" {
		return nil, nil
	}
	user, err := s.Users.GetByNormalizedEmail(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user == nil || user.IsDeleted() {
		return nil, nil
	}
	return user, nil
}

// sendCode invalidates older codes of typ, stores a fresh one and enqueues the email carrying it.
func (s *AuthService) sendCode(ctx context.Context, user *userdomain.User, typ confirmationdomain.Type) error {
	code, err := security.GenerateCode(s.opts.ConfirmationCodeLength)
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}
	now := s.now()
	err = s.UnitOfWork.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.Codes.InvalidateActive(ctx, user.ID, typ, now); err != nil {
			return err
		}
		return s.Codes.Create(ctx, &confirmationdomain.Code{
			ID:        uuid.New().String(),
			UserID:    user.ID,
			Type:      typ,
			CodeHash:  security.HashCode(code),
			ExpiresAt: now.Add(s.opts.ConfirmationCodeTTL),
			CreatedAt: now,
		})
	})
	if err != nil {
		return fmt.Errorf("store code: %w", err)
	}
	if s.Jobs == nil {
		return errors.New("no job enqueuer configured")
	}
	template := mail.TemplateEmailConfirmation
	if typ == confirmationdomain.TypeResetPassword {
		template = mail.TemplatePasswordReset
	}
	return s.Jobs.Enqueue(ctx, jobs.SendEmail(user.ID, user.Email, template, map[string]string{
		"code":       code,
		"expires_in": humanDuration(s.opts.ConfirmationCodeTTL),
	}))
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		if d == time.Hour {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", d/time.Hour)
	case d >= time.Minute && d%time.Minute == 0:
		if d == time.Minute {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", d/time.Minute)
	}
	return d.String()
}
