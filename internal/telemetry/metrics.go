package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Outcome attribute values.
const (
	OutcomeSuccess      = "success"
	OutcomeInvalid      = "invalid_credentials"
	OutcomeLocked       = "locked"
	OutcomeForbidden    = "forbidden"
	OutcomeReuse        = "reuse"
	OutcomeInvalidToken = "invalid_token"
	OutcomeError        = "error"
)

// AuthMetrics holds the auth counters. The zero value is not usable; use NewAuthMetrics.
type AuthMetrics struct {
	loginAttempts   metric.Int64Counter
	refreshes       metric.Int64Counter
	sessionsEvicted metric.Int64Counter
}

// NewAuthMetrics registers the auth counters on meter. A nil meter yields no-op counters.
func NewAuthMetrics(meter metric.Meter) (*AuthMetrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("taskflow.auth")
	}
	login, err := meter.Int64Counter("auth.login.attempts",
		metric.WithDescription("Login attempts by outcome"), metric.WithUnit("{attempt}"))
	if err != nil {
		return nil, err
	}
	refresh, err := meter.Int64Counter("auth.refresh.total",
		metric.WithDescription("Refresh token exchanges by outcome"), metric.WithUnit("{exchange}"))
	if err != nil {
		return nil, err
	}
	evicted, err := meter.Int64Counter("auth.sessions.evicted",
		metric.WithDescription("Sessions revoked to stay within the per-user cap"), metric.WithUnit("{session}"))
	if err != nil {
		return nil, err
	}
	return &AuthMetrics{loginAttempts: login, refreshes: refresh, sessionsEvicted: evicted}, nil
}

// LoginAttempt counts one login by outcome.
func (m *AuthMetrics) LoginAttempt(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.loginAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Refresh counts one refresh exchange by outcome.
func (m *AuthMetrics) Refresh(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// SessionsEvicted counts sessions revoked by the per-user cap.
func (m *AuthMetrics) SessionsEvicted(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsEvicted.Add(ctx, int64(n))
}
