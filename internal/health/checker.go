// Package health reports liveness and readiness over HTTP and the standard gRPC health service.
package health

import (
	"context"
	"fmt"
	"time"
)

// Pinger is used for readiness (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker is used for readiness (e.g. the OPA sign-in evaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

const checkTimeout = 2 * time.Second

// Checker runs the readiness checks. Nil dependencies are skipped.
type Checker struct {
	pinger Pinger
	policy PolicyChecker
}

// NewChecker returns a Checker. Either argument may be nil.
func NewChecker(pinger Pinger, policy PolicyChecker) *Checker {
	return &Checker{pinger: pinger, policy: policy}
}

// Ready returns nil when every configured dependency is healthy.
func (c *Checker) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if c.pinger != nil {
		if err := c.pinger.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if c.policy != nil {
		if err := c.policy.HealthCheck(ctx); err != nil {
			return fmt.Errorf("policy: %w", err)
		}
	}
	return nil
}
