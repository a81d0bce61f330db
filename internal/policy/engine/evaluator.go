// Package engine evaluates the sign-in gate: the account checks that run before a password is verified.
package engine

import "context"

// Deny reasons returned by the sign-in gate. An empty reason allows the sign-in.
const (
	DenyNone             = ""
	DenyInactive         = "inactive"
	DenyEmailUnconfirmed = "email_unconfirmed"
	DenyPhoneUnconfirmed = "phone_unconfirmed"
)

// SignInInput is the account state and settings the gate decides on.
type SignInInput struct {
	IsActive              bool
	EmailConfirmed        bool
	PhoneConfirmed        bool
	RequireConfirmedEmail bool
	RequireConfirmedPhone bool
}

// Evaluator decides whether an account may sign in.
type Evaluator interface {
	// EvaluateSignIn returns DenyNone or the reason the sign-in is refused.
	EvaluateSignIn(ctx context.Context, in SignInInput) (string, error)
}

// GateReason is the built-in gate. It mirrors the default Rego policy and is used when
// policy evaluation fails.
func GateReason(in SignInInput) string {
	switch {
	case !in.IsActive:
		return DenyInactive
	case in.RequireConfirmedEmail && !in.EmailConfirmed:
		return DenyEmailUnconfirmed
	case in.RequireConfirmedPhone && !in.PhoneConfirmed:
		return DenyPhoneUnconfirmed
	}
	return DenyNone
}
