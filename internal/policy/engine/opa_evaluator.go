package engine

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"go.uber.org/zap"
)

const denyReasonQuery = "data.taskflow.signin.deny_reason"

// DefaultSignInPolicy is the built-in Rego gate. Replacement policies must define
// data.taskflow.signin.deny_reason as a string.
const DefaultSignInPolicy = `package taskflow.signin

default deny_reason := ""

email_blocked if {
	input.settings.require_confirmed_email
	not input.user.email_confirmed
}

phone_blocked if {
	input.settings.require_confirmed_phone
	not input.user.phone_confirmed
}

deny_reason := "inactive" if {
	not input.user.is_active
}

deny_reason := "email_unconfirmed" if {
	input.user.is_active
	email_blocked
}

deny_reason := "phone_unconfirmed" if {
	input.user.is_active
	not email_blocked
	phone_blocked
}
`

// ErrNoDecision is returned when the policy produced no string deny_reason.
var ErrNoDecision = errors.New("policy: no deny_reason decision")

// OPAEvaluator evaluates the sign-in gate with OPA Rego. The query is prepared once.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
	log   *zap.Logger
}

// LoadPolicy returns the Rego source at path, or DefaultSignInPolicy when path is empty.
func LoadPolicy(path string) (string, error) {
	if path == "" {
		return DefaultSignInPolicy, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read sign-in policy: %w", err)
	}
	return string(b), nil
}

// NewOPAEvaluator compiles source (DefaultSignInPolicy when empty) and prepares the deny_reason query.
func NewOPAEvaluator(ctx context.Context, source string, log *zap.Logger) (*OPAEvaluator, error) {
	if source == "" {
		source = DefaultSignInPolicy
	}
	if log == nil {
		log = zap.NewNop()
	}
	compiler, err := ast.CompileModules(map[string]string{"signin.rego": source})
	if err != nil {
		return nil, fmt.Errorf("compile sign-in policy: %w", err)
	}
	pq, err := rego.New(
		rego.Query(denyReasonQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare sign-in policy: %w", err)
	}
	return &OPAEvaluator{query: pq, log: log}, nil
}

// EvaluateSignIn runs the policy. When evaluation fails the built-in gate decides and the failure
// is logged; the error is not returned so sign-in keeps working.
func (e *OPAEvaluator) EvaluateSignIn(ctx context.Context, in SignInInput) (string, error) {
	reason, err := e.eval(ctx, in)
	if err != nil {
		e.log.Warn("policy: sign-in evaluation failed, using built-in gate", zap.Error(err))
		return GateReason(in), nil
	}
	return reason, nil
}

// HealthCheck evaluates the prepared policy against an active, fully confirmed account.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.eval(ctx, SignInInput{IsActive: true, EmailConfirmed: true, PhoneConfirmed: true})
	return err
}

func (e *OPAEvaluator) eval(ctx context.Context, in SignInInput) (string, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(buildInput(in)))
	if err != nil {
		return "", fmt.Errorf("eval sign-in policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return "", ErrNoDecision
	}
	reason, ok := rs[0].Expressions[0].Value.(string)
	if !ok {
		return "", ErrNoDecision
	}
	return reason, nil
}

func buildInput(in SignInInput) map[string]interface{} {
	return map[string]interface{}{
		"user": map[string]interface{}{
			"is_active":       in.IsActive,
			"email_confirmed": in.EmailConfirmed,
			"phone_confirmed": in.PhoneConfirmed,
		},
		"settings": map[string]interface{}{
			"require_confirmed_email": in.RequireConfirmedEmail,
			"require_confirmed_phone": in.RequireConfirmedPhone,
		},
	}
}
