package security

import "unicode"

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

// PasswordPolicy is the set of rules a new password must satisfy.
type PasswordPolicy struct {
	RequiredLength         int
	RequireDigit           bool
	RequireLowercase       bool
	RequireUppercase       bool
	RequireNonAlphanumeric bool
	RequiredUniqueChars    int
}

// DefaultPasswordPolicy is used when no policy is configured.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		RequiredLength:         8,
		RequireDigit:           true,
		RequireLowercase:       true,
		RequireUppercase:       true,
		RequireNonAlphanumeric: true,
		RequiredUniqueChars:    1,
	}
}

// Password policy violation keys. They double as i18n message keys.
const (
	PasswordTooShort          = "password_too_short"
	PasswordRequiresDigit     = "password_requires_digit"
	PasswordRequiresLower     = "password_requires_lower"
	PasswordRequiresUpper     = "password_requires_upper"
	PasswordRequiresNonAlnum  = "password_requires_non_alphanumeric"
	PasswordRequiresUniqueChr = "password_requires_unique_chars"
	PasswordTooLong           = "password_too_long"
)

// Validate returns every rule password breaks, in a stable order. Nil means valid.
func (p PasswordPolicy) Validate(password string) []string {
	var (
		n                                   int
		hasDigit, hasLower, hasUpper, other bool
		unique                              = make(map[rune]struct{})
	)
	for _, r := range password {
		n++
		unique[r] = struct{}{}
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			other = true
		}
	}

	var errs []string
	if n < p.RequiredLength {
		errs = append(errs, PasswordTooShort)
	}
	if p.RequireDigit && !hasDigit {
		errs = append(errs, PasswordRequiresDigit)
	}
	if p.RequireLowercase && !hasLower {
		errs = append(errs, PasswordRequiresLower)
	}
	if p.RequireUppercase && !hasUpper {
		errs = append(errs, PasswordRequiresUpper)
	}
	if p.RequireNonAlphanumeric && !other {
		errs = append(errs, PasswordRequiresNonAlnum)
	}
	if len(unique) < p.RequiredUniqueChars {
		errs = append(errs, PasswordRequiresUniqueChr)
	}
	if len(password) > MaxPasswordBytes {
		errs = append(errs, PasswordTooLong)
	}
	return errs
}
