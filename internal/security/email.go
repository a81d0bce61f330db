package security

import (
	"errors"
	"net/mail"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrInvalidEmail is returned when an address cannot be parsed.
var ErrInvalidEmail = errors.New("invalid email")

// NormalizeEmail folds case and strips diacritics so that "José@X.com" and
// "jose@x.com" collide on the unique index.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return ""
	}
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, email)
	if err != nil {
		out = email
	}
	return strings.ToLower(out)
}

// ValidateEmail trims the address and checks it is a bare addr-spec.
func ValidateEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}
