package validation

import (
	"errors"
	"net/mail"
	"net/url"
	"strings"
	"unicode/utf8"
)

var (
	ErrEmailRequired = errors.New("email is required")
	ErrEmailTooLong  = errors.New("email must be at most 320 characters")
	ErrEmailInvalid  = errors.New("invalid email address")

	ErrNameRequired = errors.New("name is required")
	ErrNameTooLong  = errors.New("name must be at most 100 characters")

	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	ErrPasswordTooLong  = errors.New("password must be at most 72 bytes")

	ErrURLInvalid = errors.New("URL must be an absolute http(s) URL")
)

const (
	MaxEmailLength    = 320
	MaxNameLength     = 100
	MinPasswordLength = 8
	// bcrypt ignores everything past 72 bytes.
	MaxPasswordBytes = 72
)

// NormalizeEmail trims surrounding whitespace and checks the address is a
// bare RFC 5322 addr-spec. Case is preserved: invitations bind the exact
// address they were issued for.
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", ErrEmailRequired
	}
	if len(email) > MaxEmailLength {
		return "", ErrEmailTooLong
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrEmailInvalid
	}
	return email, nil
}

// NormalizeName trims a display or cohort name and bounds its length.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrNameRequired
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", ErrNameTooLong
	}
	return name, nil
}

func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(password) > MaxPasswordBytes {
		return ErrPasswordTooLong
	}
	return nil
}

// ValidateHTTPURL accepts absolute http and https URLs with a host.
func ValidateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ErrURLInvalid
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrURLInvalid
	}
	return nil
}
