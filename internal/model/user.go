package model

import (
	"fmt"
	"regexp"
	"time"
)

// User is an account that can log in.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Email        string    `json:"email,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Roles.
const (
	RoleAdmin   = "admin"
	RoleStudent = "student"
)

// ValidRole reports whether role is known.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleStudent
}

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// ValidatePassword checks password strength requirements.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return &ValidationError{Field: "password", Message: fmt.Sprintf("must be at least %d characters", MinPasswordLength)}
	}
	return nil
}

// EmailPolicy validates student email addresses: six digits at the school domain.
type EmailPolicy struct {
	Domain string
	re     *regexp.Regexp
}

// NewEmailPolicy compiles the student email pattern for domain.
func NewEmailPolicy(domain string) *EmailPolicy {
	return &EmailPolicy{
		Domain: domain,
		re:     regexp.MustCompile(`^\d{6}@` + regexp.QuoteMeta(domain) + `$`),
	}
}

// Validate checks the email of a user with the given role. Only students
// need one.
func (p *EmailPolicy) Validate(role, email string) error {
	switch role {
	case RoleStudent:
		if email == "" {
			return Invalid("email", "required for students")
		}
		if !p.re.MatchString(email) {
			return Invalid("email", "must be in the format 123456@%s", p.Domain)
		}
	case RoleAdmin:
	default:
		return Invalid("role", "unknown role %q", role)
	}
	return nil
}
