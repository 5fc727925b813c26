// Package validate provides a reusable chained validator for the join and
// answer-ingest surfaces.
package validate

import (
	"fmt"
	"regexp"
	"strings"
)

// FieldError is a single field validation failure.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// FieldErrors is a collection of validation failures.
type FieldErrors []FieldError

func (errs FieldErrors) Error() string {
	if len(errs) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("validation failed: ")
	for i, err := range errs {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(err.Error())
	}
	return sb.String()
}

func (errs FieldErrors) HasErrors() bool {
	return len(errs) > 0
}

// Validator is a reusable chained validator.
type Validator struct {
	errors FieldErrors
}

func New() *Validator {
	return &Validator{errors: make(FieldErrors, 0)}
}

func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.errors = append(v.errors, FieldError{Field: field, Message: "is required"})
	}
	return v
}

func (v *Validator) RuneLength(field, value string, min, max int) *Validator {
	n := len([]rune(value))
	if n < min || n > max {
		v.errors = append(v.errors, FieldError{
			Field:   field,
			Message: fmt.Sprintf("must be between %d and %d characters", min, max),
		})
	}
	return v
}

func (v *Validator) Pattern(field, value, pattern, message string) *Validator {
	matched, err := regexp.MatchString(pattern, value)
	if err != nil || !matched {
		v.errors = append(v.errors, FieldError{Field: field, Message: message})
	}
	return v
}

func (v *Validator) Custom(field string, condition bool, message string) *Validator {
	if !condition {
		v.errors = append(v.errors, FieldError{Field: field, Message: message})
	}
	return v
}

func (v *Validator) IsValid() bool {
	return !v.errors.HasErrors()
}

func (v *Validator) Errors() FieldErrors {
	return v.errors
}

func (v *Validator) Error() error {
	if !v.errors.HasErrors() {
		return nil
	}
	return v.errors
}

var (
	joinCodePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)
	nicknamePattern = regexp.MustCompile(`^[\p{L}\p{N} ]+$`)
)

// JoinCode validates the 6-character uppercase-alphanumeric join code.
func JoinCode(code string) *Validator {
	return New().
		Required("joinCode", code).
		Pattern("joinCode", code, joinCodePattern.String(), "must be 6 uppercase letters or digits")
}

// defaultProfanityList is a minimal seed list, used when Nickname is
// called with a nil profanityList.
var defaultProfanityList = []string{"admin", "moderator"}

// Nickname validates a participant nickname per spec.md §6: 1-24 visible
// characters, alphanumerics and spaces, rejected on profanity match. The
// match is case-insensitive and checked by the caller against existing
// session nicknames for uniqueness (that requires session state, not just
// the string itself).
func Nickname(nickname string, profanityList []string) *Validator {
	v := New().
		Required("nickname", nickname).
		RuneLength("nickname", strings.TrimSpace(nickname), 1, 24).
		Pattern("nickname", nickname, nicknamePattern.String(), "must contain only letters, numbers, and spaces")

	list := profanityList
	if list == nil {
		list = defaultProfanityList
	}
	lower := strings.ToLower(nickname)
	for _, word := range list {
		if word == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(word)) {
			v.errors = append(v.errors, FieldError{Field: "nickname", Message: "contains a disallowed word"})
			break
		}
	}
	return v
}
