package models

import (
	"fmt"
	"math"
	"net/mail"
	"strings"
)

// FieldError describes one rejected field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is returned by Validate methods when one or more fields are invalid.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, fe := range v {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Only keeps the errors whose field is one of fields or nested under one of them.
func (v ValidationErrors) Only(fields []string) ValidationErrors {
	var out ValidationErrors
	for _, fe := range v {
		for _, f := range fields {
			if fe.Field == f || strings.HasPrefix(fe.Field, f+".") || strings.HasPrefix(fe.Field, f+"[") {
				out = append(out, fe)
				break
			}
		}
	}
	return out
}

// OrNil returns nil for an empty list so callers can return it as an error.
func (v ValidationErrors) OrNil() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

type checker struct {
	errs ValidationErrors
}

func (c *checker) add(field, format string, args ...interface{}) {
	c.errs = append(c.errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (c *checker) required(field, value string) {
	if strings.TrimSpace(value) == "" {
		c.add(field, "is required")
	}
}

func (c *checker) email(field, value string) {
	if value == "" {
		c.add(field, "is required")
		return
	}
	if _, err := mail.ParseAddress(value); err != nil || strings.Contains(value, " ") {
		c.add(field, "must be a valid email address")
	}
}

func (c *checker) oneOf(field, value string, allowed ...string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	c.add(field, "must be one of %s", strings.Join(allowed, ", "))
}

func (c *checker) between(field string, value, min, max float64) {
	if math.IsNaN(value) || value < min || value > max {
		c.add(field, "must be between %v and %v", min, max)
	}
}

func (c *checker) nonNegative(field string, value float64) {
	if math.IsNaN(value) || value < 0 {
		c.add(field, "must not be negative")
	}
}

// NormalizeEmail lowercases and trims an address so uniqueness is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HasAtMostTwoDecimals reports whether v has no more than two fractional digits.
func HasAtMostTwoDecimals(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	cents := v * 100
	return math.Abs(cents-math.Round(cents)) < 1e-6
}
