package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Field length limits for goal and transaction text.
const (
	MaxNameLength        = 100
	MaxEmojiLength       = 16
	MaxColorLength       = 64
	MaxDescriptionLength = 500
	MaxNotesLength       = 2000
	MaxNoteLength        = 280
)

const msgRequired = "is required"

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return e.Field + " " + e.Message
}

func fail(field, format string, args ...any) *ValidationError {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &ValidationError{Field: field, Message: msg}
}

// Collector gathers every field failure so a caller sees them all at once.
type Collector struct {
	errors []ValidationError
}

// Add records err unless it is nil.
func (c *Collector) Add(err *ValidationError) {
	if err == nil {
		return
	}
	c.errors = append(c.errors, *err)
}

func (c *Collector) HasErrors() bool { return len(c.errors) != 0 }

func (c *Collector) Errors() []ValidationError { return c.errors }

// ValidateUTF8 rejects byte sequences that are not UTF-8.
func ValidateUTF8(field, value string) *ValidationError {
	if utf8.ValidString(value) {
		return nil
	}
	return fail(field, "must be valid UTF-8")
}

// ValidateNoNullBytes rejects values carrying NUL.
func ValidateNoNullBytes(field, value string) *ValidationError {
	if strings.IndexByte(value, 0) < 0 {
		return nil
	}
	return fail(field, "must not contain null bytes")
}

// ValidateMaxLength limits value to max runes.
func ValidateMaxLength(field, value string, max int) *ValidationError {
	if n := utf8.RuneCountInString(value); n > max {
		return fail(field, "exceeds maximum length of %d characters", max)
	}
	return nil
}

// ValidateRequired rejects empty and whitespace-only values.
func ValidateRequired(field, value string) *ValidationError {
	if strings.TrimSpace(value) != "" {
		return nil
	}
	return fail(field, msgRequired)
}

// ValidateEnum requires value to be one of allowed.
func ValidateEnum(field, value string, allowed []string) *ValidationError {
	for _, a := range allowed {
		if a == value {
			return nil
		}
	}
	return fail(field, "must be one of: %s", strings.Join(allowed, ", "))
}

// ValidatePositive requires an amount greater than zero.
func ValidatePositive(field string, value *decimal.Decimal) *ValidationError {
	switch {
	case value == nil:
		return fail(field, msgRequired)
	case !value.IsPositive():
		return fail(field, "must be greater than zero")
	}
	return nil
}

// ValidatePresent requires an amount. Any signed value is accepted.
func ValidatePresent(field string, value *decimal.Decimal) *ValidationError {
	if value == nil {
		return fail(field, msgRequired)
	}
	return nil
}

// ValidateText applies the encoding and length checks for free-form text.
func ValidateText(c *Collector, field, value string, max int) {
	c.Add(ValidateUTF8(field, value))
	c.Add(ValidateNoNullBytes(field, value))
	c.Add(ValidateMaxLength(field, value, max))
}
