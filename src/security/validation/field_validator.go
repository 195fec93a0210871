// backend/src/security/validation/field_validator.go
package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrValidationFailed is the sentinel every field validator wraps, so handlers
// can map any validation failure to a 400 with errors.Is.
var ErrValidationFailed = fmt.Errorf("validation failed")

// Field length limits.
const (
	DefaultMaxStringLength = 255
	MaxReasonLength        = 500
	MaxNoteLength          = 1000
	MaxCurrencyCodeLength  = 3
)

// ValidateStringNotEmpty checks if a string is not empty after trimming.
func ValidateStringNotEmpty(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrValidationFailed, fieldName)
	}
	return nil
}

// ValidateStringMaxLength checks if a string's UTF-8 character count is within max bounds.
func ValidateStringMaxLength(s string, maxLength int, fieldName string) error {
	if utf8.RuneCountInString(s) > maxLength {
		return fmt.Errorf("%w: %s exceeds maximum length of %d characters", ErrValidationFailed, fieldName, maxLength)
	}
	return nil
}

// ValidatePositiveID checks a numeric identifier is present and positive.
func ValidatePositiveID(id int64, fieldName string) error {
	if id <= 0 {
		return fmt.Errorf("%w: %s must be a positive identifier", ErrValidationFailed, fieldName)
	}
	return nil
}

// ValidateYearMonth checks the "YYYY-MM" bucket format used by salary
// adjustments.
func ValidateYearMonth(s string) error {
	if len(s) != 7 || s[4] != '-' {
		return fmt.Errorf("%w: year_month ('%s') must be in YYYY-MM format", ErrValidationFailed, s)
	}
	for i, r := range s {
		if i == 4 {
			continue
		}
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: year_month ('%s') must be in YYYY-MM format", ErrValidationFailed, s)
		}
	}
	month := (int(s[5]-'0') * 10) + int(s[6]-'0')
	if month < 1 || month > 12 {
		return fmt.Errorf("%w: year_month ('%s') has an invalid month", ErrValidationFailed, s)
	}
	return nil
}
