package errors

import (
	"strings"
	"unicode"
)

// ValidateStreetName validates a street name from roster input.
// It rejects names that are empty, unreasonably long, or contain
// control characters. Normalization (case, whitespace) is done by the
// roster package; this only guards against garbage rows.
func ValidateStreetName(name string) error {
	if strings.TrimSpace(name) == "" {
		return New(ErrCodeDataMalformed, "street name cannot be empty")
	}

	if len(name) > 128 {
		return New(ErrCodeDataMalformed, "street name too long (max 128 characters)")
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeDataMalformed, "street name contains control characters: %q", name)
		}
	}

	return nil
}

// ValidatePollKey validates a polling-place key.
// Poll keys are derived from location or address fields in the source
// data and end up in file names and URLs, so path separators and
// control characters are rejected.
func ValidatePollKey(key string) error {
	if key == "" {
		return New(ErrCodeInvalidPoll, "poll key cannot be empty")
	}

	if len(key) > 256 {
		return New(ErrCodeInvalidPoll, "poll key too long (max 256 characters)")
	}

	for _, r := range key {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidPoll, "poll key contains control characters")
		}
	}

	return nil
}

// ValidateHouseNumber validates a house number from roster input.
func ValidateHouseNumber(n int) error {
	if n < 0 {
		return New(ErrCodeDataMalformed, "house number cannot be negative: %d", n)
	}
	return nil
}

// ValidateLayoutBounds validates layout configuration bounds.
// Both must be positive; this is checked before any processing begins.
func ValidateLayoutBounds(columnRows, maxColumns int) error {
	if columnRows <= 0 {
		return New(ErrCodeInvalidConfig, "columnRows must be positive, got %d", columnRows)
	}
	if maxColumns <= 0 {
		return New(ErrCodeInvalidConfig, "maxColumns must be positive, got %d", maxColumns)
	}
	return nil
}

// ValidateCompactionBounds validates compaction policy parameters.
func ValidateCompactionBounds(maxGap, minExceptionRun, maxExceptionsPerRange int) error {
	if maxGap < 1 {
		return New(ErrCodeInvalidConfig, "maxGap must be at least 1, got %d", maxGap)
	}
	if minExceptionRun < 1 {
		return New(ErrCodeInvalidConfig, "minExceptionRun must be at least 1, got %d", minExceptionRun)
	}
	if maxExceptionsPerRange < 0 {
		return New(ErrCodeInvalidConfig, "maxExceptionsPerRange cannot be negative, got %d", maxExceptionsPerRange)
	}
	return nil
}
