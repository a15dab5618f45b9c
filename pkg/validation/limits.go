package validation

import (
	"unicode/utf8"

	dErrors "audittrail/pkg/domain-errors"
)

const (
	// MaxFilterValues bounds one list filter such as event_types or risk_levels.
	MaxFilterValues = 50

	MaxSearchTextLength = 200
	MaxSessionIDLength  = 255
)

// CheckSliceCount fails when a list filter carries more than max values.
func CheckSliceCount(field string, count, max int) error {
	if count > max {
		return dErrors.Newf(dErrors.CodeValidation, "%s accepts at most %d values, got %d", field, max, count)
	}
	return nil
}

// CheckStringLength fails when value is longer than max characters.
func CheckStringLength(field, value string, max int) error {
	if n := utf8.RuneCountInString(value); n > max {
		return dErrors.Newf(dErrors.CodeValidation, "%s must be at most %d characters, got %d", field, max, n)
	}
	return nil
}
