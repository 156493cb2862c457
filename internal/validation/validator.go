package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/havogt/serialbox2/internal/errors"
	"github.com/havogt/serialbox2/internal/model"
)

const (
	// MaxFieldNameSize keeps "<name>.dat" within common filesystem name limits
	MaxFieldNameSize = 251
)

// Validator validates archive operations before they touch the filesystem
type Validator struct {
	maxFieldNameSize int
}

// NewValidator creates a new validator with default limits
func NewValidator() *Validator {
	return &Validator{maxFieldNameSize: MaxFieldNameSize}
}

// NewValidatorWithLimits creates a validator with a custom field name limit
func NewValidatorWithLimits(maxFieldNameSize int) *Validator {
	return &Validator{maxFieldNameSize: maxFieldNameSize}
}

// ValidateFieldID validates the name and id of a field occurrence
func (v *Validator) ValidateFieldID(fieldID model.FieldID) error {
	if err := v.ValidateFieldName(fieldID.Name); err != nil {
		return err
	}
	if fieldID.ID < 0 {
		return errors.InvalidArgument(fmt.Sprintf("negative occurrence id %d for field '%s'", fieldID.ID, fieldID.Name), nil).
			WithDetail("field", fieldID.Name).
			WithDetail("id", fieldID.ID)
	}
	return nil
}

// ValidateFieldName validates a field name. Field names become data file
// names, so anything that could escape the archive directory is rejected.
func (v *Validator) ValidateFieldName(name string) error {
	if name == "" {
		return invalidFieldName(name, "field name cannot be empty")
	}

	if len(name) > v.maxFieldNameSize {
		return invalidFieldName(name, fmt.Sprintf("field name exceeds maximum size of %d bytes", v.maxFieldNameSize))
	}

	if name == "." || name == ".." {
		return invalidFieldName(name, "field name cannot be a relative directory reference")
	}

	if strings.ContainsAny(name, "/\\") {
		return invalidFieldName(name, "field name cannot contain path separators")
	}

	// Check for null bytes (security)
	if strings.Contains(name, "\x00") {
		return invalidFieldName(name, "field name cannot contain null bytes")
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return invalidFieldName(name, "field name cannot contain control characters")
		}
	}

	return nil
}

func invalidFieldName(name, reason string) *errors.ArchiveError {
	return errors.InvalidArgument(fmt.Sprintf("invalid field name '%s': %s", name, reason), nil).
		WithDetail("field", name).
		WithDetail("reason", reason)
}
