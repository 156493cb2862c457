package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents internal error codes for archive operations
type ErrorCode int

const (
	// Success
	ErrCodeOK ErrorCode = 0

	// Directory and ledger errors
	ErrCodeNotFound          ErrorCode = 1000
	ErrCodeDirectoryNotEmpty ErrorCode = 1001
	ErrCodeMetadataNotFound  ErrorCode = 1002
	ErrCodeVersionMismatch   ErrorCode = 1003
	ErrCodeMetadataCorrupted ErrorCode = 1004

	// Caller errors
	ErrCodeInvalidMode         ErrorCode = 2000
	ErrCodeUnknownField        ErrorCode = 2001
	ErrCodeInvalidOccurrenceID ErrorCode = 2002
	ErrCodeInvalidArgument     ErrorCode = 2003
	ErrCodeClosed              ErrorCode = 2004

	// I/O and resource errors
	ErrCodeOutOfMemory          ErrorCode = 3000
	ErrCodeCannotOpenFile       ErrorCode = 3001
	ErrCodeIntegrityCheckFailed ErrorCode = 3002
	ErrCodeFilesystem           ErrorCode = 3003
	ErrCodeDiskFull             ErrorCode = 3004
)

var codeNames = map[ErrorCode]string{
	ErrCodeOK:                   "OK",
	ErrCodeNotFound:             "NotFound",
	ErrCodeDirectoryNotEmpty:    "DirectoryNotEmpty",
	ErrCodeMetadataNotFound:     "MetadataNotFound",
	ErrCodeVersionMismatch:      "VersionMismatch",
	ErrCodeMetadataCorrupted:    "MetadataCorrupted",
	ErrCodeInvalidMode:          "InvalidMode",
	ErrCodeUnknownField:         "UnknownField",
	ErrCodeInvalidOccurrenceID:  "InvalidOccurrenceID",
	ErrCodeInvalidArgument:      "InvalidArgument",
	ErrCodeClosed:               "Closed",
	ErrCodeOutOfMemory:          "OutOfMemory",
	ErrCodeCannotOpenFile:       "CannotOpenFile",
	ErrCodeIntegrityCheckFailed: "IntegrityCheckFailed",
	ErrCodeFilesystem:           "FilesystemError",
	ErrCodeDiskFull:             "DiskFull",
}

// String returns the taxonomy name of the code
func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}

// ArchiveError represents a structured error with code and context
type ArchiveError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *ArchiveError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *ArchiveError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *ArchiveError with the same code, so that
// errors.Is(err, &ArchiveError{Code: ErrCodeUnknownField}) works.
func (e *ArchiveError) Is(target error) bool {
	t, ok := target.(*ArchiveError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewArchiveError creates a new ArchiveError
func NewArchiveError(code ErrorCode, message string, cause error) *ArchiveError {
	return &ArchiveError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// WithDetail adds a detail to the error
func (e *ArchiveError) WithDetail(key string, value interface{}) *ArchiveError {
	e.Details[key] = value
	return e
}

// Convenience constructors, one per taxonomy entry

func NotFound(directory string) *ArchiveError {
	return NewArchiveError(ErrCodeNotFound, fmt.Sprintf("no such directory: '%s'", directory), nil).
		WithDetail("directory", directory)
}

func DirectoryNotEmpty(directory string) *ArchiveError {
	return NewArchiveError(ErrCodeDirectoryNotEmpty, fmt.Sprintf("directory '%s' is not empty", directory), nil).
		WithDetail("directory", directory)
}

func MetadataNotFound(directory string) *ArchiveError {
	return NewArchiveError(ErrCodeMetadataNotFound, fmt.Sprintf("archive meta data not found in directory '%s'", directory), nil).
		WithDetail("directory", directory)
}

func VersionMismatch(what string, found, expected interface{}) *ArchiveError {
	return NewArchiveError(ErrCodeVersionMismatch,
		fmt.Sprintf("%s of archive meta data (%v) does not match the version of the library (%v)", what, found, expected), nil).
		WithDetail("found", found).
		WithDetail("expected", expected)
}

func MetadataCorrupted(path string, cause error) *ArchiveError {
	return NewArchiveError(ErrCodeMetadataCorrupted, fmt.Sprintf("cannot parse archive meta data '%s'", path), cause).
		WithDetail("path", path)
}

func InvalidMode(operation, required string) *ArchiveError {
	return NewArchiveError(ErrCodeInvalidMode,
		fmt.Sprintf("cannot %s: archive is not opened with mode %s", operation, required), nil).
		WithDetail("operation", operation)
}

func UnknownField(name string) *ArchiveError {
	return NewArchiveError(ErrCodeUnknownField, fmt.Sprintf("no field '%s' registered in archive", name), nil).
		WithDetail("field", name)
}

func InvalidOccurrenceID(name string, id, count int) *ArchiveError {
	return NewArchiveError(ErrCodeInvalidOccurrenceID,
		fmt.Sprintf("invalid id '%d' of field '%s' (%d occurrences)", id, name, count), nil).
		WithDetail("field", name).
		WithDetail("id", id)
}

func InvalidArgument(message string, cause error) *ArchiveError {
	return NewArchiveError(ErrCodeInvalidArgument, message, cause)
}

func Closed(directory string) *ArchiveError {
	return NewArchiveError(ErrCodeClosed, fmt.Sprintf("archive '%s' is closed", directory), nil).
		WithDetail("directory", directory)
}

func OutOfMemory(size int64, cause error) *ArchiveError {
	return NewArchiveError(ErrCodeOutOfMemory, fmt.Sprintf("out of memory allocating %d bytes", size), cause).
		WithDetail("size", size)
}

func CannotOpenFile(path string, cause error) *ArchiveError {
	return NewArchiveError(ErrCodeCannotOpenFile, fmt.Sprintf("cannot open file: '%s'", path), cause).
		WithDetail("path", path)
}

func IntegrityCheckFailed(name string, id int, expected, actual string) *ArchiveError {
	return NewArchiveError(ErrCodeIntegrityCheckFailed,
		fmt.Sprintf("hashsum mismatch for field '%s' at id '%d'", name, id), nil).
		WithDetail("field", name).
		WithDetail("id", id).
		WithDetail("expected", expected).
		WithDetail("actual", actual)
}

func Filesystem(message string, cause error) *ArchiveError {
	return NewArchiveError(ErrCodeFilesystem, message, cause)
}

func DiskFull(message string, cause error) *ArchiveError {
	return NewArchiveError(ErrCodeDiskFull, message, cause)
}

// IsArchiveError checks if an error is, or wraps, an ArchiveError
func IsArchiveError(err error) bool {
	var ae *ArchiveError
	return stderrors.As(err, &ae)
}

// GetCode extracts the error code from an error. Errors that are not archive
// errors report ErrCodeFilesystem.
func GetCode(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var ae *ArchiveError
	if stderrors.As(err, &ae) {
		return ae.Code
	}
	return ErrCodeFilesystem
}

// HasCode reports whether err carries the given code
func HasCode(err error, code ErrorCode) bool {
	return err != nil && GetCode(err) == code
}
