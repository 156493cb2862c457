package model

import "fmt"

// OpenMode selects how an archive treats its backing directory. It is fixed
// for the lifetime of an archive.
type OpenMode int

const (
	// OpenModeRead opens an existing archive for reading only
	OpenModeRead OpenMode = iota
	// OpenModeWrite starts a fresh archive in an empty (or absent) directory
	OpenModeWrite
	// OpenModeAppend extends an existing archive, creating it if needed
	OpenModeAppend
)

// String returns the lowercase name of the mode
func (m OpenMode) String() string {
	switch m {
	case OpenModeRead:
		return "read"
	case OpenModeWrite:
		return "write"
	case OpenModeAppend:
		return "append"
	default:
		return fmt.Sprintf("OpenMode(%d)", int(m))
	}
}

// ParseOpenMode converts "read", "write" or "append" into an OpenMode
func ParseOpenMode(s string) (OpenMode, error) {
	switch s {
	case "read", "r":
		return OpenModeRead, nil
	case "write", "w":
		return OpenModeWrite, nil
	case "append", "a":
		return OpenModeAppend, nil
	}
	return 0, fmt.Errorf("unknown open mode %q", s)
}

// FieldID identifies one serialized occurrence of a named field. ID is the
// position in the field's occurrence list, independent per field.
type FieldID struct {
	Name string
	ID   int
}

func (f FieldID) String() string {
	return fmt.Sprintf("%s[%d]", f.Name, f.ID)
}

// FileOffset records where an occurrence starts in the field's data file and
// the digest of its bytes
type FileOffset struct {
	Offset   int64
	Checksum string
}

// FieldOffsetTable is the ordered list of occurrences of one field, indexed by
// occurrence id
type FieldOffsetTable []FileOffset

// FieldTable maps a field name to its occurrences
type FieldTable map[string]FieldOffsetTable
