package model

import "fmt"

// Library release the on-disk format belongs to
const (
	VersionMajor = 2
	VersionMinor = 0
	VersionPatch = 0
)

// FormatVersion is the release version recorded in every ledger,
// encoded as 100*major + 10*minor + patch.
const FormatVersion = 100*VersionMajor + 10*VersionMinor + VersionPatch

// ArchiveVersion is the version of the binary archive sub-format
const ArchiveVersion = 0

// FormatVersionString renders an encoded format version as "major.minor.patch"
func FormatVersionString(v int) string {
	return fmt.Sprintf("%d.%d.%d", v/100, (v/10)%10, v%10)
}
