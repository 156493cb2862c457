package util

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Checksum utilities for occurrence integrity validation.
// Digests are lowercase hex strings of a 32-byte hash.

// Algorithm names a checksum algorithm as recorded in the archive ledger
type Algorithm string

const (
	// AlgorithmSHA256 is the default and the algorithm assumed for ledgers that
	// do not record one
	AlgorithmSHA256 Algorithm = "sha256"
	// AlgorithmBLAKE3 is faster on large fields
	AlgorithmBLAKE3 Algorithm = "blake3"
)

// DigestLength is the length of every hex digest produced by this package
const DigestLength = 64

// ParseAlgorithm validates an algorithm name. The empty string selects SHA-256.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(name) {
	case "", AlgorithmSHA256:
		return AlgorithmSHA256, nil
	case AlgorithmBLAKE3:
		return AlgorithmBLAKE3, nil
	}
	return "", fmt.Errorf("unsupported checksum algorithm %q", name)
}

// ComputeChecksum computes the hex digest of data with the given algorithm.
// Unknown algorithms fall back to SHA-256; use ParseAlgorithm at the edges.
func ComputeChecksum(alg Algorithm, data []byte) string {
	var sum [32]byte
	switch alg {
	case AlgorithmBLAKE3:
		sum = blake3.Sum256(data)
	default:
		sum = sha256.Sum256(data)
	}
	return hex.EncodeToString(sum[:])
}

// ValidateChecksum validates data against an expected digest
// Returns the actual digest and whether it matches
func ValidateChecksum(alg Algorithm, data []byte, expected string) (string, bool) {
	actual := ComputeChecksum(alg, data)
	return actual, actual == expected
}
