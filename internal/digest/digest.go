package digest

import (
	"crypto"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"
)

// Algorithm names a supported digest function.
type Algorithm string

const (
	// SHA256 is the default algorithm.
	SHA256 Algorithm = "sha256"
	// SHA512 produces 64-byte digests.
	SHA512 Algorithm = "sha512"
	// BLAKE3 produces 32-byte unkeyed BLAKE3 digests.
	BLAKE3 Algorithm = "blake3"

	// DefaultAlgorithm is used when a configuration entry does not name one.
	DefaultAlgorithm = SHA256
)

var (
	// ErrUnknownAlgorithm is returned for algorithm names that are not supported.
	ErrUnknownAlgorithm = errors.New("unknown digest algorithm")
	// ErrMalformedDigest is returned when an expected digest cannot be decoded.
	ErrMalformedDigest = errors.New("malformed digest")
)

// ParseAlgorithm resolves a configured algorithm name. Empty means DefaultAlgorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch algorithm := Algorithm(strings.ToLower(strings.TrimSpace(name))); algorithm {
	case "":
		return DefaultAlgorithm, nil
	case SHA256, SHA512, BLAKE3:
		return algorithm, nil
	default:
		return "", fmt.Errorf("%q: %w", name, ErrUnknownAlgorithm)
	}
}

// Size returns the digest length in bytes.
func (a Algorithm) Size() int {
	switch a {
	case SHA512:
		return sha512.Size
	case BLAKE3:
		return 32
	default:
		return sha256.Size
	}
}

// New returns a fresh hash for the algorithm.
func (a Algorithm) New() hash.Hash {
	switch a {
	case SHA512:
		return sha512.New()
	case BLAKE3:
		return blake3.New()
	default:
		return sha256.New()
	}
}

// CryptoHash maps the algorithm onto the crypto package registry.
// BLAKE3 is not registered there, so ok is false for it.
func (a Algorithm) CryptoHash() (crypto.Hash, bool) {
	switch a {
	case SHA256:
		return crypto.SHA256, true
	case SHA512:
		return crypto.SHA512, true
	default:
		return 0, false
	}
}

// Sum returns the lowercase hex digest of data.
func Sum(algorithm Algorithm, data []byte) string {
	hasher := algorithm.New()
	// hash.Hash.Write never returns an error.
	_, _ = hasher.Write(data)

	return hex.EncodeToString(hasher.Sum(nil))
}

// SumFile streams the file at path through the hash and returns the lowercase hex digest.
func SumFile(algorithm Algorithm, path string) (string, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("open %s for hashing: %w", path, err)
	}

	defer func() {
		_ = file.Close()
	}()

	hasher := algorithm.New()
	if _, err = io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Normalize trims surrounding whitespace and lowercases a hex digest.
func Normalize(expected string) string {
	return strings.ToLower(strings.TrimSpace(expected))
}

// Decode converts an expected digest into raw bytes, checking its length.
func Decode(algorithm Algorithm, expected string) ([]byte, error) {
	raw, err := hex.DecodeString(Normalize(expected))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedDigest, err)
	}

	if len(raw) != algorithm.Size() {
		return nil, fmt.Errorf("%w: %d bytes, want %d for %s", ErrMalformedDigest, len(raw), algorithm.Size(), algorithm)
	}

	return raw, nil
}

// Valid reports whether expected is a well-formed digest for the algorithm.
func Valid(algorithm Algorithm, expected string) bool {
	_, err := Decode(algorithm, expected)

	return err == nil
}

// Matches reports whether the digest of data equals expected.
// A malformed expected digest never matches.
func Matches(algorithm Algorithm, data []byte, expected string) bool {
	if !Valid(algorithm, expected) {
		return false
	}

	return Sum(algorithm, data) == Normalize(expected)
}

// MatchesSum compares an already computed hex digest with expected.
func MatchesSum(algorithm Algorithm, actual, expected string) bool {
	if !Valid(algorithm, expected) {
		return false
	}

	return Normalize(actual) == Normalize(expected)
}
