// Package digest computes and verifies artifact content digests.
//
// Expected digests are hex strings compared case-insensitively after
// trimming surrounding whitespace. A malformed expected digest never matches.
// SHA-256 is the default algorithm; SHA-512 and BLAKE3 are also accepted.
package digest
