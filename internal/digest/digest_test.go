package digest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// emptySHA256 is the SHA-256 digest of zero bytes.
const emptySHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// TestSum_EmptyInput pins the well-known digest of empty content.
func TestSum_EmptyInput(t *testing.T) {
	t.Parallel()

	require.Equal(t, emptySHA256, Sum(SHA256, nil))
	require.True(t, Matches(SHA256, []byte{}, emptySHA256))
}

// TestMatches_NormalizesExpected accepts surrounding whitespace and uppercase hex.
func TestMatches_NormalizesExpected(t *testing.T) {
	t.Parallel()

	data := []byte("fabric-loader")
	expected := "  \t" + strings.ToUpper(Sum(SHA256, data)) + "\n"

	require.True(t, Matches(SHA256, data, expected))
	require.False(t, Matches(SHA256, []byte("other"), expected))
}

// TestMatches_MalformedNeverMatches covers empty, non-hex and wrong-length digests.
func TestMatches_MalformedNeverMatches(t *testing.T) {
	t.Parallel()

	data := []byte{}

	for _, expected := range []string{"", "   ", "zz", emptySHA256[:62], emptySHA256 + "00"} {
		require.False(t, Matches(SHA256, data, expected), expected)
	}

	_, err := Decode(SHA256, "not-hex")
	require.ErrorIs(t, err, ErrMalformedDigest)
}

// TestAlgorithms checks every algorithm round-trips its own digest and has the right size.
func TestAlgorithms(t *testing.T) {
	t.Parallel()

	data := []byte("lithium")

	for _, algorithm := range []Algorithm{SHA256, SHA512, BLAKE3} {
		sum := Sum(algorithm, data)
		require.Len(t, sum, algorithm.Size()*2, algorithm)
		require.True(t, Matches(algorithm, data, sum), algorithm)
	}

	require.False(t, Matches(SHA512, data, Sum(SHA256, data)))

	_, ok := BLAKE3.CryptoHash()
	require.False(t, ok)
}

// TestParseAlgorithm covers defaults and unknown names.
func TestParseAlgorithm(t *testing.T) {
	t.Parallel()

	algorithm, err := ParseAlgorithm("")
	require.NoError(t, err)
	require.Equal(t, DefaultAlgorithm, algorithm)

	algorithm, err = ParseAlgorithm(" SHA512 ")
	require.NoError(t, err)
	require.Equal(t, SHA512, algorithm)

	_, err = ParseAlgorithm("md5")
	require.ErrorIs(t, err, ErrUnknownAlgorithm)
}

// TestMatches_Property verifies that any buffer matches its own digest in any letter case
// and never matches the digest of a different buffer.
func TestMatches_Property(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOf(rapid.Byte()).Draw(t, "data")
		upper := rapid.Bool().Draw(t, "upper")
		padding := rapid.StringMatching(`[ \t\n]{0,3}`).Draw(t, "padding")

		expected := Sum(SHA256, data)
		if upper {
			expected = strings.ToUpper(expected)
		}

		if !Matches(SHA256, data, padding+expected+padding) {
			t.Fatalf("digest of %x did not match itself", data)
		}

		other := append([]byte{0x01}, data...)
		if Matches(SHA256, other, expected) {
			t.Fatalf("digest of %x matched a different buffer", data)
		}
	})
}

// TestSumFile streams a file and agrees with Sum.
func TestSumFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "a.jar")
	require.NoError(t, os.WriteFile(path, []byte("jar-bytes"), 0o600))

	sum, err := SumFile(SHA256, path)
	require.NoError(t, err)
	require.Equal(t, Sum(SHA256, []byte("jar-bytes")), sum)

	_, err = SumFile(SHA256, filepath.Join(t.TempDir(), "missing.jar"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
