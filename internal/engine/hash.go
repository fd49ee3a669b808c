package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"
)

// Algorithm selects the checksum used to verify file payloads.
type Algorithm string

const (
	// SHA256 is the default verification digest.
	SHA256 Algorithm = "sha256"
	// Blake3 is cryptographic and considerably faster on modern hardware.
	Blake3 Algorithm = "blake3"
	// XXHash is non-cryptographic; fastest option for trusted media.
	XXHash Algorithm = "xxhash"
)

// ParseAlgorithm validates a user-supplied checksum name.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case Blake3, SHA256, XXHash:
		return Algorithm(s), nil
	}
	return "", fmt.Errorf("unknown checksum algorithm %q", s)
}

// newHasher returns a fresh hash state for the algorithm.
func (a Algorithm) newHasher() hash.Hash {
	switch a {
	case Blake3:
		return blake3.New()
	case XXHash:
		return xxhash.New()
	default:
		return sha256.New()
	}
}

// HashFile computes the hex-encoded digest of the file at path.
func HashFile(algo Algorithm, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := algo.newHasher()
	buf := make([]byte, 32*1024)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
