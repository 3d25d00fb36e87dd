package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var keyPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateKey checks key format and length
func ValidateKey(key string, maxLength int) error {
	if key == "" {
		return ErrKeyRequired
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxKeyLength
	}
	if len(key) > maxLength {
		return ErrKeyTooLong
	}
	if !keyPattern.MatchString(key) {
		return ErrKeyInvalid
	}
	return nil
}

// ComputeFingerprint hashes the method, path and body of a request so a
// reused key with different parameters can be detected.
func ComputeFingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func NormalizeKey(key string) string {
	return strings.TrimSpace(key)
}
