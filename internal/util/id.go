package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a URL-safe hex string ID.
func NewID() string {
	return NewHexID(12)
}

// NewHexID returns nBytes of randomness hex-encoded.
func NewHexID(nBytes int) string {
	if nBytes <= 0 {
		nBytes = 12
	}
	b := make([]byte, nBytes)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
