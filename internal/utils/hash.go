package utils

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// HashBytes calculates the BLAKE3 hash of the concatenated parts as a hex string
func HashBytes(parts ...[]byte) string {
	hasher := blake3.New()
	for _, part := range parts {
		hasher.Write(part)
	}
	return hex.EncodeToString(hasher.Sum(nil))
}
