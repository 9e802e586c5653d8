package prompt

import (
	"crypto/sha256"
	"encoding/hex"
)

// Digest returns the hex sha256 of data. Traces store it to identify the
// exact prompt revision a run used.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
