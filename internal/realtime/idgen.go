package realtime

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a 24-hex-character id (12 random bytes), matching the
// project_id/file_id width used throughout the wire protocol (spec §6).
// Grounded on the teacher's own crypto/rand OTP generator, swapping
// base64 for hex to match the fixed-width id format this protocol uses.
func NewID() string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
