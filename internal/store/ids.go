package store

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// generateID derives an 8-character lowercase hex task ID from the title
// and a timestamp, per spec.md §3: sha256(title || timestamp_bytes)[0..4].
// attempt disambiguates retries on collision without changing the inputs
// the caller sees; it is folded into the hash rather than the title so the
// recorded title is never mangled.
func generateID(title string, timestampNanos int64, attempt int) string {
	h := sha256.New()
	h.Write([]byte(title))

	var tsBytes [8]byte
	binary.BigEndian.PutUint64(tsBytes[:], uint64(timestampNanos))
	h.Write(tsBytes[:])

	if attempt > 0 {
		var attemptBytes [4]byte
		binary.BigEndian.PutUint32(attemptBytes[:], uint32(attempt))
		h.Write(attemptBytes[:])
	}

	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:4])
}
