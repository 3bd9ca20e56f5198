package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Key derives a stable content-addressed identifier from parts. Parts are
// length-prefixed before hashing, so ("ab","c") and ("a","bc") differ and the
// order of parts matters.
func Key(parts ...string) string {
	h := sha256.New()
	var size [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(size[:], uint64(len(p)))
		h.Write(size[:])
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
