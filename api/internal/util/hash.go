package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// SHA256Hex hashes the concatenation of parts. Each part is length-prefixed
// so ("ab","c") and ("a","bc") hash differently.
func SHA256Hex(parts ...[]byte) string {
	h := sha256.New()
	var n [8]byte
	for _, p := range parts {
		l := uint64(len(p))
		for i := 0; i < 8; i++ {
			n[i] = byte(l >> (8 * i))
		}
		h.Write(n[:])
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}
