// Package fingerprint produces the deterministic content digest used for
// duplicate detection. All functions are pure; the same normalization rule
// is applied at ingest time and at comparison time.
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"
	"unicode"
)

// Normalize applies the fixed normalization rule: Unicode-aware lowercasing
// and collapsing every run of whitespace (including leading and trailing)
// to a single space. Two raw texts that normalize identically are treated
// as identical content everywhere downstream.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// Compute returns the hex SHA-256 fingerprint of a record's normalized
// title and body. Each field is encoded with a 4-byte big-endian length
// prefix so that content shifted between title and body cannot collide.
func Compute(title, body string) string {
	h := sha256.New()
	writeField := func(s string) {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
		h.Write(lenBuf[:])
		h.Write([]byte(s))
	}
	writeField(Normalize(title))
	writeField(Normalize(body))
	return hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether stored matches the fingerprint recomputed from
// title and body.
func Verify(stored, title, body string) bool {
	return stored == Compute(title, body)
}
