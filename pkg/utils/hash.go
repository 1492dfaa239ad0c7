package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strings"
)

func HashString(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// Fingerprint accumulates rows into a content hash. Fields are separated by
// a unit separator and rows by a newline so that ("1","23") and ("12","3")
// never collide.
type Fingerprint struct {
	h    hash.Hash
	rows int
}

func NewFingerprint() *Fingerprint {
	return &Fingerprint{h: sha256.New()}
}

func (f *Fingerprint) Add(fields ...string) {
	f.h.Write([]byte(strings.Join(fields, "\x1f")))
	f.h.Write([]byte{'\n'})
	f.rows++
}

func (f *Fingerprint) Rows() int {
	return f.rows
}

func (f *Fingerprint) Sum() string {
	return hex.EncodeToString(f.h.Sum(nil))
}
