// Package idgen provides pluggable ID generation for run identifiers and
// short-lived correlation IDs used in log lines.
package idgen

import (
	"crypto/rand"
	"fmt"
)

// Generator produces unique string identifiers.
type Generator func() string

// NanoID returns a Generator that produces base-36 IDs of the given length.
// Short and URL-safe; use where a full UUID would be needlessly verbose,
// e.g. per-request correlation IDs in log lines.
func NanoID(length int) Generator {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	return func() string {
		buf := make([]byte, length)
		if _, err := rand.Read(buf); err != nil {
			panic("idgen: crypto/rand failed: " + err.Error())
		}
		b := make([]byte, length)
		for i := range b {
			b[i] = alphabet[int(buf[i])%len(alphabet)]
		}
		return string(b)
	}
}

// Hex returns a Generator that produces lowercase hex IDs of the given
// length in characters (length must be even). Used for the random suffix
// of a run identifier.
func Hex(length int) Generator {
	nbytes := length / 2
	return func() string {
		buf := make([]byte, nbytes)
		if _, err := rand.Read(buf); err != nil {
			panic("idgen: crypto/rand failed: " + err.Error())
		}
		return fmt.Sprintf("%x", buf)
	}
}
