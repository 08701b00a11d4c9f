// Package roomcode generates and checks the short codes that name rooms.
package roomcode

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// Alphabet leaves out 0, O, 1 and I so codes survive being read aloud.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Length is the number of characters in a generated code.
const Length = 6

// Generate returns a fresh random code. Callers that keep a table of codes
// must retry on collision themselves.
func Generate() string {
	var b strings.Builder
	b.Grow(Length)
	for i := 0; i < Length; i++ {
		b.WriteByte(Alphabet[randomIndex(len(Alphabet))])
	}
	return b.String()
}

// Normalize trims whitespace and upper-cases user input.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Valid reports whether code has the generated shape.
func Valid(code string) bool {
	if len(code) != Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(Alphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}

// randomIndex returns a cryptographically secure index below max.
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		panic("roomcode: crypto/rand failed: " + err.Error())
	}
	return int(n.Int64())
}
