package codes

import (
	"crypto/sha512"
	"encoding/hex"
	"math/rand"
	"strings"
)

// Charset is the 41-symbol alphabet transfer codes are drawn from.
// 41^8 = 7.984.925.229.121 possible codes, so collisions between live
// codes are not checked for.
const Charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@&/-"

// Length is the fixed length of a transfer code.
const Length = 8

// Generate returns a new 8 character code drawn uniformly from Charset.
func Generate() string {
	var b strings.Builder
	b.Grow(Length)
	for i := 0; i < Length; i++ {
		b.WriteByte(Charset[rand.Intn(len(Charset))])
	}
	return b.String()
}

// Normalize uppercases the input and strips every character that is not
// part of Charset. User-typed codes pass through here before validation.
func Normalize(s string) string {
	s = strings.ToUpper(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(Charset, r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Valid reports whether s is a well-formed code after normalization.
func Valid(s string) bool {
	return len(s) == Length
}

// Hash returns the hex SHA-512 of the code. Records are stored under this
// hash so the plaintext code never reaches the database; anyone holding
// the code and the owner email can recompute the lookup key.
func Hash(code string) string {
	sum := sha512.Sum512([]byte(code))
	return hex.EncodeToString(sum[:])
}
