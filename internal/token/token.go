// Package token mints opaque, unguessable tokens for temporary links.
package token

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// DefaultLength is used when a non-positive length is requested.
const DefaultLength = 20

// Alphabet is the set of characters tokens are drawn from.
const Alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Generator produces a token of the given length.
// Services take one so tests can substitute deterministic sequences.
type Generator func(length int) (string, error)

// Generate returns a token of exactly length characters drawn uniformly
// from Alphabet using crypto/rand.
func Generate(length int) (string, error) {
	if length <= 0 {
		length = DefaultLength
	}

	max := big.NewInt(int64(len(Alphabet)))
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		b[i] = Alphabet[n.Int64()]
	}
	return string(b), nil
}

// Sequence returns a Generator yielding the given tokens in order, then
// repeating the last one. Intended for tests.
func Sequence(tokens ...string) Generator {
	i := 0
	return func(int) (string, error) {
		if len(tokens) == 0 {
			return "", fmt.Errorf("empty token sequence")
		}
		tok := tokens[min(i, len(tokens)-1)]
		i++
		return tok, nil
	}
}
