package otp

import (
	"crypto/rand"
	"fmt"
)

// alphabet mirrors the reset codes users receive by email: lowercase
// letters and digits, no symbols.
const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// DefaultLength is the standard reset code length.
const DefaultLength = 6

// Generate returns a random alphanumeric code of the given length. Bytes
// at or above the largest multiple of the alphabet size are discarded so
// every character is equally likely.
func Generate(length int) (string, error) {
	if length <= 0 {
		length = DefaultLength
	}

	limit := byte(256 - 256%len(alphabet))
	out := make([]byte, 0, length)
	buf := make([]byte, length*2)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate otp: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}
