// Package otp generates numeric one-time verification codes.
package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	MinLength     = 6
	MaxLength     = 10
	DefaultLength = 6
)

// Generate returns a zero-padded decimal code of the given length drawn
// uniformly from [0, 10^length) using crypto/rand.
func Generate(length int) (string, error) {
	if length < MinLength || length > MaxLength {
		return "", fmt.Errorf("otp length %d outside [%d, %d]", length, MinLength, MaxLength)
	}
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", length, n.Int64()), nil
}
