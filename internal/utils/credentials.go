package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const passwordAlphabet = "abcdefghjkmnpqrstuvwxyz23456789"

// GeneratePassword returns a random password of length n drawn from an
// alphabet without look-alike characters.
func GeneratePassword(n int) (string, error) {
	if n <= 0 {
		n = 8
	}
	max := big.NewInt(int64(len(passwordAlphabet)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate random number: %w", err)
		}
		buf[i] = passwordAlphabet[idx.Int64()]
	}
	return string(buf), nil
}

// TrialUsername joins the configured prefix with the counter value.
func TrialUsername(prefix string, counter int64) string {
	if prefix == "" {
		prefix = "teste"
	}
	return fmt.Sprintf("%s%d", prefix, counter)
}
