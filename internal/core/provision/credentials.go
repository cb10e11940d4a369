package provision

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// =============================================================================
// Credential Generation
// =============================================================================

// PasswordLength is the generated database password length.
const PasswordLength = 24

// Character classes the generated password draws from. Every class is
// guaranteed at least one member. Symbols exclude characters that managed
// database engines reject in master passwords ('/', '@', '"', space).
const (
	lowerChars  = "abcdefghijklmnopqrstuvwxyz"
	upperChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars  = "0123456789"
	symbolChars = "!#$%^&*()-_=+"
)

// GeneratePassword generates a cryptographically random password with at
// least one character from each class. It is never derived from
// user-controlled strings and must never be logged in cleartext.
func GeneratePassword() (string, error) {
	classes := []string{lowerChars, upperChars, digitChars, symbolChars}
	all := lowerChars + upperChars + digitChars + symbolChars

	chars := make([]byte, 0, PasswordLength)
	for _, class := range classes {
		c, err := randomChar(class)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}
	for len(chars) < PasswordLength {
		c, err := randomChar(all)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}

	// Shuffle so the guaranteed class characters are not positional.
	for i := len(chars) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", fmt.Errorf("generate password: %w", err)
		}
		j := n.Int64()
		chars[i], chars[j] = chars[j], chars[i]
	}

	return string(chars), nil
}

func randomChar(class string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(class))))
	if err != nil {
		return 0, fmt.Errorf("generate password: %w", err)
	}
	return class[n.Int64()], nil
}
