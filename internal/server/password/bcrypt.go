// Package password hashes and verifies user passwords with bcrypt.
package password

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"golang.org/x/crypto/bcrypt"
)

// Hasher turns plaintext passwords into self-describing hashes and checks
// candidates against them.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
}

// BcryptHasher is a Hasher with a fixed bcrypt cost.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a hasher using cost, or bcrypt.DefaultCost when
// cost is out of bcrypt's range.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash returns a salted bcrypt hash of plaintext. bcrypt only reads 72
// bytes, so longer input is refused rather than silently truncated.
func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", fmt.Errorf("%w: password longer than 72 bytes", common.ErrorValidation)
	}
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(b), nil
}

// Verify reports whether plaintext matches hash. A malformed or empty hash
// never matches.
func (h *BcryptHasher) Verify(plaintext, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
