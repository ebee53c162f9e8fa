package models

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/google/uuid"
)

// Input limits for the registration value types.
const (
	EmailMinLength    = 5
	EmailMaxLength    = 320
	NameMinLength     = 1
	NameMaxLength     = 100
	PasswordMinLength = 6
	PasswordMaxLength = 100
)

// UserID is the stable identity of a user and the subject of every token it
// owns. The zero value is invalid.
type UserID uuid.UUID

// NewUserID returns a fresh time-ordered (v7) identifier.
func NewUserID() (UserID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return UserID{}, err
	}
	return UserID(id), nil
}

// ParseUserID parses s and rejects the nil UUID.
func ParseUserID(s string) (UserID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return UserID{}, fmt.Errorf("%w: user id: %v", common.ErrorValidation, err)
	}
	if id == uuid.Nil {
		return UserID{}, fmt.Errorf("%w: user id is nil", common.ErrorValidation)
	}
	return UserID(id), nil
}

func (id UserID) String() string { return uuid.UUID(id).String() }

func (id UserID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }

// Email is a trimmed, lower-cased address that passed ParseEmail.
type Email string

// ParseEmail normalizes s and checks it is a bare RFC 5322 address within
// the length limits.
func ParseEmail(s string) (Email, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	n := utf8.RuneCountInString(s)
	if n < EmailMinLength || n > EmailMaxLength {
		return "", fmt.Errorf("%w: email must be %d-%d characters", common.ErrorValidation, EmailMinLength, EmailMaxLength)
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return "", fmt.Errorf("%w: malformed email", common.ErrorValidation)
	}
	return Email(s), nil
}

func (e Email) String() string { return string(e) }

// ValidateName checks a display name against the length limits.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n < NameMinLength || n > NameMaxLength {
		return "", fmt.Errorf("%w: name must be %d-%d characters", common.ErrorValidation, NameMinLength, NameMaxLength)
	}
	return name, nil
}

// ValidatePassword checks a plaintext password against the length limits.
func ValidatePassword(password string) error {
	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("%w: password is empty", common.ErrorValidation)
	}
	n := utf8.RuneCountInString(password)
	if n < PasswordMinLength || n > PasswordMaxLength {
		return fmt.Errorf("%w: password must be %d-%d characters", common.ErrorValidation, PasswordMinLength, PasswordMaxLength)
	}
	return nil
}

// User is the stored account record. PasswordHash may be empty for accounts
// that cannot log in with a password.
type User struct {
	ID           UserID
	Email        Email
	Name         string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
