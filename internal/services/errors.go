package services

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxNameLength is the longest username or recipient accepted, in characters.
const MaxNameLength = 255

var (
	// ErrInvalidInput is returned when a required field is missing or malformed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAlreadyExists is returned when registering a username that is taken.
	ErrAlreadyExists = errors.New("user already exists")

	// ErrInvalidCredentials is returned for an unknown user or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// validateName accepts any non-blank name up to MaxNameLength characters.
// Names are kept exactly as given.
func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidInput
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return fmt.Errorf("%w: name longer than %d characters", ErrInvalidInput, MaxNameLength)
	}
	return nil
}
