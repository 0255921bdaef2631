package middleware

import (
	"errors"
	"unicode"
	"unicode/utf8"
)

// MaxIdentifierLength bounds user and credential identifiers taken from
// paths, queries and bodies.
const MaxIdentifierLength = 256

// Validation errors.
var (
	ErrIdentifierEmpty   = errors.New("identifier is empty")
	ErrIdentifierTooLong = errors.New("identifier exceeds maximum length")
	ErrIdentifierInvalid = errors.New("identifier contains invalid characters")
)

// ValidateIdentifier checks a user or credential id before it is compared or
// forwarded to the ledger. Identity-provider ids contain colons
// ("did:privy:..."), so only control characters, whitespace, path
// separators and invalid UTF-8 are rejected.
func ValidateIdentifier(id string) error {
	if id == "" {
		return ErrIdentifierEmpty
	}
	if len(id) > MaxIdentifierLength {
		return ErrIdentifierTooLong
	}
	if !utf8.ValidString(id) {
		return ErrIdentifierInvalid
	}
	for _, r := range id {
		if unicode.IsControl(r) || unicode.IsSpace(r) || r == '/' || r == '\\' || r == '?' || r == '#' {
			return ErrIdentifierInvalid
		}
	}
	return nil
}
