package middleware

import (
	"errors"
	"unicode"
)

// MaxAccountIDLength is the maximum length for an account ID in a path.
const MaxAccountIDLength = 128

// Validation errors.
var (
	ErrAccountIDInvalid   = errors.New("account id is invalid")
	ErrIdentifierNonASCII = errors.New("identifier contains non-ascii characters")
)

// ValidateAccountID validates an account id taken from a URL path.
func ValidateAccountID(id string) error {
	if id == "" || len(id) > MaxAccountIDLength {
		return ErrAccountIDInvalid
	}
	for _, r := range id {
		if r > unicode.MaxASCII {
			return ErrIdentifierNonASCII
		}
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return ErrAccountIDInvalid
		}
	}
	return nil
}
