package validation

import (
	"errors"
	"unicode"
)

// ValidatePassword validates password strength: 8-72 characters containing
// at least two of uppercase, lowercase, digits and punctuation.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters")
	}

	// bcrypt only uses the first 72 bytes, anything longer is silently
	// truncated, so cap well before that becomes a surprise
	if len(password) > 72 {
		return errors.New("password too long")
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	strength := 0
	for _, ok := range []bool{hasUpper, hasLower, hasDigit, hasSpecial} {
		if ok {
			strength++
		}
	}

	if strength < 2 {
		return errors.New("password must contain at least 2 of: uppercase, lowercase, numbers, special characters")
	}

	return nil
}
