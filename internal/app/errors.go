package app

import "errors"

var (
	// ErrInvalidCredentials is returned when the account is absent or the
	// password mismatches. One message for both, so it never enables
	// account enumeration.
	ErrInvalidCredentials = errors.New("Invalid email or password")

	ErrAllFieldsRequired = errors.New("All fields are required")
	ErrDuplicateAccount  = errors.New("Email is already registered")
	ErrAccountNotFound   = errors.New("No account found with this email")
	ErrPasswordTooShort  = errors.New("Password must be at least 4 characters")
)
