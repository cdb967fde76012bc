// Package otp manages short-lived one-time reset codes keyed by email.
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"
)

// DefaultTTL is how long an issued code stays valid.
const DefaultTTL = 5 * time.Minute

var (
	// ErrNotFound means no code was ever issued (or it was already consumed)
	// for the email.
	ErrNotFound = errors.New("no reset request found for this email")
	// ErrInvalidCode means the submitted code does not match the stored one.
	ErrInvalidCode = errors.New("invalid OTP code")
	// ErrExpired means the stored code is past its expiry, even on a match.
	ErrExpired = errors.New("OTP has expired. Please request a new one")
)

// Store issues, verifies, and consumes one-time codes. At most one live
// code exists per email; issuing again overwrites the prior one. A code is
// single-use: Consume is called only after a successful password reset.
type Store interface {
	Issue(ctx context.Context, email string) (string, error)
	Verify(ctx context.Context, email, code string) error
	Consume(ctx context.Context, email string) error
}

// record is the stored shape: the code verbatim plus an absolute expiry.
type record struct {
	Code    string    `json:"code"`
	Expires time.Time `json:"expires"`
}

// generateCode returns a 6-digit numeric code in [100000, 999999].
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate otp code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
