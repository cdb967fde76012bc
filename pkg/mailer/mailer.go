// Package mailer delivers one-time reset codes out-of-band.
//
// Delivery is best-effort by contract: callers log failures instead of
// surfacing them, since the primary operation (issuing the code) already
// succeeded.
package mailer

import "context"

// OTPSender hands a reset code to an external delivery channel.
type OTPSender interface {
	SendOTP(ctx context.Context, email, code string) error
}
