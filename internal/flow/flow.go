// Package flow holds the client-visible state machines: the scan lifecycle
// and the auth wizard. The HTTP layer reports the resulting states so a thin
// client can follow along without re-implementing the transitions.
package flow

import "fmt"

// ScanState is the lifecycle of one scan.
type ScanState string

const (
	ScanIdle      ScanState = "idle"
	ScanAnalyzing ScanState = "analyzing"
	ScanSuccess   ScanState = "success"
	ScanError     ScanState = "error"
)

// Scan drives one scan through idle -> analyzing -> success|error.
// Not safe for concurrent use; each scan owns its own instance.
type Scan struct {
	state ScanState
}

// NewScan starts in the idle state.
func NewScan() *Scan {
	return &Scan{state: ScanIdle}
}

// State returns the current lifecycle state.
func (s *Scan) State() ScanState {
	return s.state
}

// Start moves into analyzing. A scan already analyzing cannot be restarted.
func (s *Scan) Start() error {
	if s.state == ScanAnalyzing {
		return fmt.Errorf("scan already analyzing")
	}
	s.state = ScanAnalyzing
	return nil
}

// Succeed completes an analyzing scan.
func (s *Scan) Succeed() error {
	if s.state != ScanAnalyzing {
		return fmt.Errorf("cannot succeed from %s", s.state)
	}
	s.state = ScanSuccess
	return nil
}

// Fail marks an analyzing scan as errored.
func (s *Scan) Fail() error {
	if s.state != ScanAnalyzing {
		return fmt.Errorf("cannot fail from %s", s.state)
	}
	s.state = ScanError
	return nil
}

// Reset returns to idle from any state.
func (s *Scan) Reset() {
	s.state = ScanIdle
}

// AuthView is one screen of the auth wizard.
type AuthView string

const (
	ViewLogin         AuthView = "login"
	ViewSignup        AuthView = "signup"
	ViewForgotEmail   AuthView = "forgot_email"
	ViewForgotReset   AuthView = "forgot_reset"
	ViewForgotSuccess AuthView = "forgot_success"
)

// AuthEvent is a user action that moves the wizard.
type AuthEvent string

const (
	EventToggle      AuthEvent = "toggle"       // login <-> signup
	EventForgot      AuthEvent = "forgot"       // login -> forgot_email
	EventCodeSent    AuthEvent = "code_sent"    // forgot_email -> forgot_reset
	EventResetDone   AuthEvent = "reset_done"   // forgot_reset -> forgot_success
	EventBackToLogin AuthEvent = "back_to_login"
)

// NextAuthView applies one wizard transition. The terminal success view
// offers only the path back to login.
func NextAuthView(from AuthView, ev AuthEvent) (AuthView, error) {
	switch from {
	case ViewLogin:
		switch ev {
		case EventToggle:
			return ViewSignup, nil
		case EventForgot:
			return ViewForgotEmail, nil
		}
	case ViewSignup:
		if ev == EventToggle {
			return ViewLogin, nil
		}
	case ViewForgotEmail:
		switch ev {
		case EventCodeSent:
			return ViewForgotReset, nil
		case EventBackToLogin:
			return ViewLogin, nil
		}
	case ViewForgotReset:
		switch ev {
		case EventResetDone:
			return ViewForgotSuccess, nil
		case EventBackToLogin:
			return ViewLogin, nil
		}
	case ViewForgotSuccess:
		if ev == EventBackToLogin {
			return ViewLogin, nil
		}
	}
	return from, fmt.Errorf("no transition from %s on %s", from, ev)
}
