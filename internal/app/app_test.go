package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"digitlens/internal/otp"
	"digitlens/pkg/domain"
	"digitlens/pkg/store"
)

// stubClassifier returns a canned result or error.
type stubClassifier struct {
	result domain.AnalysisResult
	err    error
}

func (s *stubClassifier) Classify(context.Context, []byte, string) (domain.AnalysisResult, error) {
	return s.result, s.err
}

// captureSender records the last delivered code.
type captureSender struct {
	email string
	code  string
	err   error
}

func (c *captureSender) SendOTP(_ context.Context, email, code string) error {
	c.email = email
	c.code = code
	return c.err
}

func newTestApp(t *testing.T, cfg Config) *App {
	t.Helper()
	if cfg.Store == nil {
		cfg.Store = store.NewMemoryStore()
	}
	if cfg.Sessions == nil {
		cfg.Sessions = store.NewMemorySessionStore()
	}
	if cfg.Codes == nil {
		cfg.Codes = otp.NewMemoryStore()
	}
	if cfg.Classifier == nil {
		cfg.Classifier = &stubClassifier{result: domain.AnalysisResult{Digit: "7", Confidence: domain.ConfidenceHigh}}
	}
	if cfg.MinAnalyzeDuration == 0 {
		cfg.MinAnalyzeDuration = time.Millisecond
	}
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a
}

func TestSignupEstablishesSession(t *testing.T) {
	a := newTestApp(t, Config{})
	sess, token, err := a.Signup("Ada", "Ada@Example.com", "hunter2")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if token == "" {
		t.Fatalf("expected session token")
	}
	if sess.Email != "ada@example.com" || sess.Name != "Ada" {
		t.Fatalf("unexpected session: %+v", sess)
	}
	restored, ok := a.SessionFromToken(token)
	if !ok || restored.Email != "ada@example.com" {
		t.Fatalf("expected token to restore session, ok=%v sess=%+v", ok, restored)
	}
}

func TestSignupRejectsMissingFields(t *testing.T) {
	a := newTestApp(t, Config{})
	cases := []struct{ name, email, password string }{
		{"", "a@example.com", "pw"},
		{"Ada", "", "pw"},
		{"Ada", "a@example.com", ""},
		{"   ", "a@example.com", "pw"},
	}
	for _, tc := range cases {
		if _, _, err := a.Signup(tc.name, tc.email, tc.password); !errors.Is(err, ErrAllFieldsRequired) {
			t.Fatalf("signup(%q,%q,%q): expected ErrAllFieldsRequired, got %v", tc.name, tc.email, tc.password, err)
		}
	}
}

func TestSignupRejectsDuplicateEmailCaseInsensitive(t *testing.T) {
	a := newTestApp(t, Config{})
	if _, _, err := a.Signup("Ada", "ada@example.com", "hunter2"); err != nil {
		t.Fatalf("first signup: %v", err)
	}
	if _, _, err := a.Signup("Imposter", "ADA@EXAMPLE.COM", "other"); !errors.Is(err, ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount, got %v", err)
	}
}

func TestLoginVerifiesPassword(t *testing.T) {
	a := newTestApp(t, Config{})
	if _, _, err := a.Signup("Ada", "ada@example.com", "hunter2"); err != nil {
		t.Fatalf("signup: %v", err)
	}

	sess, token, err := a.Login("ADA@example.com", "hunter2")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if token == "" || sess.Email != "ada@example.com" {
		t.Fatalf("unexpected login result: token=%q sess=%+v", token, sess)
	}

	if _, _, err := a.Login("ada@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	// Unknown accounts yield the same error so the API does not reveal
	// which emails exist.
	if _, _, err := a.Login("nobody@example.com", "hunter2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLogoutInvalidatesToken(t *testing.T) {
	a := newTestApp(t, Config{})
	_, token, err := a.Signup("Ada", "ada@example.com", "hunter2")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if err := a.Logout(token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, ok := a.SessionFromToken(token); ok {
		t.Fatalf("expected token to be invalid after logout")
	}
	// Logging out an unknown token is a no-op.
	if err := a.Logout("nonexistent"); err != nil {
		t.Fatalf("logout unknown token: %v", err)
	}
}

func TestRequestPasswordResetDeliversCode(t *testing.T) {
	sender := &captureSender{}
	a := newTestApp(t, Config{Sender: sender})
	if _, _, err := a.Signup("Ada", "ada@example.com", "hunter2"); err != nil {
		t.Fatalf("signup: %v", err)
	}

	if err := a.RequestPasswordReset(context.Background(), "ada@example.com"); err != nil {
		t.Fatalf("request reset: %v", err)
	}
	if sender.email != "ada@example.com" || len(sender.code) != 6 {
		t.Fatalf("unexpected delivery: email=%q code=%q", sender.email, sender.code)
	}
}

func TestRequestPasswordResetUnknownEmail(t *testing.T) {
	a := newTestApp(t, Config{})
	err := a.RequestPasswordReset(context.Background(), "nobody@example.com")
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestRequestPasswordResetSwallowsDeliveryFailure(t *testing.T) {
	sender := &captureSender{err: errors.New("smtp down")}
	a := newTestApp(t, Config{Sender: sender})
	if _, _, err := a.Signup("Ada", "ada@example.com", "hunter2"); err != nil {
		t.Fatalf("signup: %v", err)
	}
	// The code was issued; a broken channel must not surface as an error.
	if err := a.RequestPasswordReset(context.Background(), "ada@example.com"); err != nil {
		t.Fatalf("expected delivery failure to be swallowed, got %v", err)
	}
}

func TestResetPasswordFlow(t *testing.T) {
	ctx := context.Background()
	sender := &captureSender{}
	a := newTestApp(t, Config{Sender: sender})
	if _, _, err := a.Signup("Ada", "ada@example.com", "hunter2"); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if err := a.RequestPasswordReset(ctx, "ada@example.com"); err != nil {
		t.Fatalf("request reset: %v", err)
	}

	if err := a.ResetPassword(ctx, "ada@example.com", sender.code, "abc"); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("short password: expected ErrPasswordTooShort, got %v", err)
	}
	if err := a.ResetPassword(ctx, "ada@example.com", "000000", "newpass"); !errors.Is(err, otp.ErrInvalidCode) {
		t.Fatalf("wrong code: expected ErrInvalidCode, got %v", err)
	}
	if err := a.ResetPassword(ctx, "ada@example.com", sender.code, "newpass"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	if _, _, err := a.Login("ada@example.com", "hunter2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password should be rejected, got %v", err)
	}
	if _, _, err := a.Login("ada@example.com", "newpass"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}

	// The code is single-use: a second reset with it must fail.
	if err := a.ResetPassword(ctx, "ada@example.com", sender.code, "another"); !errors.Is(err, otp.ErrNotFound) {
		t.Fatalf("consumed code: expected ErrNotFound, got %v", err)
	}
}

func TestMaskEmail(t *testing.T) {
	cases := []struct{ in, want string }{
		{"ada@example.com", "a***a@example.com"},
		{"ab@example.com", "a***@example.com"},
		{"a@example.com", "a***@example.com"},
		{"not-an-email", "not-an-email"},
	}
	for _, tc := range cases {
		if got := maskEmail(tc.in); got != tc.want {
			t.Fatalf("maskEmail(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
