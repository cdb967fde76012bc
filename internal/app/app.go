// Package app is the core application service: the auth flow and the scan
// flow, wired over injected stores and clients.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"digitlens/internal/otp"
	"digitlens/internal/util"
	"digitlens/pkg/ai"
	"digitlens/pkg/domain"
	"digitlens/pkg/mailer"
	"digitlens/pkg/storage"
	"digitlens/pkg/store"
)

// Config holds the collaborators of the application core. Store, Sessions,
// Codes, and Classifier are required; Sender and Objects are optional.
type Config struct {
	Store      store.Store
	Sessions   store.SessionStore
	Codes      otp.Store
	Classifier ai.Classifier
	Sender     mailer.OTPSender
	Objects    storage.ObjectStore

	// MinAnalyzeDuration keeps the analyzing state visible at least this
	// long. Zero means 800ms.
	MinAnalyzeDuration time.Duration
}

// App orchestrates auth, scans, and history.
type App struct {
	store      store.Store
	sessions   store.SessionStore
	codes      otp.Store
	classifier ai.Classifier
	sender     mailer.OTPSender
	objects    storage.ObjectStore
	minAnalyze time.Duration
}

// New validates wiring and constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	if cfg.Codes == nil {
		return nil, errors.New("otp store is required")
	}
	if cfg.Classifier == nil {
		return nil, errors.New("classifier is required")
	}
	minAnalyze := cfg.MinAnalyzeDuration
	if minAnalyze == 0 {
		minAnalyze = 800 * time.Millisecond
	}
	return &App{
		store:      cfg.Store,
		sessions:   cfg.Sessions,
		codes:      cfg.Codes,
		classifier: cfg.Classifier,
		sender:     cfg.Sender,
		objects:    cfg.Objects,
		minAnalyze: minAnalyze,
	}, nil
}

// Login validates credentials and establishes a session.
func (a *App) Login(email, password string) (domain.Session, string, error) {
	email = normalizeEmail(email)
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.Session{}, "", fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.Session{}, "", ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return domain.Session{}, "", ErrInvalidCredentials
	}
	return a.establishSession(user)
}

// Signup registers a new account and establishes a session (signup implies
// login). Email uniqueness is case-insensitive.
func (a *App) Signup(name, email, password string) (domain.Session, string, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" || email == "" || password == "" {
		return domain.Session{}, "", ErrAllFieldsRequired
	}
	exists, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.Session{}, "", fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.Session{}, "", ErrDuplicateAccount
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.Session{}, "", fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:           util.NewID(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.Session{}, "", fmt.Errorf("save user: %w", err)
	}
	return a.establishSession(user)
}

// RequestPasswordReset issues a one-time code and delivers it best-effort.
// Delivery failure is logged, never surfaced: the code was issued and the
// log is the fallback channel.
func (a *App) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	_, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return ErrAccountNotFound
	}
	code, err := a.codes.Issue(ctx, email)
	if err != nil {
		return fmt.Errorf("issue otp: %w", err)
	}
	logger := util.LoggerFromContext(ctx)
	if a.sender == nil {
		logger.Info("otp delivery not configured, fallback code", "email", maskEmail(email), "code", code)
		return nil
	}
	if err := a.sender.SendOTP(ctx, email, code); err != nil {
		logger.Warn("otp delivery failed, fallback code", "email", maskEmail(email), "code", code, "err", err)
	}
	return nil
}

// ResetPassword verifies the one-time code, updates the password, and
// consumes the code. The code survives a failed attempt and dies with a
// successful one.
func (a *App) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	email = normalizeEmail(email)
	if len(newPassword) < 4 {
		return ErrPasswordTooShort
	}
	if err := a.codes.Verify(ctx, email, code); err != nil {
		return err
	}
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return ErrAccountNotFound
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = string(hash)
	user.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveUser(user); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if err := a.codes.Consume(ctx, email); err != nil {
		return fmt.Errorf("consume otp: %w", err)
	}
	return nil
}

// Logout clears the session unconditionally. Unknown tokens are a no-op.
func (a *App) Logout(token string) error {
	return a.sessions.DeleteSession(token)
}

// SessionFromToken restores the session for a bearer token.
func (a *App) SessionFromToken(token string) (domain.Session, bool) {
	sess, ok, err := a.sessions.GetSession(token)
	if err != nil || !ok {
		return domain.Session{}, false
	}
	return sess, true
}

func (a *App) establishSession(user domain.User) (domain.Session, string, error) {
	sess := domain.Session{Email: user.Email, Name: user.Name}
	token, err := a.sessions.NewSession(sess)
	if err != nil {
		return domain.Session{}, "", fmt.Errorf("create session: %w", err)
	}
	return sess, token, nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func maskEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return email
	}
	local := parts[0]
	switch len(local) {
	case 0:
		return "***@" + parts[1]
	case 1, 2:
		return local[:1] + "***@" + parts[1]
	default:
		return local[:1] + "***" + local[len(local)-1:] + "@" + parts[1]
	}
}
