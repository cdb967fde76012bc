package otp

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps one-time codes in-process. It backs tests and
// redis-less demo deployments.
type MemoryStore struct {
	mu    sync.Mutex
	codes map[string]record
	ttl   time.Duration
	now   func() time.Time
}

// NewMemoryStore builds an in-memory code store with the default TTL.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		codes: make(map[string]record),
		ttl:   DefaultTTL,
		now:   time.Now,
	}
}

// Issue generates a fresh code for the email, overwriting any prior one.
func (m *MemoryStore) Issue(_ context.Context, email string) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.codes[email] = record{
		Code:    code,
		Expires: m.now().UTC().Add(m.ttl),
	}
	m.mu.Unlock()
	return code, nil
}

// Verify checks the submitted code verbatim against the stored one.
func (m *MemoryStore) Verify(_ context.Context, email, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.codes[email]
	if !ok {
		return ErrNotFound
	}
	if rec.Code != code {
		return ErrInvalidCode
	}
	if m.now().UTC().After(rec.Expires) {
		return ErrExpired
	}
	return nil
}

// Consume deletes the stored code.
func (m *MemoryStore) Consume(_ context.Context, email string) error {
	m.mu.Lock()
	delete(m.codes, email)
	m.mu.Unlock()
	return nil
}
