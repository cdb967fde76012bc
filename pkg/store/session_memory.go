package store

import (
	"sync"

	"digitlens/internal/util"
	"digitlens/pkg/domain"
)

// MemorySessionStore keeps sessions in-process (single instance only).
type MemorySessionStore struct {
	mu   sync.RWMutex
	sess map[string]domain.Session
}

// NewMemorySessionStore builds an in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sess: make(map[string]domain.Session),
	}
}

// NewSession creates a session token.
func (m *MemorySessionStore) NewSession(sess domain.Session) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token := util.NewID()
	m.sess[token] = sess
	return token, nil
}

// GetSession resolves a token to its session.
func (m *MemorySessionStore) GetSession(token string) (domain.Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sess[token]
	return sess, ok, nil
}

// DeleteSession removes a token. Deleting an unknown token is a no-op.
func (m *MemorySessionStore) DeleteSession(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sess, token)
	return nil
}
