package store

import (
	"sort"
	"sync"

	"digitlens/pkg/domain"
)

// MemoryStore keeps users and scans in-process. It backs tests and
// single-node demo deployments without Postgres.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]domain.User // key: lowercased email
	scans []domain.ScanRecord
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]domain.User),
	}
}

// SaveUser registers or updates a user keyed by email.
func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.Email] = u
	return nil
}

// HasUserEmail checks if email exists.
func (m *MemoryStore) HasUserEmail(email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.users[email]
	return ok, nil
}

// GetUserByEmail looks up a user by (already lowercased) email.
func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[email]
	return u, ok, nil
}

// SaveScan appends one scan record.
func (m *MemoryStore) SaveScan(rec domain.ScanRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scans = append(m.scans, rec)
	return nil
}

// ListScansByUser returns a user's scans, newest first.
func (m *MemoryStore) ListScansByUser(email string) ([]domain.ScanRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.ScanRecord, 0)
	for _, rec := range m.scans {
		if rec.UserEmail == email {
			res = append(res, rec)
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res, nil
}

// CountScansByUser returns the number of scans stored for a user.
func (m *MemoryStore) CountScansByUser(email string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, rec := range m.scans {
		if rec.UserEmail == email {
			count++
		}
	}
	return count, nil
}
