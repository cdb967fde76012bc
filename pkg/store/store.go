package store

import "digitlens/pkg/domain"

// Store defines persistence operations for users and scan history.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)

	// scans
	SaveScan(domain.ScanRecord) error
	ListScansByUser(email string) ([]domain.ScanRecord, error)
	CountScansByUser(email string) (int, error)
}

// SessionStore persists bearer tokens for logged-in identities.
type SessionStore interface {
	NewSession(sess domain.Session) (string, error)
	GetSession(token string) (domain.Session, bool, error)
	DeleteSession(token string) error
}
