package store

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"digitlens/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&UserModel{}, &ScanModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "email", "password_hash", "updated_at"}),
	}).Create(&model).Error
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by (already lowercased) email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// SaveScan writes one immutable scan record.
func (s *GormStore) SaveScan(rec domain.ScanRecord) error {
	model := scanToModel(rec)
	return s.db.Create(&model).Error
}

// ListScansByUser returns a user's scans, newest first.
func (s *GormStore) ListScansByUser(email string) ([]domain.ScanRecord, error) {
	var models []ScanModel
	if err := s.db.Where("user_email = ?", email).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.ScanRecord, 0, len(models))
	for _, m := range models {
		out = append(out, scanFromModel(m))
	}
	return out, nil
}

// CountScansByUser returns the number of scans stored for a user.
func (s *GormStore) CountScansByUser(email string) (int, error) {
	var count int64
	if err := s.db.Model(&ScanModel{}).Where("user_email = ?", email).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Name:         m.Name,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func scanToModel(r domain.ScanRecord) ScanModel {
	return ScanModel{
		ID:          r.ID,
		UserEmail:   r.UserEmail,
		CreatedAt:   r.CreatedAt,
		ImageData:   r.ImageData,
		StorageKey:  r.StorageKey,
		MimeType:    r.MimeType,
		Digit:       r.Digit,
		Confidence:  string(r.Confidence),
		Explanation: r.Explanation,
		RawResponse: []byte(r.RawResponse),
	}
}

func scanFromModel(m ScanModel) domain.ScanRecord {
	return domain.ScanRecord{
		ID:          m.ID,
		UserEmail:   m.UserEmail,
		CreatedAt:   m.CreatedAt,
		ImageData:   m.ImageData,
		StorageKey:  m.StorageKey,
		MimeType:    m.MimeType,
		Digit:       m.Digit,
		Confidence:  domain.Confidence(m.Confidence),
		Explanation: m.Explanation,
		RawResponse: []byte(m.RawResponse),
	}
}
