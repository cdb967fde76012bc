package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string    `gorm:"primaryKey"`
	Name         string    `gorm:"not null"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type ScanModel struct {
	ID          string    `gorm:"primaryKey"`
	UserEmail   string    `gorm:"not null;index"`
	CreatedAt   time.Time `gorm:"not null;index"`
	ImageData   string    `gorm:"type:text"`
	StorageKey  string
	MimeType    string
	Digit       string `gorm:"not null"`
	Confidence  string `gorm:"not null"`
	Explanation string
	RawResponse datatypes.JSON `gorm:"type:jsonb"`
}
