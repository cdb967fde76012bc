package domain

import (
	"encoding/json"
	"time"
)

// Confidence grades how sure the model is about a classification.
type Confidence string

const (
	ConfidenceHigh   Confidence = "High"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceLow    Confidence = "Low"
)

// ParseConfidence normalizes free-form model output into a known grade.
// Unknown values degrade to Low rather than failing the scan.
func ParseConfidence(raw string) Confidence {
	switch Confidence(raw) {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return Confidence(raw)
	default:
		return ConfidenceLow
	}
}

// User is a registered account. Email is stored lowercased and is unique.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Session is the logged-in identity resolved from a bearer token.
type Session struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// AnalysisResult is the typed reply of one classification call.
// Raw keeps the verbatim model output for auditing; it is not exposed
// to API clients.
type AnalysisResult struct {
	Digit       string          `json:"digit"`
	Confidence  Confidence      `json:"confidence"`
	Explanation string          `json:"explanation"`
	Raw         json.RawMessage `json:"-"`
}

// ScanRecord is a persisted past classification tied to a user.
// Records are immutable once written and never deleted.
//
// ImageData carries the base64-encoded image when no object store is
// configured; StorageKey points into object storage otherwise.
type ScanRecord struct {
	ID          string          `json:"id"`
	UserEmail   string          `json:"userEmail"`
	CreatedAt   time.Time       `json:"timestamp"`
	ImageData   string          `json:"imageData,omitempty"`
	StorageKey  string          `json:"-"`
	ImageURL    string          `json:"imageUrl,omitempty"`
	MimeType    string          `json:"mimeType"`
	Digit       string          `json:"digit"`
	Confidence  Confidence      `json:"confidence"`
	Explanation string          `json:"explanation"`
	RawResponse json.RawMessage `json:"-"`
}
