package models

import "time"

// TranslationCache stores translation-mode results so repeated requests for the
// same Japanese text skip the generation backend.
//
// Language model translations expire (the model may improve); Cloud Translation results never expire.
// Conversation turns are never written here.
type TranslationCache struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	SourceHash     string     `gorm:"uniqueIndex;not null;size:64" json:"source_hash"` // SHA256 hex
	SourceText     string     `gorm:"not null" json:"source_text"`
	TranslatedText string     `gorm:"not null" json:"translated_text"`
	SourceLanguage string     `gorm:"default:'ja';size:10" json:"source_language"`
	TargetLanguage string     `gorm:"default:'en';size:10" json:"target_language"`
	Source         string     `gorm:"default:'unknown';size:20;index" json:"source"` // "gemini", "google_api", "generator"
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      *time.Time `gorm:"index" json:"expires_at"` // nil = never expires
	HitCount       int        `gorm:"default:0" json:"hit_count"`
}

func (TranslationCache) TableName() string {
	return "translation_caches"
}

// IsExpired reports whether the entry has expired at the given time.
func (c *TranslationCache) IsExpired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return now.After(*c.ExpiresAt)
}
