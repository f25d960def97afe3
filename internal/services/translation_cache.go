package services

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/codyseavey/kaiwa/internal/database"
	"github.com/codyseavey/kaiwa/internal/metrics"
	"github.com/codyseavey/kaiwa/internal/models"
)

const (
	// DefaultGeminiCacheTTL is the TTL for Gemini translations (model may improve)
	DefaultGeminiCacheTTL = 30 * 24 * time.Hour

	SourceGemini    = "gemini"
	SourceGoogleAPI = "google_api"
	SourceGenerator = "generator" // a generator that does not name itself
)

// TranslationCacheService caches translation-mode results in the database.
// A nil db disables caching: every lookup misses and every store is a no-op.
type TranslationCacheService struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

// NewTranslationCacheService creates a new translation cache service.
// ttl <= 0 uses DefaultGeminiCacheTTL.
func NewTranslationCacheService(db *gorm.DB, ttl time.Duration) *TranslationCacheService {
	if ttl <= 0 {
		ttl = DefaultGeminiCacheTTL
	}
	return &TranslationCacheService{db: db, ttl: ttl, now: time.Now}
}

// Get retrieves a cached translation by source text hash.
// Expired entries are deleted and reported as misses.
func (s *TranslationCacheService) Get(sourceText string) (string, bool) {
	if s == nil || s.db == nil {
		return "", false
	}

	hash := hashText(sourceText)

	var cached models.TranslationCache
	if err := s.db.Where("source_hash = ?", hash).First(&cached).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			infoLog("Translation cache lookup failed: %v", err)
		}
		metrics.TranslationCacheMisses.Inc()
		return "", false
	}

	if cached.IsExpired(s.now()) {
		s.db.Delete(&cached)
		metrics.TranslationCacheMisses.Inc()
		debugLog("Cache entry expired for hash=%s (source=%s)", hash[:16], cached.Source)
		return "", false
	}

	_ = s.db.Model(&models.TranslationCache{}).Where("id = ?", cached.ID).UpdateColumn("hit_count", gorm.Expr("hit_count + 1")).Error

	metrics.TranslationCacheHits.Inc()
	metrics.TranslationRequestsTotal.WithLabelValues("cache").Inc()
	debugLog("Cache hit for hash=%s (source=%s)", hash[:16], cached.Source)
	return cached.TranslatedText, true
}

// Set stores a Japanese to English translation. Cloud Translation results never
// expire; language model results expire after the configured TTL.
func (s *TranslationCacheService) Set(sourceText, translatedText, source string) error {
	if s == nil || s.db == nil {
		return nil
	}

	now := s.now()
	var expiresAt *time.Time
	if source != SourceGoogleAPI {
		exp := now.Add(s.ttl)
		expiresAt = &exp
	}

	cached := models.TranslationCache{
		SourceHash:     hashText(sourceText),
		SourceText:     sourceText,
		TranslatedText: translatedText,
		SourceLanguage: "ja",
		TargetLanguage: "en",
		Source:         source,
		CreatedAt:      now,
		ExpiresAt:      expiresAt,
	}

	// Upsert so a better source (gemini -> google_api or back) replaces the entry.
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "source_hash"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"translated_text", "source", "expires_at",
		}),
	}).Create(&cached).Error
}

// CacheStats summarises the cache for the admin endpoint.
type CacheStats struct {
	Entries   int64            `json:"entries"`
	TotalHits int64            `json:"total_hits"`
	BySource  map[string]int64 `json:"by_source"`
}

// GetStats returns cache statistics.
func (s *TranslationCacheService) GetStats() CacheStats {
	stats := CacheStats{BySource: map[string]int64{}}
	if s == nil || s.db == nil {
		return stats
	}

	s.db.Model(&models.TranslationCache{}).Count(&stats.Entries)

	var hits struct {
		TotalHits int64
	}
	s.db.Model(&models.TranslationCache{}).Select("COALESCE(SUM(hit_count), 0) as total_hits").Scan(&hits)
	stats.TotalHits = hits.TotalHits

	var rows []struct {
		Source string
		Count  int64
	}
	s.db.Model(&models.TranslationCache{}).Select("source, COUNT(*) as count").Group("source").Scan(&rows)
	for _, r := range rows {
		stats.BySource[r.Source] = r.Count
	}

	return stats
}

// Prune deletes expired entries and returns how many were removed.
func (s *TranslationCacheService) Prune() (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	return database.PruneExpiredTranslations(s.db, s.now())
}

// hashText creates a SHA256 hash of the text for efficient lookups
func hashText(text string) string {
	hash := sha256.Sum256([]byte(text))
	return hex.EncodeToString(hash[:])
}
