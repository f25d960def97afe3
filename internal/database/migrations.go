package database

import (
	"log"
	"time"

	"gorm.io/gorm"
)

// RunMigrations runs any custom data migrations after schema changes
func RunMigrations(db *gorm.DB) error {
	if err := migrateLanguageColumns(db); err != nil {
		return err
	}
	_, err := PruneExpiredTranslations(db, time.Now())
	return err
}

// migrateLanguageColumns backfills language codes on rows written before the
// columns had defaults. Safe to run multiple times.
func migrateLanguageColumns(db *gorm.DB) error {
	if !db.Migrator().HasTable("translation_caches") {
		return nil
	}

	result := db.Exec(`
		UPDATE translation_caches
		SET source_language = 'ja'
		WHERE source_language IS NULL OR source_language = ''
	`)
	if result.Error != nil {
		log.Printf("Warning: failed to backfill source_language: %v", result.Error)
	} else if result.RowsAffected > 0 {
		log.Printf("Backfilled source_language on %d translation_caches rows", result.RowsAffected)
	}

	result = db.Exec(`
		UPDATE translation_caches
		SET target_language = 'en'
		WHERE target_language IS NULL OR target_language = ''
	`)
	if result.Error != nil {
		log.Printf("Warning: failed to backfill target_language: %v", result.Error)
	} else if result.RowsAffected > 0 {
		log.Printf("Backfilled target_language on %d translation_caches rows", result.RowsAffected)
	}

	return nil
}

// PruneExpiredTranslations deletes cache rows whose expiry has passed and
// returns the number removed. Rows without an expiry are kept.
func PruneExpiredTranslations(db *gorm.DB, now time.Time) (int64, error) {
	result := db.Exec(`DELETE FROM translation_caches WHERE expires_at IS NOT NULL AND expires_at < ?`, now)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		log.Printf("Pruned %d expired translation cache entries", result.RowsAffected)
	}
	return result.RowsAffected, nil
}
