package metrics

import (
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/codyseavey/kaiwa/internal/models"
)

// LimiterStats is the subset of limiter state exported as gauges.
type LimiterStats interface {
	TrackedClients() int
	GlobalCount(now time.Time) int
}

// UpdateGatewayMetrics refreshes the gauges that are read from state rather than
// incremented inline. Call it periodically.
func UpdateGatewayMetrics(db *gorm.DB, limiter LimiterStats) {
	if limiter != nil {
		RateLimitTrackedClients.Set(float64(limiter.TrackedClients()))
		RateLimitGlobalCount.Set(float64(limiter.GlobalCount(time.Now())))
	}

	if db == nil {
		return
	}

	var entries int64
	if err := db.Model(&models.TranslationCache{}).Count(&entries).Error; err != nil {
		log.Printf("Metrics: failed to count translation cache entries: %v", err)
	} else {
		TranslationCacheEntries.Set(float64(entries))
	}
}
