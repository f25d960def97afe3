// Command server runs the kaiwa gateway: POST /api/chat behind a global and a
// per-client rate limit, answered by Gemini with a Cloud Translation fallback
// for translations.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/codyseavey/kaiwa/internal/api/handlers"
	"github.com/codyseavey/kaiwa/internal/config"
	"github.com/codyseavey/kaiwa/internal/database"
	"github.com/codyseavey/kaiwa/internal/metrics"
	"github.com/codyseavey/kaiwa/internal/middleware"
	"github.com/codyseavey/kaiwa/internal/ratelimit"
	"github.com/codyseavey/kaiwa/internal/services"
)

const metricsInterval = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	services.SetDebug(cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The cache is optional: without a database translations always hit the backend.
	db, err := database.Open(cfg.Database.Path, cfg.Debug)
	if err != nil {
		log.Printf("Warning: translation cache disabled, database unavailable: %v", err)
		db = nil
	} else if err := database.RunMigrations(db); err != nil {
		log.Printf("Warning: data migrations failed: %v", err)
	}

	limiter := ratelimit.New(ratelimit.Config{
		GlobalLimit: cfg.RateLimit.GlobalLimit,
		ClientLimit: cfg.RateLimit.ClientLimit,
		Window:      cfg.RateLimit.Window,
	})
	go limiter.Run(ctx, cfg.RateLimit.SweepInterval)
	go runMetricsUpdater(ctx, db, limiter)

	gemini, err := services.NewGeminiService(ctx, services.GeminiConfig{
		APIKey:      cfg.Gemini.APIKey,
		Model:       cfg.Gemini.Model,
		BaseURL:     cfg.Gemini.BaseURL,
		Timeout:     cfg.Gemini.Timeout,
		MaxRPS:      cfg.Gemini.MaxRPS,
		Temperature: cfg.Gemini.Temperature,
		MaxTokens:   cfg.Gemini.MaxTokens,
	})
	if err != nil {
		log.Fatalf("failed to create Gemini service: %v", err)
	}

	cache := services.NewTranslationCacheService(db, cfg.Translation.CacheTTL)
	dispatcherCfg := services.DispatcherConfig{
		Limiter:      limiter,
		Conversation: gemini,
		Cache:        cache,
	}
	if cloud := services.NewCloudTranslationService(cfg.Translation.CredentialsPath); cloud.IsEnabled() {
		dispatcherCfg.TranslationFallback = cloud
	}
	dispatcher := services.NewDispatcher(dispatcherCfg)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(metrics.HTTPMetrics("/metrics", "/healthz"))
	router.Use(cors.New(corsConfig(cfg.Server.AllowedOrigins)))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterRoutes(router,
		handlers.NewChatHandler(dispatcher, cfg.Server.MaxBodyBytes),
		handlers.NewAdminHandler(limiter, cache),
		cfg.AdminKey)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		limits := limiter.Config()
		log.Printf("kaiwa gateway listening on %s (model=%s enabled=%t, global=%d/%s, client=%d/%s)",
			srv.Addr, gemini.Model(), gemini.IsEnabled(), limits.GlobalLimit, limits.Window, limits.ClientLimit, limits.Window)
		if err := srv.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Println("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{http.MethodPost, http.MethodGet, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders: []string{"Retry-After", middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c
}

func runMetricsUpdater(ctx context.Context, db *gorm.DB, limiter *ratelimit.Limiter) {
	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	metrics.UpdateGatewayMetrics(db, limiter)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateGatewayMetrics(db, limiter)
		}
	}
}
