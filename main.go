package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"pulse-newsletter-backend/internal/config"
	"pulse-newsletter-backend/internal/handlers"
	"pulse-newsletter-backend/internal/pkg/logger"
	"pulse-newsletter-backend/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info("starting pulse newsletter backend",
		"environment", cfg.Environment,
		"port", cfg.HTTP.Port)

	geminiService, err := services.NewGeminiService(cfg.Gemini, log)
	if err != nil {
		log.WithError(err).Error("failed to initialize Gemini service")
		os.Exit(1)
	}

	eventService, err := services.NewEventService(cfg.Scraper, log)
	if err != nil {
		log.WithError(err).Error("failed to initialize event service")
		os.Exit(1)
	}

	webSearchService := services.NewWebSearchService(log)

	// Redis and Mongo are optional, the pipeline degrades to in-memory
	// context and no archive when they are unreachable.
	redisService, err := services.NewRedisService(cfg.Redis, log)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, running without context persistence")
		redisService = nil
	}

	mongoService, err := services.NewMongoService(cfg.Mongo, log)
	if err != nil {
		log.WithError(err).Warn("MongoDB unavailable, running without newsletter archive")
		mongoService = nil
	}

	guard := services.NewHallucinationGuard()
	matcher := services.NewIntentMatcher()
	toolsService := services.NewToolsService(geminiService, eventService, webSearchService, log)
	dispatcher := services.NewDispatcher(geminiService, eventService, webSearchService, guard, toolsService, cfg.Scraper, log)
	orchestrator := services.NewOrchestrator(matcher, geminiService, dispatcher, guard, redisService, mongoService, log)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		MaxAge:           12 * time.Hour,
		AllowCredentials: false,
	}))

	handler := handlers.NewHandler(orchestrator, toolsService, eventService, mongoService, log)
	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("HTTP server failed")
			os.Exit(1)
		}
	}()

	log.Info("HTTP server listening", "addr", server.Addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown failed")
	}

	if redisService != nil {
		if err := redisService.Close(); err != nil {
			log.WithError(err).Warn("Redis close failed")
		}
	}

	if mongoService != nil {
		if err := mongoService.Close(shutdownCtx); err != nil {
			log.WithError(err).Warn("Mongo close failed")
		}
	}

	if err := geminiService.Close(); err != nil {
		log.WithError(err).Warn("Gemini close failed")
	}

	log.Info("shutdown complete")
}
