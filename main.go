package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"chatrelay/anthropic"
	"chatrelay/api"
	"chatrelay/config"
	"chatrelay/session"
	"chatrelay/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log.Printf("Starting chat relay...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Session TTL: %s", cfg.SessionTTL)
	log.Printf("Model: %s", cfg.Model)

	ctx := context.Background()

	// Bind the storage backend once for the process lifetime.
	st := store.Select(ctx, cfg)
	defer st.Close()

	// Initialize session manager and upstream client
	sessions := session.NewManager(st, cfg.SessionTTL)
	llmClient := anthropic.NewClient(cfg.AnthropicBaseURL, cfg.AnthropicAPIKey, cfg.LLMTimeout, cfg.RetryBaseDelay)

	// Initialize handler
	h := api.NewHandler(st, sessions, llmClient, cfg)

	// Create Echo server
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Register routes
	h.RegisterRoutes(e)

	// Periodic sweep of expired sessions
	cleanupDone := make(chan struct{})
	cleanupTicker := time.NewTicker(cfg.CleanupInterval)
	go func() {
		for {
			select {
			case <-cleanupTicker.C:
				if n := sessions.CleanupExpired(ctx); n > 0 {
					log.Printf("Cleaned up %d expired sessions", n)
				}
			case <-cleanupDone:
				return
			}
		}
	}()

	// Start server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Chat relay started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down chat relay...")
	cleanupTicker.Stop()
	close(cleanupDone)

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("Chat relay stopped")
}
