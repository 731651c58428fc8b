package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"webchat/internal/chat"
	"webchat/internal/config"
	"webchat/internal/monitor"
	"webchat/internal/presence"
	"webchat/internal/storage"
)

const (
	monitorInterval   = 30 * time.Second
	keepAliveInterval = 14 * time.Minute
	shutdownTimeout   = 5 * time.Second
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Log to both file and console
	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer logFile.Close()
	log.SetOutput(io.MultiWriter(os.Stdout, logFile))

	if os.Getenv("ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	store, err := storage.New(cfg)
	if err != nil {
		log.Fatalf("Failed to open %s storage: %v", cfg.Backend, err)
	}
	defer store.Close()
	log.Printf("Storage backend %q ready", cfg.Backend)

	registry := presence.NewRegistry()
	hub := chat.NewHub()
	handler := chat.NewHandler(store, registry, hub, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go monitor.Run(ctx, registry, monitorInterval)
	if cfg.KeepAliveURL != "" {
		go keepAlive(ctx, cfg.KeepAliveURL)
	}

	router := gin.Default()
	router.StaticFile("/", "./web/index.html")
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/ws", handler.ServeWS)

	server := &http.Server{
		Addr:    cfg.Addr(),
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on %s", cfg.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited properly")
}

// keepAlive pings the given URL periodically so free-tier hosts do not
// idle the process out.
func keepAlive(ctx context.Context, url string) {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			resp, err := http.Get(url)
			if err != nil {
				log.Printf("Keep-alive ping failed: %v", err)
				continue
			}
			resp.Body.Close()
			log.Printf("Keep-alive: %d", resp.StatusCode)
		}
	}
}
