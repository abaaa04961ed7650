package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"github.com/whatsapp-campaigns/platform/internal/config"
	"github.com/whatsapp-campaigns/platform/internal/gateway"
	"github.com/whatsapp-campaigns/platform/internal/whatsapp"
)

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("[%s] %s %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

func main() {
	// Load .env file if present (for local development)
	_ = godotenv.Load()

	cfg := config.LoadGateway()

	log.Printf("=== WhatsApp Gateway Starting ===")
	log.Printf("Instance:    %s", cfg.Instance)
	log.Printf("Session DB:  %s", cfg.SessionPath)
	log.Printf("Device Name: %s", cfg.DeviceName)
	if cfg.ProxyURL != "" {
		log.Printf("Proxy:       configured")
	}
	log.Printf("=================================")

	session := whatsapp.NewSessionManager(cfg.SessionPath, cfg.ProxyURL, cfg.DeviceName)
	if err := session.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}
	defer session.Close()

	sender := whatsapp.NewSender(session)
	server := gateway.NewServer(cfg.Instance, session, sender, cfg.SendTimeout)

	router := mux.NewRouter()
	router.Use(loggingMiddleware)
	server.RegisterRoutes(router)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("Gateway %s listening on port %s", cfg.Instance, cfg.Port)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
