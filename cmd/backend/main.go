package main

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"github.com/whatsapp-campaigns/platform/internal/backend"
	"github.com/whatsapp-campaigns/platform/internal/campaign"
	"github.com/whatsapp-campaigns/platform/internal/config"
	"github.com/whatsapp-campaigns/platform/internal/gatewayclient"
	"github.com/whatsapp-campaigns/platform/internal/storage"
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

	cfg := config.LoadBackend()

	log.Printf("=== Campaign Backend Starting ===")
	log.Printf("Campaign DB: %s", cfg.DatabasePath)
	log.Printf("Gateway URL: %s", cfg.GatewayURL)
	log.Printf("=================================")

	store, err := campaign.NewStore(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open campaign store: %v", err)
	}
	defer store.Close()

	sender := gatewayclient.New(cfg.GatewayURL, cfg.SendTimeout)
	dispatcher := campaign.NewDispatcher(store, sender)

	var uploader backend.UploadSigner
	if cfg.StorageEndpoint != "" {
		up, err := storage.NewUploader(cfg.StorageEndpoint, cfg.StorageAccessKey,
			cfg.StorageSecretKey, cfg.StorageBucket, cfg.StoragePublicURL, cfg.StorageSecure)
		if err != nil {
			log.Fatalf("Failed to configure object storage: %v", err)
		}
		uploader = up
		log.Printf("Object storage configured (bucket %s)", cfg.StorageBucket)
	} else {
		log.Printf("Object storage not configured; attachment uploads disabled")
	}

	server := backend.NewServer(store, dispatcher, uploader)

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

	log.Printf("Backend listening on port %s", cfg.Port)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
