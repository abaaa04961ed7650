package config

import (
	"os"
	"strconv"
	"time"
)

// Gateway holds configuration for the gateway process.
type Gateway struct {
	Port        string
	Instance    string
	SessionPath string // SQLite file backing the whatsmeow credential store
	ProxyURL    string // optional socks5/http proxy for the upstream connection
	DeviceName  string // OS name advertised to the network on pairing
	SendTimeout time.Duration
}

// Backend holds configuration for the backend process.
type Backend struct {
	Port         string
	DatabasePath string // SQLite file backing the campaign store
	GatewayURL   string // base URL of the gateway for this instance
	SendTimeout  time.Duration

	// S3-compatible object storage for campaign attachments.
	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	StorageBucket    string
	StoragePublicURL string
	StorageSecure    bool
}

// LoadGateway reads gateway configuration from the environment.
func LoadGateway() Gateway {
	return Gateway{
		Port:        getEnv("GATEWAY_PORT", "3000"),
		Instance:    getEnv("INSTANCE_NAME", "default"),
		SessionPath: getEnv("SESSION_DB_PATH", "./data/session.db"),
		ProxyURL:    os.Getenv("PROXY_URL"),
		DeviceName:  getEnv("DEVICE_NAME", "Chrome (Linux)"),
		SendTimeout: getDurationEnv("SEND_TIMEOUT_SECONDS", 90) * time.Second,
	}
}

// LoadBackend reads backend configuration from the environment.
func LoadBackend() Backend {
	return Backend{
		Port:         getEnv("BACKEND_PORT", "8000"),
		DatabasePath: getEnv("CAMPAIGN_DB_PATH", "./data/campaigns.db"),
		GatewayURL:   getEnv("GATEWAY_URL", "http://localhost:3000"),
		SendTimeout:  getDurationEnv("SEND_TIMEOUT_SECONDS", 90) * time.Second,

		StorageEndpoint:  os.Getenv("STORAGE_ENDPOINT"),
		StorageAccessKey: os.Getenv("STORAGE_ACCESS_KEY"),
		StorageSecretKey: os.Getenv("STORAGE_SECRET_KEY"),
		StorageBucket:    getEnv("STORAGE_BUCKET", "campanhas"),
		StoragePublicURL: os.Getenv("STORAGE_PUBLIC_URL"),
		StorageSecure:    getBoolEnv("STORAGE_SECURE", true),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getDurationEnv(key string, def int) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return time.Duration(def)
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return time.Duration(def)
	}
	return time.Duration(n)
}
