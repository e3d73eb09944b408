package config

import (
	"fmt"
	"os"
	"strconv"

	"harbor/pkg/crypto"
)

type Config struct {
	ManifestPath      string
	EncryptionKey     *crypto.Key
	HandshakeTimeout  int
	SecretWorkers     int
	ShutdownGraceSecs int
	Debug             bool
}

func Load() (*Config, error) {
	cfg := &Config{
		ManifestPath:      getEnvOrDefault("HARBOR_MANIFEST", "harbor.json"),
		HandshakeTimeout:  getEnvIntOrDefault("HARBOR_HANDSHAKE_TIMEOUT", 30),
		SecretWorkers:     getEnvIntOrDefault("HARBOR_SECRET_WORKERS", 5),
		ShutdownGraceSecs: getEnvIntOrDefault("HARBOR_SHUTDOWN_GRACE", 15),
		Debug:             getEnvBoolOrDefault("HARBOR_DEBUG", false),
	}

	// The key is optional: without one the secret store generates an
	// ephemeral key and retained credentials do not survive a restart.
	if raw := os.Getenv("HARBOR_ENCRYPTION_KEY"); raw != "" {
		key, err := crypto.ParseKey(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid HARBOR_ENCRYPTION_KEY: %w", err)
		}
		cfg.EncryptionKey = key
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
