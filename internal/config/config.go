package config

import (
	"os"
)

type Config struct {
	Port        string
	Environment string
	DatabaseURL string
	CORSOrigins string
	TablePrefix string
	// EncryptionSecret protects stored API keys (AES-256-GCM).
	EncryptionSecret string
	// DefaultBaseURL is the completion endpoint used when a request
	// carries no base URL of its own.
	DefaultBaseURL string
	// ModelsFile optionally points at a YAML model-catalog seed file.
	ModelsFile string
	// SeedAdminPassword, when set, creates an "admin" account at
	// startup if no users exist yet.
	SeedAdminPassword string
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")

	return &Config{
		Port:              getEnv("PORT", "8080"),
		Environment:       env,
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		CORSOrigins:       getEnv("CORS_ORIGINS", "http://localhost:3000"),
		TablePrefix:       getTablePrefix(env),
		EncryptionSecret:  resolveEncryptionSecret(),
		DefaultBaseURL:    getEnv("DEFAULT_BASE_URL", ""),
		ModelsFile:        getEnv("MODELS_FILE", ""),
		SeedAdminPassword: getEnv("SEED_ADMIN_PASSWORD", ""),
	}
}

// resolveEncryptionSecret picks the first configured secret. The
// development fallback keeps local setups working; deployments should
// set APP_ENCRYPTION_KEY.
func resolveEncryptionSecret() string {
	for _, key := range []string{"APP_ENCRYPTION_KEY", "AUTH_SECRET"} {
		if secret := os.Getenv(key); len(secret) >= 8 {
			return secret
		}
	}
	return "development-secret"
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	// Allow manual override via TABLE_PREFIX env var
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
