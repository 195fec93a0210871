// backend/src/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application.
// The values are loaded from environment variables.
type AppConfig struct {
	// Core settings
	Port           string
	DatabasePath   string
	MigrationsPath string
	LogLevel       string

	// Security settings
	JWTSecret         string
	AccessTokenExpiry time.Duration

	// Extraction settings
	OpenAIAPIKey    string
	OpenAIModel     string
	OpenAITimeout   time.Duration
	MaxDocumentSize int64

	// Reconciliation settings
	LocalCurrency string
}

// Cfg is a global instance of the AppConfig.
var Cfg *AppConfig

// LoadConfig loads configuration from environment variables or a .env file.
// It centralizes all configuration logic for the application.
func LoadConfig() {
	// Try the current directory first, then the parent (common when the
	// server runs from /backend).
	errEnv := godotenv.Load()
	if errEnv != nil {
		errEnv = godotenv.Load("../.env")
	}
	if errEnv != nil {
		if os.IsNotExist(errEnv) {
			log.Println("Info: No .env file found. Relying on OS environment variables (expected in production).")
		} else {
			log.Printf("Warning: Error loading .env file: %v. Relying on OS environment variables.", errEnv)
		}
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	jwtSecret := getRequiredEnv("JWT_SECRET")

	maxDocumentSizeStr := getEnv("MAX_DOCUMENT_SIZE_BYTES", "1048576") // 1MB default
	maxDocumentSize, err := strconv.ParseInt(maxDocumentSizeStr, 10, 64)
	if err != nil {
		log.Printf("WARNING: Invalid MAX_DOCUMENT_SIZE_BYTES format '%s'. Using default 1MB. Error: %v", maxDocumentSizeStr, err)
		maxDocumentSize = 1 << 20
	}

	Cfg = &AppConfig{
		// Core
		Port:         getEnv("PORT", "8080"),
		DatabasePath: getEnv("DATABASE_PATH", "./reconciliation.db"),
		// Empty means ./db/migrations relative to the working directory.
		// Container images set this to their baked-in location.
		MigrationsPath: getEnv("MIGRATIONS_PATH", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),

		// Security
		JWTSecret:         jwtSecret,
		AccessTokenExpiry: getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 60*time.Minute),

		// Extraction
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAITimeout:   getEnvAsDuration("OPENAI_TIMEOUT", 90*time.Second),
		MaxDocumentSize: maxDocumentSize,

		// Reconciliation
		LocalCurrency: getEnv("LOCAL_CURRENCY", "KRW"),
	}

	log.Println("Application configuration loaded.")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getRequiredEnv(key string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		log.Fatalf("FATAL: Required environment variable %s is not set.", key)
	}
	return value
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("WARNING: Invalid duration for %s: '%s'. Using default %v. Error: %v", key, valueStr, fallback, err)
		return fallback
	}
	return value
}
