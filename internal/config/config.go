package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the shared parent-account credentials and process settings.
// It is built once at startup and never mutated afterwards; changing a
// credential requires a restart so no request observes a half-updated value.
type Config struct {
	Port                      string
	VerifyToken               string
	AppSecret                 string
	WhatsAppToken             string
	WhatsAppBusinessAccountID string
	APIVersion                string

	DBDriver   string // "sqlite" or "postgres"
	DBPath     string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	RedisAddr string

	QuotaWarnPercent int
	LogLevel         string
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: Error loading .env file")
	}

	return &Config{
		Port:                      getEnv("PORT", "8080"),
		VerifyToken:               getEnv("VERIFY_TOKEN", ""),
		AppSecret:                 getEnv("APP_SECRET", ""),
		WhatsAppToken:             getEnv("WHATSAPP_TOKEN", ""),
		WhatsAppBusinessAccountID: getEnv("WABA_ID", ""),
		APIVersion:                getEnv("API_VERSION", "v19.0"),
		DBDriver:                  getEnv("DB_DRIVER", "sqlite"),
		DBPath:                    getEnv("DB_PATH", "./whatsapp-hub.db"),
		DBHost:                    getEnv("DB_HOST", "localhost"),
		DBPort:                    getEnv("DB_PORT", "5432"),
		DBUser:                    getEnv("DB_USER", "postgres"),
		DBPassword:                getEnv("DB_PASSWORD", ""),
		DBName:                    getEnv("DB_NAME", "whatsapp_hub"),
		DBSSLMode:                 getEnv("DB_SSLMODE", "disable"),
		RedisAddr:                 getEnv("REDIS_ADDR", ""),
		QuotaWarnPercent:          getEnvInt("QUOTA_WARN_PERCENT", 80),
		LogLevel:                  getEnv("LOG_LEVEL", "info"),
	}
}

// IsEnabled reports whether the upstream provider can be called at all.
// Both the parent account id and the system token must be present; all
// components short-circuit when this is false instead of attempting
// partial work against the Graph API.
func (c *Config) IsEnabled() bool {
	return c.WhatsAppBusinessAccountID != "" && c.WhatsAppToken != ""
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
