package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Zoho Desk backend
	ZohoClientID     string
	ZohoClientSecret string
	ZohoRefreshToken string
	ZohoOrgID        string
	ZohoDepartmentID string
	ZohoBaseURL      string
	ZohoAccountsURL  string

	// Twilio SMS provider
	TwilioAccountSID    string
	TwilioAuthToken     string
	TwilioFromNumber    string
	TwilioWebhookSecret string

	// SearchWindow caps how many recently modified tickets correlation
	// scans; matches older than the window are not found.
	SearchWindow int

	// HTTPTimeout bounds every outbound backend call.
	HTTPTimeout time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		ZohoClientID:     getEnv("ZOHO_CLIENT_ID", ""),
		ZohoClientSecret: getEnv("ZOHO_CLIENT_SECRET", ""),
		ZohoRefreshToken: getEnv("ZOHO_REFRESH_TOKEN", ""),
		ZohoOrgID:        getEnv("ZOHO_ORG_ID", ""),
		ZohoDepartmentID: getEnv("ZOHO_DEPARTMENT_ID", ""),
		ZohoBaseURL:      getEnv("ZOHO_BASE_URL", "https://desk.zoho.com"),
		ZohoAccountsURL:  getEnv("ZOHO_ACCOUNTS_URL", "https://accounts.zoho.com"),

		TwilioAccountSID:    getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:     getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber:    getEnv("TWILIO_FROM_NUMBER", ""),
		TwilioWebhookSecret: getEnv("TWILIO_WEBHOOK_SECRET", ""),

		SearchWindow: getEnvAsInt("SEARCH_WINDOW", 50),
		HTTPTimeout:  getEnvAsDuration("HTTP_TIMEOUT", 30*time.Second),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
