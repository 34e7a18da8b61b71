package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables. Secrets and endpoints stay out of the config
// file.
const (
	EnvHTTPRPCURL      = "HTTP_RPC_URL"
	EnvWSRPCURL        = "WS_RPC_URL"
	EnvPrivateKey      = "PRIVATE_KEY"
	EnvSlackWebhookURL = "SLACK_WEBHOOK_URL"
	EnvSMTPHost        = "SMTP_HOST"
	EnvSMTPPort        = "SMTP_PORT"
	EnvSMTPUsername    = "SMTP_USERNAME"
	EnvSMTPPassword    = "SMTP_PASSWORD"
	EnvEmailTo         = "EMAIL_TO"
)

// LoadEnv loads environment variables from a .env file when present.
// A missing file is fine; the variables may come from the process
// environment instead.
func LoadEnv() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// GetEnvWithDefault gets an environment variable with a default value.
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetRequiredEnv gets an environment variable that must be set.
func GetRequiredEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("required environment variable %s not set", key)
	}
	return value, nil
}
