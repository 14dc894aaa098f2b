package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds application configuration
type Config struct {
	Port     string
	DBConn   string
	Store    string
	LogLevel string

	JWTSecret     string
	JWTExpiration time.Duration
	EncryptionKey []byte
	BcryptCost    int

	AdminUsername string
	AdminPassword string

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SenderEmail  string
	OpsEmail     string

	ExpiryCron      string
	ExpiryAutoBlock bool
}

// NewConfig loads configuration from environment variables
func NewConfig() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		DBConn:        getEnv("DB_CONN", "host=localhost port=5436 user=test password=test dbname=bank sslmode=disable"),
		Store:         getEnv("STORE", StorePostgres),
		LogLevel:      getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:     getEnv("JWT_SECRET", ""),
		AdminUsername: getEnv("ADMIN_USERNAME", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		SMTPHost:      getEnv("SMTP_HOST", ""),
		SMTPPort:      getEnv("SMTP_PORT", "587"),
		SMTPUsername:  getEnv("SMTP_USERNAME", ""),
		SMTPPassword:  getEnv("SMTP_PASSWORD", ""),
		SenderEmail:   getEnv("SENDER_EMAIL", "noreply@bank.local"),
		OpsEmail:      getEnv("OPS_EMAIL", ""),
		ExpiryCron:    getEnv("CARD_EXPIRY_CRON", "@daily"),
	}

	if cfg.Store != StorePostgres && cfg.Store != StoreMemory {
		return nil, fmt.Errorf("STORE must be %q or %q, got %q", StorePostgres, StoreMemory, cfg.Store)
	}
	if cfg.Store == StorePostgres && cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	exp, err := time.ParseDuration(getEnv("JWT_EXPIRATION", "1h"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRATION: %w", err)
	}
	if exp <= 0 {
		return nil, fmt.Errorf("JWT_EXPIRATION must be positive")
	}
	cfg.JWTExpiration = exp

	key, err := hex.DecodeString(getEnv("CARD_ENCRYPTION_KEY", ""))
	if err != nil {
		return nil, fmt.Errorf("CARD_ENCRYPTION_KEY must be hex: %w", err)
	}
	if len(key) != 16 && len(key) != 24 && len(key) != 32 {
		return nil, fmt.Errorf("CARD_ENCRYPTION_KEY must decode to 16, 24, or 32 bytes, got %d", len(key))
	}
	cfg.EncryptionKey = key

	if cfg.BcryptCost, err = strconv.Atoi(getEnv("BCRYPT_COST", "10")); err != nil {
		return nil, fmt.Errorf("invalid BCRYPT_COST: %w", err)
	}
	if cfg.ExpiryAutoBlock, err = strconv.ParseBool(getEnv("CARD_EXPIRY_AUTOBLOCK", "false")); err != nil {
		return nil, fmt.Errorf("invalid CARD_EXPIRY_AUTOBLOCK: %w", err)
	}
	if (cfg.AdminUsername == "") != (cfg.AdminPassword == "") {
		return nil, fmt.Errorf("ADMIN_USERNAME and ADMIN_PASSWORD must be set together")
	}

	return cfg, nil
}

// MailEnabled reports whether SMTP notifications are configured.
func (c *Config) MailEnabled() bool {
	return c.SMTPHost != "" && c.OpsEmail != ""
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}
