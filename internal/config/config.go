package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds everything the server, worker, and seeder read from the
// environment. Load .env via godotenv in main before calling Load.
type Config struct {
	AppEnv  string
	AppAddr string

	DatabaseURL string

	RedisAddr string
	RedisDB   int

	AMQPUrl string

	// Policy evaluator recency window: at most PolicyWindowLimit sends of the
	// same dedupe key per PolicyWindow.
	PolicyWindow      time.Duration
	PolicyWindowLimit int

	EmailProvider string // smtp | mock
	SMSProvider   string // gateway | mock

	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	FromName string
	FromAddr string

	SMSGatewayURL string
	SMSGatewayKey string
	SMSFromNumber string
}

func Load() Config {
	c := Config{}

	c.AppEnv = getEnv("APP_ENV", "development")
	c.AppAddr = getEnv("APP_ADDR", ":8080")

	c.DatabaseURL = getEnv("DATABASE_URL", buildDSNFromParts())

	c.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	c.RedisDB = getInt("REDIS_DB", 0)

	c.AMQPUrl = getEnv("AMQP_URL", "")

	c.PolicyWindow = getDuration("POLICY_WINDOW", 24*time.Hour)
	c.PolicyWindowLimit = getInt("POLICY_WINDOW_LIMIT", 1)

	c.EmailProvider = getEnv("EMAIL_PROVIDER", "smtp")
	c.SMSProvider = getEnv("SMS_PROVIDER", "gateway")

	c.SMTPHost = getEnv("SMTP_HOST", "localhost")
	c.SMTPPort = getInt("SMTP_PORT", 1025)
	c.SMTPUser = getEnv("SMTP_USERNAME", "")
	c.SMTPPass = getEnv("SMTP_PASSWORD", "")
	c.FromName = getEnv("FROM_NAME", "Courier")
	c.FromAddr = getEnv("FROM_ADDR", "no-reply@local.dev")

	c.SMSGatewayURL = getEnv("SMS_GATEWAY_URL", "http://localhost:4010/messages")
	c.SMSGatewayKey = getEnv("SMS_GATEWAY_KEY", "")
	c.SMSFromNumber = getEnv("SMS_FROM_NUMBER", "")

	return c
}

// buildDSNFromParts keeps the DB_* variables working for deployments that set
// them individually instead of DATABASE_URL.
func buildDSNFromParts() string {
	user := getEnv("DB_USER", "courier")
	pass := getEnv("DB_PASSWORD", "courier")
	host := getEnv("DB_HOST", "localhost")
	port := getEnv("DB_PORT", "5432")
	name := getEnv("DB_NAME", "courier")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, pass, host, port, name)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
