package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-recovery-api/internal/pkg/otp"
)

// Code store backends selectable via CODE_STORE.
const (
	CodeStoreDynamo = "dynamo"
	CodeStoreRedis  = "redis"
	CodeStoreMemory = "memory"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort        string
	AppEnv         string
	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	CodeStore     string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	// Verification code life cycle.
	CodeLength         int
	CodeValidity       time.Duration
	MaxConfirmAttempts int
	StoreTimeout       time.Duration

	// Confirmation token handed back by a successful confirm.
	ConfirmTokenSecret string
	ConfirmTokenTTL    time.Duration

	PasswordHistory int

	// Notification dispatch.
	NotifyWorkers   int
	NotifyQueueSize int
	NotifyTimeout   time.Duration
	TemplateBucket  string

	SMTPHost     string
	SMTPPort     int
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string
	SNSRegion    string

	AllowedOrigins []string // CORS allowed origins
	RateLimitRPS   float64
	RateLimitBurst int
	// TrustProxyHeaders keys rate limits on X-Forwarded-For / X-Real-Ip.
	// Enable only behind a proxy that sets them.
	TrustProxyHeaders bool
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Accounts          string
	VerificationCodes string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:        getEnv("APP_PORT", "3000"),
		AppEnv:         getEnv("APP_ENV", "development"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Accounts:          getEnv("DYNAMO_TABLE_ACCOUNTS", "accounts"),
			VerificationCodes: getEnv("DYNAMO_TABLE_VERIFICATION_CODES", "verification_codes"),
		},
		CodeStore:          strings.ToLower(getEnv("CODE_STORE", CodeStoreDynamo)),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		RedisPrefix:        getEnv("REDIS_PREFIX", "recovery:"),
		CodeLength:         getEnvInt("CODE_LENGTH", 6),
		CodeValidity:       getEnvDuration("CODE_VALIDITY", 5*time.Minute),
		MaxConfirmAttempts: getEnvInt("MAX_CONFIRM_ATTEMPTS", 5),
		StoreTimeout:       getEnvDuration("STORE_TIMEOUT", 3*time.Second),
		ConfirmTokenSecret: getEnv("CONFIRM_TOKEN_SECRET", ""),
		ConfirmTokenTTL:    getEnvDuration("CONFIRM_TOKEN_TTL", 10*time.Minute),
		PasswordHistory:    getEnvInt("PASSWORD_HISTORY", 5),
		NotifyWorkers:      getEnvInt("NOTIFY_WORKERS", 4),
		NotifyQueueSize:    getEnvInt("NOTIFY_QUEUE_SIZE", 256),
		NotifyTimeout:      getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second),
		TemplateBucket:     getEnv("EMAIL_TEMPLATE_BUCKET", ""),
		SMTPHost:           getEnv("SMTP_HOST", "localhost"),
		SMTPPort:           getEnvInt("SMTP_PORT", 1025),
		SMTPFrom:           getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPUsername:       getEnv("SMTP_USERNAME", ""),
		SMTPPassword:       getEnv("SMTP_PASSWORD", ""),
		SNSRegion:          getEnv("SNS_REGION", "us-east-1"),
		AllowedOrigins:     strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		RateLimitRPS:       getEnvFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 10),
		TrustProxyHeaders:  getEnvBool("TRUST_PROXY_HEADERS", false),
	}
}

// Validate rejects settings that would only fail later, on every request.
func (c *Config) Validate() error {
	if c.CodeLength < otp.MinLength || c.CodeLength > otp.MaxLength {
		return fmt.Errorf("CODE_LENGTH %d outside [%d, %d]", c.CodeLength, otp.MinLength, otp.MaxLength)
	}
	if c.CodeValidity <= 0 {
		return fmt.Errorf("CODE_VALIDITY must be positive, got %s", c.CodeValidity)
	}
	switch c.CodeStore {
	case CodeStoreDynamo, CodeStoreRedis, CodeStoreMemory:
	default:
		return fmt.Errorf("unknown CODE_STORE %q", c.CodeStore)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("90s", "5m") or bare seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
