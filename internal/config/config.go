package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string

	Server        ServerConfig
	Redis         RedisConfig
	Scylla        ScyllaConfig
	Kafka         KafkaConfig
	Elasticsearch ElasticsearchConfig
	Clickhouse    ClickhouseConfig
	KMS           KMSConfig
	Auth          AuthConfig
	SMTP          SMTPConfig
	Hashing       HashingConfig
	Logging       LoggingConfig
}

type ServerConfig struct {
	Port         string
	TLSPort      string
	EnableTLS    bool
	AutoCert     bool
	Domain       string
	CertFile     string
	KeyFile      string
	AutoCertDir  string
	Email        string
	CookieDomain string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type KafkaConfig struct {
	Brokers       []string
	SecurityTopic string
}

type ElasticsearchConfig struct {
	URL        string
	Username   string
	Password   string
	AuditIndex string
}

type ClickhouseConfig struct {
	URL      string
	Username string
	Password string
	Database string
}

type KMSConfig struct {
	Enabled             bool
	KeyID               string
	EncryptedSigningKey string
}

type AuthConfig struct {
	SigningSecret     string
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	OTPExpiry         time.Duration
	OTPHourlyLimit    int
	OTPMaxAttempts    int
	PrivilegedRoles   []string
	PublicPrefixes    []string
	AllowedOrigins    []string
	OAuthClientID     string
	OAuthClientSecret string
	OAuthRedirectURL  string
}

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	Workers  int
	QueueLen int
}

type HashingConfig struct {
	ArgonMemory        uint32
	ArgonIterations    uint32
	ArgonParallelism   uint8
	SaltLength         uint32
	KeyLength          uint32
	PepperRotationDays int
}

type LoggingConfig struct {
	Level  string
	Format string
}

var (
	cfg     *Config
	cfgOnce sync.Once
)

// LoadConfig reads configuration from the environment (optionally seeded
// from a .env file) exactly once and caches it for the process lifetime.
func LoadConfig() *Config {
	cfgOnce.Do(func() {
		// Missing .env is fine in containerized deployments
		_ = godotenv.Load()

		cfg = &Config{
			Environment: getEnv("ENVIRONMENT", "development"),
			Server: ServerConfig{
				Port:         getEnv("SERVER_PORT", "8080"),
				TLSPort:      getEnv("SERVER_TLS_PORT", "8443"),
				EnableTLS:    getEnvBool("SERVER_ENABLE_TLS", false),
				AutoCert:     getEnvBool("SERVER_AUTOCERT", false),
				Domain:       getEnv("SERVER_DOMAIN", ""),
				CertFile:     getEnv("SERVER_CERT_FILE", ""),
				KeyFile:      getEnv("SERVER_KEY_FILE", ""),
				AutoCertDir:  getEnv("SERVER_AUTOCERT_DIR", "/var/lib/autocert"),
				Email:        getEnv("SERVER_ACME_EMAIL", ""),
				CookieDomain: getEnv("COOKIE_DOMAIN", ""),
				ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
				WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
				IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			},
			Redis: RedisConfig{
				URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       getEnvInt("REDIS_DB", 0),
				PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
			},
			Scylla: ScyllaConfig{
				Nodes:    splitAndTrim(getEnv("SCYLLA_NODES", "localhost:9042")),
				Keyspace: getEnv("SCYLLA_KEYSPACE", "wafipix"),
				Username: getEnv("SCYLLA_USERNAME", ""),
				Password: getEnv("SCYLLA_PASSWORD", ""),
			},
			Kafka: KafkaConfig{
				Brokers:       splitAndTrim(getEnv("KAFKA_BROKERS", "localhost:9092")),
				SecurityTopic: getEnv("KAFKA_SECURITY_TOPIC", "auth-security-events"),
			},
			Elasticsearch: ElasticsearchConfig{
				URL:        getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
				Username:   getEnv("ELASTICSEARCH_USERNAME", ""),
				Password:   getEnv("ELASTICSEARCH_PASSWORD", ""),
				AuditIndex: getEnv("ELASTICSEARCH_AUDIT_INDEX", "auth-audit"),
			},
			Clickhouse: ClickhouseConfig{
				URL:      getEnv("CLICKHOUSE_URL", "localhost:9000"),
				Username: getEnv("CLICKHOUSE_USERNAME", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
				Database: getEnv("CLICKHOUSE_DATABASE", "auth_analytics"),
			},
			KMS: KMSConfig{
				Enabled:             getEnvBool("KMS_ENABLED", false),
				KeyID:               getEnv("KMS_KEY_ID", ""),
				EncryptedSigningKey: getEnv("KMS_ENCRYPTED_SIGNING_KEY", ""),
			},
			Auth: AuthConfig{
				SigningSecret:  getEnv("AUTH_SIGNING_SECRET", ""),
				AccessTTL:      getEnvDuration("AUTH_ACCESS_TTL", 30*time.Minute),
				RefreshTTL:     getEnvDuration("AUTH_REFRESH_TTL", 168*time.Hour),
				OTPExpiry:      getEnvDuration("AUTH_OTP_EXPIRY", 10*time.Minute),
				OTPHourlyLimit: getEnvInt("AUTH_OTP_HOURLY_LIMIT", 5),
				OTPMaxAttempts: getEnvInt("AUTH_OTP_MAX_ATTEMPTS", 3),
				PrivilegedRoles: splitAndTrim(getEnv("AUTH_PRIVILEGED_ROLES",
					"admin,support,designer")),
				// Only the unauthenticated entry points; /api/v1/auth
				// itself also hosts guarded routes (me, sessions, logout)
				// and must not be swallowed by a broad prefix.
				PublicPrefixes: splitAndTrim(getEnv("AUTH_PUBLIC_PREFIXES",
					"/api/v1/auth/admin/send-otp,/api/v1/auth/admin/verify-otp,/api/v1/auth/refresh-token,/oauth2,/health")),
				AllowedOrigins: splitAndTrim(getEnv("CORS_ALLOWED_ORIGINS",
					"http://localhost:3000")),
				OAuthClientID:     getEnv("GOOGLE_OAUTH_CLIENT_ID", ""),
				OAuthClientSecret: getEnv("GOOGLE_OAUTH_CLIENT_SECRET", ""),
				OAuthRedirectURL:  getEnv("GOOGLE_OAUTH_REDIRECT_URL", ""),
			},
			SMTP: SMTPConfig{
				Host:     getEnv("SMTP_HOST", "localhost"),
				Port:     getEnv("SMTP_PORT", "587"),
				Username: getEnv("SMTP_USERNAME", ""),
				Password: getEnv("SMTP_PASSWORD", ""),
				From:     getEnv("SMTP_FROM", "no-reply@wafipix.com"),
				Workers:  getEnvInt("SMTP_WORKERS", 4),
				QueueLen: getEnvInt("SMTP_QUEUE_LEN", 256),
			},
			Hashing: HashingConfig{
				ArgonMemory:      uint32(getEnvInt("ARGON_MEMORY_KB", 64*1024)),
				ArgonIterations:  uint32(getEnvInt("ARGON_ITERATIONS", 3)),
				ArgonParallelism: uint8(getEnvInt("ARGON_PARALLELISM", 2)),
				SaltLength:       uint32(getEnvInt("ARGON_SALT_LENGTH", 16)),
				KeyLength:        uint32(getEnvInt("ARGON_KEY_LENGTH", 32)),
				PepperRotationDays: getEnvInt("PEPPER_ROTATION_DAYS", 90),
			},
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		}
	})
	return cfg
}

// Get returns the cached configuration, loading it on first use.
func Get() *Config {
	return LoadConfig()
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%s", c.Server.Port)
}

func (c *Config) GetTLSAddress() string {
	return fmt.Sprintf(":%s", c.Server.TLSPort)
}

// Validate checks settings that have no sane fallback.
func (c *Config) Validate() error {
	if c.Auth.SigningSecret == "" && !c.KMS.Enabled {
		return fmt.Errorf("AUTH_SIGNING_SECRET is required when KMS is disabled")
	}
	if c.KMS.Enabled && (c.KMS.KeyID == "" || c.KMS.EncryptedSigningKey == "") {
		return fmt.Errorf("KMS_KEY_ID and KMS_ENCRYPTED_SIGNING_KEY are required when KMS is enabled")
	}
	if c.Server.EnableTLS && !c.Server.AutoCert && c.IsProduction() {
		if c.Server.CertFile == "" || c.Server.KeyFile == "" {
			return fmt.Errorf("TLS cert and key files are required in production without autocert")
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
