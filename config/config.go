package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	DB        *gorm.DB
	AppConfig Config
	envLoaded bool
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

type SMTPConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"-"`
	FromEmail string `json:"from_email"`
}

// Enabled reports whether enough SMTP settings exist to send mail.
func (s SMTPConfig) Enabled() bool {
	return s.Host != "" && s.FromEmail != ""
}

type ChatConfig struct {
	APIKey  string        `json:"-"`
	BaseURL string        `json:"base_url"`
	Model   string        `json:"model"`
	Timeout time.Duration `json:"timeout"`
}

type Config struct {
	Environment    string   `json:"environment"`
	ServerPort     string   `json:"server_port"`
	FrontendURL    string   `json:"frontend_url"`
	CORSOrigins    []string `json:"cors_origins"`
	DBHost         string   `json:"db_host"`
	DBPort         string   `json:"db_port"`
	DBUser         string   `json:"db_user"`
	DBPassword     string   `json:"-"`
	DBName         string   `json:"db_name"`
	DBSSLMode      string   `json:"db_ssl_mode"`
	DBMaxIdleConns int      `json:"db_max_idle_conns"`
	DBMaxOpenConns int      `json:"db_max_open_conns"`

	DBConnTimeout time.Duration `json:"db_conn_timeout"`

	JWTSecret     string        `json:"-"`
	JWTExpiry     time.Duration `json:"jwt_expiry"`
	ResetTokenTTL time.Duration `json:"reset_token_ttl"`

	SMTP  SMTPConfig  `json:"smtp"`
	Chat  ChatConfig  `json:"chat"`
	Redis RedisConfig `json:"redis"`

	AuthRateLimit int `json:"auth_rate_limit"`
	ChatRateLimit int `json:"chat_rate_limit"`

	UploadDir          string `json:"upload_dir"`
	PublicUploadPrefix string `json:"public_upload_prefix"`
	MaxUploadSizeMB    int    `json:"max_upload_size_mb"`

	SentryDSN string `json:"-"`

	AdminEmail    string `json:"admin_email"`
	AdminPassword string `json:"-"`
	AdminName     string `json:"admin_name"`
}

// IsProduction reports whether the service runs with production settings.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
	envLoaded = true
}

func LoadConfig() error {
	AppConfig = Config{
		Environment:    getEnv("ENVIRONMENT", "development"),
		ServerPort:     getEnv("SERVER_PORT", "5000"),
		FrontendURL:    strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
		CORSOrigins:    getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "volunteer_connect"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		DBConnTimeout:  getEnvAsDuration("DB_CONNECT_TIMEOUT", 5*time.Second),

		JWTSecret:     getEnv("JWT_SECRET", ""),
		JWTExpiry:     getEnvAsDuration("JWT_EXPIRY", 24*time.Hour),
		ResetTokenTTL: getEnvAsDuration("RESET_TOKEN_TTL", time.Hour),

		SMTP: SMTPConfig{
			Host:      getEnv("SMTP_HOST", ""),
			Port:      getEnvAsInt("SMTP_PORT", 587),
			Username:  getEnv("SMTP_USERNAME", ""),
			Password:  getEnv("SMTP_PASSWORD", ""),
			FromEmail: getEnv("FROM_EMAIL", ""),
		},
		Chat: ChatConfig{
			APIKey:  getEnv("CHAT_API_KEY", ""),
			BaseURL: getEnv("CHAT_BASE_URL", "https://api.openai.com/v1"),
			Model:   getEnv("CHAT_MODEL", "gpt-4o-mini"),
			Timeout: getEnvAsDuration("CHAT_TIMEOUT", 60*time.Second),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},

		AuthRateLimit: getEnvAsInt("AUTH_RATE_LIMIT", 20),
		ChatRateLimit: getEnvAsInt("CHAT_RATE_LIMIT", 30),

		UploadDir:          getEnv("UPLOAD_DIR", "./uploads"),
		PublicUploadPrefix: strings.TrimRight(getEnv("PUBLIC_UPLOAD_PREFIX", "/uploads"), "/"),
		MaxUploadSizeMB:    getEnvAsInt("MAX_UPLOAD_SIZE_MB", 5),

		SentryDSN: getEnv("SENTRY_DSN", ""),

		AdminEmail:    getEnv("ADMIN_EMAIL", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		AdminName:     getEnv("ADMIN_NAME", "Administrator"),
	}

	// Validate required configurations
	if AppConfig.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if AppConfig.JWTSecret == "" {
		if AppConfig.IsProduction() {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		AppConfig.JWTSecret = "development-only-secret"
		logrus.Warn("JWT_SECRET not set, using an insecure development secret")
	}
	if AppConfig.DBMaxOpenConns <= 0 {
		return fmt.Errorf("DB_MAX_OPEN_CONNS must be positive")
	}

	logConfig()
	return nil
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if !envLoaded && fallback == "" {
		logrus.Warnf("Environment variable %s not found and no fallback provided", key)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return fallback
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
		return fallback
	}
	return value
}

func getEnvAsList(key string, fallback []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	logrus.WithFields(logrus.Fields{
		"environment": AppConfig.Environment,
		"server_port": AppConfig.ServerPort,
		"database": fmt.Sprintf("%s@%s:%s/%s",
			AppConfig.DBUser, AppConfig.DBHost, AppConfig.DBPort, AppConfig.DBName),
		"smtp_enabled":  AppConfig.SMTP.Enabled(),
		"chat_enabled":  AppConfig.Chat.APIKey != "",
		"redis_enabled": AppConfig.Redis.Enabled,
		"sentry":        AppConfig.SentryDSN != "",
	}).Info("Loaded configuration")
}
