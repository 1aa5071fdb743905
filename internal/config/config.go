package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/smallbiznis/nexusguard/pkg/db"
)

// Config holds application configuration.
type Config struct {
	AppName          string
	AppVersion       string
	Environment      string
	HTTPAddr         string
	AuthCookieSecure bool

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RealtimeBroker string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	EIDPrefix      string
	EIDMaxAttempts int
	SnowflakeNode  int64

	JoinRequestRate  float64
	JoinRequestBurst int

	BootstrapEnabled    bool
	BootstrapConfigPath string

	LogLevel  string
	LogFormat string

	OtelEnabled      bool
	OtelEndpoint     string
	OtelProtocol     string
	OtelSamplingRate float64
}

const (
	BrokerMemory   = "memory"
	BrokerRedis    = "redis"
	BrokerPostgres = "postgres"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("DEPLOYMENT_ENV", getenv("ENVIRONMENT", "development"))
	authCookieSecure := environment == "production"
	if !authCookieSecure {
		authCookieSecure = getenvBool("AUTH_COOKIE_SECURE", false)
	}

	return Config{
		AppName:          getenv("APP_SERVICE", "nexusguard"),
		AppVersion:       getenv("SERVICE_VERSION", getenv("APP_VERSION", "0.1.0")),
		Environment:      environment,
		HTTPAddr:         getenv("HTTP_ADDR", ":8080"),
		AuthCookieSecure: authCookieSecure,

		DBType:            getenv("DATABASE_TYPE", db.TypePostgres),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "nexusguard"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),

		RealtimeBroker: normalizeBroker(getenv("REALTIME_BROKER", BrokerMemory)),
		RedisAddr:      strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:  getenv("REDIS_PASSWORD", ""),
		RedisDB:        getenvInt("REDIS_DB", 0),

		EIDPrefix:      strings.ToUpper(strings.TrimSpace(getenv("EID_PREFIX", "NX"))),
		EIDMaxAttempts: getenvInt("EID_MAX_ATTEMPTS", 8),
		SnowflakeNode:  getenvInt64("SNOWFLAKE_NODE", 1),

		JoinRequestRate:  getenvFloat("JOIN_REQUEST_RATE", 0.2),
		JoinRequestBurst: getenvInt("JOIN_REQUEST_BURST", 5),

		BootstrapEnabled:    getenvBool("BOOTSTRAP_ENABLED", true),
		BootstrapConfigPath: strings.TrimSpace(getenv("BOOTSTRAP_CONFIG_PATH", "")),

		LogLevel:  strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
		LogFormat: strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),

		OtelEnabled:      getenvBool("OTEL_ENABLED", false),
		OtelEndpoint:     strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")),
		OtelProtocol:     otlpProtocol(),
		OtelSamplingRate: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
	}
}

// otlpProtocol prefers the traces-specific variable the OTel SDKs document.
func otlpProtocol() string {
	protocol := getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))
	return strings.ToLower(strings.TrimSpace(protocol))
}

// Development reports whether the environment is a local or test one.
func (c Config) Development() bool {
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

// DB returns the connection settings for pkg/db.
func (c Config) DB() db.Config {
	return db.Config{
		Type:            c.DBType,
		Host:            c.DBHost,
		Port:            c.DBPort,
		Name:            c.DBName,
		User:            c.DBUser,
		Password:        c.DBPassword,
		SSLMode:         c.DBSSLMode,
		MaxIdleConn:     c.DBMaxIdleConn,
		MaxOpenConn:     c.DBMaxOpenConn,
		ConnMaxLifetime: c.DBConnMaxLifetime,
		ConnMaxIdleTime: c.DBConnMaxIdleTime,
	}
}

func (c Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

func normalizeBroker(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case BrokerRedis, BrokerPostgres:
		return value
	default:
		return BrokerMemory
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
