package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	DataDir        string
	MergedFilename string
	DeleteConsumed bool
	SectionsFile   string
	SourcesFile    string
	CSVOutputPath  string

	PostgresEnabled  bool
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	HTTPAddr    string
	StaticDir   string
	CORSOrigins []string

	MaxConcurrency int
	RateLimitMs    int
	MaxRetries     int
	ChromeBin      string

	AppName          string
	LogLevel         string
	FluentBitEnabled bool
	FluentBitHost    string
	FluentBitPort    int
	FluentBitLevel   string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	cfg := &Config{
		DataDir:        getEnv("DATA_DIR", "./data"),
		MergedFilename: getEnv("MERGED_FILENAME", "MERGED_LISTINGS.json"),
		DeleteConsumed: getEnvBool("DELETE_CONSUMED", true),
		SectionsFile:   getEnv("SECTIONS_FILE", "./config/sections.yaml"),
		SourcesFile:    getEnv("SOURCES_FILE", "./config/sources.yaml"),
		CSVOutputPath:  getEnv("CSV_OUTPUT_PATH", ""),

		PostgresEnabled:  getEnvBool("POSTGRES_ENABLED", false),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "flats"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "flats123"),
		PostgresDB:       getEnv("POSTGRES_DB", "flats_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		StaticDir:   getEnv("STATIC_DIR", "./static"),
		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"*"}),

		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 3),
		RateLimitMs:    getEnvInt("RATE_LIMIT_MS", 1000),
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		ChromeBin:      getEnv("CHROME_BIN", ""),

		AppName:          getEnv("APP_NAME", "flat-aggregator"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		FluentBitEnabled: getEnvBool("FLUENTBIT_ENABLED", false),
		FluentBitHost:    getEnv("FLUENTBIT_HOST", ""),
		FluentBitPort:    getEnvInt("FLUENTBIT_PORT", 24224),
		FluentBitLevel:   getEnv("FLUENTBIT_LOG_LEVEL", "info"),
	}

	if cfg.FluentBitEnabled && cfg.FluentBitHost == "" {
		log.Println("[config] FLUENTBIT_ENABLED is true but FLUENTBIT_HOST is empty, disabling Fluent Bit")
		cfg.FluentBitEnabled = false
	}
	return cfg
}

// MergedPath returns the location of the canonical dataset.
func (c *Config) MergedPath() string {
	return filepath.Join(c.DataDir, c.MergedFilename)
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
		log.Printf("[config] %s=%q is not an int, using %d", key, val, fallback)
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
		log.Printf("[config] %s=%q is not a bool, using %t", key, val, fallback)
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
