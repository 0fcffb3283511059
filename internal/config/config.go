package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

var validate = validator.New()

// AppConfig holds the full configuration surface of the ETL process.
// Required values are validated per run, not at process start: a missing
// value fails that run only, never the process.
type AppConfig struct {
	// OpenWeatherMap credential.
	APIKey string `validate:"required"`

	// Sink database connection.
	DBHost     string `validate:"required"`
	DBPort     int    `validate:"required"`
	DBUser     string `validate:"required"`
	DBPassword string `validate:"required"`
	DBName     string `validate:"required"`

	// Cities fetched each run, in order.
	Cities []string `validate:"min=1"`

	// RunInterval is the period between scheduled runs.
	RunInterval time.Duration `validate:"gt=0"`

	// Table is the sink table name.
	Table string

	// Strategy names the load strategy for scheduled runs; the sink rejects
	// unknown values before touching the database.
	Strategy string

	// HTTPTimeout bounds each outbound weather API call.
	HTTPTimeout time.Duration

	// LogDir receives one timestamped log file per process start.
	LogDir string

	// Port for the ops HTTP surface.
	Port string

	// Run-history retention.
	RunHistoryMax    int
	RunHistoryMaxAge time.Duration
}

// envNames maps struct fields to the environment variables that set them,
// so validation failures name the variable the operator has to fix.
var envNames = map[string]string{
	"APIKey":      "API_KEY",
	"DBHost":      "DB_SERVER_HOST",
	"DBPort":      "DB_PORT",
	"DBUser":      "DB_USERNAME",
	"DBPassword":  "DB_PASSWORD",
	"DBName":      "DB_DATABASE",
	"Cities":      "WEATHER_CITIES",
	"RunInterval": "RUN_MINUTES",
}

// MissingError aggregates every missing or invalid required value into one
// failure, so a single run log names them all at once.
type MissingError struct {
	Fields []string
}

func (e *MissingError) Error() string {
	return "missing required configuration: " + strings.Join(e.Fields, ", ")
}

// Load reads configuration from environment variables (optionally .env)
// with defaults. Only syntactically invalid values fail here; completeness
// is checked by Validate at the start of each run.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	cfg := &AppConfig{}

	cfg.APIKey = os.Getenv("API_KEY")
	cfg.DBHost = os.Getenv("DB_SERVER_HOST")
	cfg.DBUser = os.Getenv("DB_USERNAME")
	cfg.DBPassword = os.Getenv("DB_PASSWORD")
	cfg.DBName = os.Getenv("DB_DATABASE")

	if v := strings.TrimSpace(os.Getenv("DB_PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT: %w", err)
		}
		cfg.DBPort = port
	}

	cfg.Cities = splitCities(getenvDefault("WEATHER_CITIES", "Seoul,Busan"))

	minutes := getenvInt("RUN_MINUTES", 60)
	cfg.RunInterval = time.Duration(minutes) * time.Minute

	cfg.Table = getenvDefault("WEATHER_TABLE", "daily_weather")
	cfg.Strategy = getenvDefault("LOAD_STRATEGY", "upsert")

	timeoutStr := getenvDefault("HTTP_TIMEOUT", "30s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}
	cfg.HTTPTimeout = timeout

	cfg.LogDir = getenvDefault("LOG_DIR", "./logs")
	cfg.Port = getenvDefault("PORT", "8080")

	cfg.RunHistoryMax = getenvInt("RUN_HISTORY_MAX", 50)

	maxAgeStr := getenvDefault("RUN_HISTORY_MAX_AGE", "24h")
	maxAge, err := time.ParseDuration(maxAgeStr)
	if err != nil {
		return nil, fmt.Errorf("invalid RUN_HISTORY_MAX_AGE: %w", err)
	}
	cfg.RunHistoryMaxAge = maxAge

	return cfg, nil
}

// Validate checks all required values and reports every missing one at
// once as a MissingError.
func (c *AppConfig) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := fe.Field()
		if env, ok := envNames[name]; ok {
			name = env
		}
		fields = append(fields, name)
	}
	return &MissingError{Fields: fields}
}

func splitCities(s string) []string {
	parts := strings.Split(s, ",")
	cities := make([]string, 0, len(parts))
	for _, p := range parts {
		if city := strings.TrimSpace(p); city != "" {
			cities = append(cities, city)
		}
	}
	return cities
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}
