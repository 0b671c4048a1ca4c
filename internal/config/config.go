// Package config loads service configuration from environment variables.
//
// cmd/server loads an optional .env file first, so every variable below
// can also be set there. Load never reads files itself, which keeps it
// trivial to drive from tests with t.Setenv.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database drivers.
const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Photo store backends.
const (
	PhotoDisk  = "disk"
	PhotoMinio = "minio"
)

const minSecretLen = 16

// Config holds all service configuration.
type Config struct {
	Port int

	DBDriver string
	DBPath   string
	MongoURI string
	MongoDB  string

	JWTSecret string
	TokenTTL  time.Duration

	PhotoStore     string
	UploadDir      string
	MaxUploadBytes int64
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	RedisAddr      string
	RedisPassword  string
	AuthRateLimit  int
	AuthRateWindow time.Duration

	CORSOrigins []string
	LogLevel    string
}

// Load reads the environment. Missing variables take their defaults; a
// malformed value or a missing required one is an error.
func Load() (Config, error) {
	var errs []error
	p := parser{errs: &errs}

	cfg := Config{
		Port:           p.intVar("PORT", 8080),
		DBDriver:       getenv("DB_DRIVER", DriverSQLite),
		DBPath:         getenv("DB_PATH", "data/blog.db"),
		MongoURI:       getenv("MONGO_URI", ""),
		MongoDB:        getenv("MONGO_DB", "blog"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		TokenTTL:       p.durationVar("TOKEN_TTL", time.Hour),
		PhotoStore:     getenv("PHOTO_STORE", PhotoDisk),
		UploadDir:      getenv("UPLOAD_DIR", "public/img/posts"),
		MaxUploadBytes: int64(p.intVar("MAX_UPLOAD_BYTES", 5<<20)),
		MinioEndpoint:  getenv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getenv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getenv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getenv("MINIO_BUCKET", "post-covers"),
		MinioUseSSL:    p.boolVar("MINIO_USE_SSL", false),
		RedisAddr:      getenv("REDIS_ADDR", ""),
		RedisPassword:  getenv("REDIS_PASSWORD", ""),
		AuthRateLimit:  p.intVar("AUTH_RATE_LIMIT", 20),
		AuthRateWindow: p.durationVar("AUTH_RATE_WINDOW", time.Minute),
		CORSOrigins:    splitList(getenv("CORS_ORIGINS", "*")),
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
	}

	errs = append(errs, cfg.validate()...)
	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func (c Config) validate() []error {
	var errs []error

	if len(c.JWTSecret) < minSecretLen {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d characters", minSecretLen))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}
	if c.AuthRateLimit <= 0 || c.AuthRateWindow <= 0 {
		errs = append(errs, errors.New("AUTH_RATE_LIMIT and AUTH_RATE_WINDOW must be positive"))
	}

	switch c.DBDriver {
	case DriverSQLite:
	case DriverMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGO_URI is required when DB_DRIVER=mongo"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver))
	}

	switch c.PhotoStore {
	case PhotoDisk:
	case PhotoMinio:
		if c.MinioEndpoint == "" {
			errs = append(errs, errors.New("MINIO_ENDPOINT is required when PHOTO_STORE=minio"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown PHOTO_STORE %q", c.PhotoStore))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown LOG_LEVEL %q", c.LogLevel))
	}

	return errs
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// parser collects parse errors so Load can report every bad variable at
// once.
type parser struct {
	errs *[]error
}

func (p parser) intVar(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return fallback
	}
	return n
}

func (p parser) durationVar(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return fallback
	}
	return d
}

func (p parser) boolVar(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return fallback
	}
	return b
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
