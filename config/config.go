package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const (
	DevEnv  = "dev"
	ProdEnv = "prod"
	TestEnv = "test"
)

type Config struct {
	Env  string
	Port string

	MongoURI        string
	MongoDatabase   string
	UseTransactions bool

	JWTSecret string
	JWTTTL    time.Duration

	GinMode        string
	AllowedOrigins []string
	AuthRateLimit  int

	// DefaultSignInRole is given to accounts created on first sign-in.
	DefaultSignInRole string

	CloudinaryURL    string
	CloudinaryFolder string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
}

// LoadDotEnvs loads the .env files for the current APP_ENV. Files loaded
// first win, godotenv never overrides a variable that is already set.
func LoadDotEnvs() {
	env := currentEnv()

	// .env.[env].local usually holds secrets and is never committed
	godotenv.Load(".env." + env + ".local")
	if env != TestEnv {
		godotenv.Load(".env.local")
	}
	godotenv.Load(".env." + env)
	godotenv.Load(".env")
}

// Load reads the .env files and the process environment.
func Load() (*Config, error) {
	LoadDotEnvs()
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Env:                currentEnv(),
		Port:               getEnv("PORT", "8080"),
		MongoURI:           os.Getenv("MONGODB_URI"),
		MongoDatabase:      getEnv("MONGODB_DATABASE", "finsite"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		GinMode:            getEnv("GIN_MODE", "debug"),
		AllowedOrigins:     splitList(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		DefaultSignInRole:  getEnv("DEFAULT_SIGNIN_ROLE", "admin"),
		CloudinaryURL:      os.Getenv("CLOUDINARY_URL"),
		CloudinaryFolder:   getEnv("CLOUDINARY_FOLDER", "finsite/media"),
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", "http://localhost:8080/api/auth/google/callback"),
	}

	if cfg.MongoURI == "" || cfg.JWTSecret == "" {
		return nil, errors.New("MONGODB_URI and JWT_SECRET must be set")
	}

	var err error
	if cfg.UseTransactions, err = strconv.ParseBool(getEnv("MONGODB_TRANSACTIONS", "false")); err != nil {
		return nil, errors.Wrap(err, "invalid MONGODB_TRANSACTIONS")
	}
	if cfg.JWTTTL, err = time.ParseDuration(getEnv("JWT_TTL", "24h")); err != nil {
		return nil, errors.Wrap(err, "invalid JWT_TTL")
	}
	if cfg.AuthRateLimit, err = strconv.Atoi(getEnv("AUTH_RATE_LIMIT", "20")); err != nil || cfg.AuthRateLimit <= 0 {
		return nil, errors.Errorf("invalid AUTH_RATE_LIMIT %q", os.Getenv("AUTH_RATE_LIMIT"))
	}

	switch cfg.DefaultSignInRole {
	case "admin", "editor", "viewer", "client":
	default:
		return nil, errors.Errorf("invalid DEFAULT_SIGNIN_ROLE %q", cfg.DefaultSignInRole)
	}

	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == ProdEnv
}

func currentEnv() string {
	return getEnv("APP_ENV", DevEnv)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
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
