package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/neexbeast/tripplanner/internal/schedule"
)

// Config is the server configuration.
type Config struct {
	DatabaseURL string
	BearerToken string
	OpenAIKey   string

	// RedisURL is optional; without it travel times are cached in memory.
	RedisURL string
	// KakaoKey is optional; without it travel times use the distance estimate.
	KakaoKey string

	Port          string
	MigrationsDir string
	CORSOrigins   []string

	DraftModel   string
	DraftBaseURL string

	RoutingConcurrency int
	RoutingRPS         float64
	RoutingTimeout     time.Duration
	TravelCacheTTL     time.Duration

	Policy schedule.Policy
}

// Load reads an optional .env file and then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv. Every missing required variable and
// every malformed value is reported.
func FromEnv(getenv func(string) string) (Config, error) {
	var errs []error

	required := func(key string) string {
		v := getenv(key)
		if v == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
		return v
	}
	optional := func(key, fallback string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return fallback
	}
	duration := func(key string, fallback time.Duration) time.Duration {
		raw := getenv(key)
		if raw == "" {
			return fallback
		}
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q", key, raw))
			return fallback
		}
		return d
	}

	cfg := Config{
		DatabaseURL:   required("DATABASE_URL"),
		BearerToken:   required("BEARER_TOKEN"),
		OpenAIKey:     required("OPENAI_API_KEY"),
		RedisURL:      getenv("REDIS_URL"),
		KakaoKey:      getenv("KAKAO_REST_API_KEY"),
		Port:          optional("PORT", "8080"),
		MigrationsDir: optional("MIGRATIONS_DIR", "migrations"),
		DraftModel:    optional("DRAFT_MODEL", "gpt-4o"),
		DraftBaseURL:  optional("DRAFT_BASE_URL", "https://api.openai.com/v1"),

		RoutingTimeout: duration("ROUTING_TIMEOUT", 3*time.Second),
		TravelCacheTTL: duration("TRAVEL_CACHE_TTL", 24*time.Hour),
	}

	for _, o := range strings.Split(optional("CORS_ALLOWED_ORIGINS", "*"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}

	cfg.RoutingConcurrency = 10
	if raw := getenv("ROUTING_CONCURRENCY"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Errorf("ROUTING_CONCURRENCY: invalid value %q", raw))
		} else {
			cfg.RoutingConcurrency = n
		}
	}

	cfg.RoutingRPS = 20
	if raw := getenv("ROUTING_RPS"); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || f < 0 {
			errs = append(errs, fmt.Errorf("ROUTING_RPS: invalid value %q", raw))
		} else {
			cfg.RoutingRPS = f
		}
	}

	cfg.Policy = schedule.DefaultPolicy()
	if path := getenv("POLICY_FILE"); path != "" {
		p, err := schedule.LoadPolicyFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("POLICY_FILE: %w", err))
		} else {
			cfg.Policy = p
		}
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
