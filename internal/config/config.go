// Package config loads the service configuration from the environment
// (optionally seeded from a .env file) and the optional YAML mission catalog.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendMemory    = "memory"
	BackendFirestore = "firestore"
	BackendSupabase  = "supabase"
	BackendPostgres  = "postgres"
)

// News sources.
const (
	NewsSourceAPI = "newsapi"
	NewsSourceRSS = "rss"
)

// Config is the full service configuration. Slices are semicolon separated.
type Config struct {
	Server ServerConfig
	Auth   AuthConfig
	Store  StoreConfig
	Goals  GoalsConfig
	News   NewsConfig
}

// ServerConfig covers the HTTP surface.
type ServerConfig struct {
	ListenAddr      string        `env:"MYNEWS_LISTEN_ADDR,default=:8080"`
	LogLevel        string        `env:"MYNEWS_LOG_LEVEL,default=info"`
	LogFormat       string        `env:"MYNEWS_LOG_FORMAT,default=text"`
	CORSOrigins     []string      `env:"MYNEWS_CORS_ORIGINS,default=*"`
	CORSMaxAge      time.Duration `env:"MYNEWS_CORS_MAX_AGE,default=1h"`
	RateLimitRPS    float64       `env:"MYNEWS_RATE_LIMIT_RPS,default=20"`
	RateLimitBurst  int           `env:"MYNEWS_RATE_LIMIT_BURST,default=40"`
	CleanupSchedule string        `env:"MYNEWS_RATE_LIMIT_CLEANUP,default=@every 5m"`
	ShutdownTimeout time.Duration `env:"MYNEWS_SHUTDOWN_TIMEOUT,default=15s"`
}

// AuthConfig selects bearer token verification.
type AuthConfig struct {
	JWTSecret        string `env:"MYNEWS_JWT_SECRET"`
	JWTPublicKeyFile string `env:"MYNEWS_JWT_PUBLIC_KEY_FILE"`
	JWTIssuer        string `env:"MYNEWS_JWT_ISSUER"`
}

// StoreConfig selects and configures the document store backend.
type StoreConfig struct {
	Backend                  string `env:"MYNEWS_STORE_BACKEND,default=memory"`
	FirestoreProject         string `env:"MYNEWS_FIRESTORE_PROJECT"`
	FirestoreCredentialsFile string `env:"MYNEWS_FIRESTORE_CREDENTIALS_FILE"`
	SupabaseURL              string `env:"MYNEWS_SUPABASE_URL"`
	SupabaseKey              string `env:"MYNEWS_SUPABASE_SERVICE_KEY"`
	SupabaseTable            string `env:"MYNEWS_SUPABASE_TABLE,default=documents"`
	PostgresDSN              string `env:"MYNEWS_POSTGRES_DSN"`
	PostgresNotifyChannel    string `env:"MYNEWS_POSTGRES_NOTIFY_CHANNEL,default=docstore_changes"`
	RunMigrations            bool   `env:"MYNEWS_RUN_MIGRATIONS,default=true"`
}

// GoalsConfig configures the streak day boundary and mission catalog.
type GoalsConfig struct {
	Timezone     string `env:"MYNEWS_TIMEZONE,default=UTC"`
	MissionsFile string `env:"MYNEWS_MISSIONS_FILE"`
}

// NewsConfig configures headlines, caching and the enrichment providers.
type NewsConfig struct {
	Source         string        `env:"MYNEWS_NEWS_SOURCE,default=newsapi"`
	APIBaseURL     string        `env:"MYNEWS_NEWS_API_BASE_URL,default=https://newsapi.org/v2"`
	APIKey         string        `env:"MYNEWS_NEWS_API_KEY"`
	RSSFeeds       []string      `env:"MYNEWS_RSS_FEEDS"`
	DefaultCountry string        `env:"MYNEWS_DEFAULT_COUNTRY,default=us"`
	PageSize       int           `env:"MYNEWS_NEWS_PAGE_SIZE,default=30"`
	CacheTTL       time.Duration `env:"MYNEWS_NEWS_CACHE_TTL,default=5m"`
	RedisURL       string        `env:"MYNEWS_REDIS_URL"`
	RequestTimeout time.Duration `env:"MYNEWS_UPSTREAM_TIMEOUT,default=15s"`
	MaxRetries     int           `env:"MYNEWS_UPSTREAM_MAX_RETRIES,default=0"`

	BiasURL             string `env:"MYNEWS_BIAS_URL"`
	BiasFallbackPath    string `env:"MYNEWS_BIAS_FALLBACK_PATH,default=data/media_bias.json"`
	BiasItemsPath       string `env:"MYNEWS_BIAS_ITEMS_PATH,default=@this"`
	BiasNameField       string `env:"MYNEWS_BIAS_NAME_FIELD,default=news_source"`
	BiasRatingField     string `env:"MYNEWS_BIAS_RATING_FIELD,default=rating"`
	BiasRefreshSchedule string `env:"MYNEWS_BIAS_REFRESH,default=@every 6h"`

	ExtractURL         string `env:"MYNEWS_EXTRACT_URL"`
	ExtractAPIKey      string `env:"MYNEWS_EXTRACT_API_KEY"`
	ExtractTextPath    string `env:"MYNEWS_EXTRACT_TEXT_PATH,default=$.objects[0].text"`
	SummarizeURL       string `env:"MYNEWS_SUMMARIZE_URL"`
	SummarizeAPIKey    string `env:"MYNEWS_SUMMARIZE_API_KEY"`
	SummarizeTextPath  string `env:"MYNEWS_SUMMARIZE_TEXT_PATH,default=$.summary"`
	SummarizeSentences int    `env:"MYNEWS_SUMMARIZE_SENTENCES,default=5"`
}

// Load reads an optional .env file and decodes the environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				return nil, fmt.Errorf("load %s: %w", f, err)
			}
		}
	}
	return FromEnv()
}

// FromEnv decodes the current environment without touching .env files.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	c.News.Source = strings.ToLower(strings.TrimSpace(c.News.Source))
	c.Server.CORSOrigins = compact(c.Server.CORSOrigins)
	c.News.RSSFeeds = compact(c.News.RSSFeeds)
}

// Validate checks that the selected backends have what they need.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendFirestore:
		if c.Store.FirestoreProject == "" {
			return errors.New("MYNEWS_FIRESTORE_PROJECT is required for the firestore backend")
		}
	case BackendSupabase:
		if c.Store.SupabaseURL == "" || c.Store.SupabaseKey == "" {
			return errors.New("MYNEWS_SUPABASE_URL and MYNEWS_SUPABASE_SERVICE_KEY are required for the supabase backend")
		}
	case BackendPostgres:
		if c.Store.PostgresDSN == "" {
			return errors.New("MYNEWS_POSTGRES_DSN is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	switch c.News.Source {
	case NewsSourceAPI, NewsSourceRSS:
	default:
		return fmt.Errorf("unknown news source %q", c.News.Source)
	}
	if c.News.Source == NewsSourceRSS && len(c.News.RSSFeeds) == 0 {
		return errors.New("MYNEWS_RSS_FEEDS is required for the rss news source")
	}

	if _, err := time.LoadLocation(c.Goals.Timezone); err != nil {
		return fmt.Errorf("invalid MYNEWS_TIMEZONE: %w", err)
	}
	if c.Server.RateLimitRPS <= 0 || c.Server.RateLimitBurst <= 0 {
		return errors.New("rate limit values must be positive")
	}
	return nil
}

// Location returns the configured time zone for day boundaries.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Goals.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func compact(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
