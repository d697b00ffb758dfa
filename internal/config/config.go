// Package config provides configuration loading and validation for the autoposter.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/hihihowru/forum-autoposter-sub005/internal/discovery"
)

// EnvConfigPath names the environment variable holding the config file path
const EnvConfigPath = "AUTOPOSTER_CONFIG"

// Config is the full service configuration. Every field has a default; a YAML file
// overrides the defaults and environment variables override the file.
type Config struct {
	Log        LogConfig        `yaml:"log"`
	Store      StoreConfig      `yaml:"store"`
	Assignment AssignmentConfig `yaml:"assignment"`
	Generation GenerationConfig `yaml:"generation"`
	Publish    PublishConfig    `yaml:"publish"`
	Sessions   SessionsConfig   `yaml:"sessions"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	Classify   ClassifyConfig   `yaml:"classify"`
	Server     ServerConfig     `yaml:"server"`
	Auth       AuthConfig       `yaml:"auth"`
}

// LogConfig selects log verbosity and encoding
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"oneof=console json"`
}

// StoreConfig selects the PersistentStore backend and sheet names
type StoreConfig struct {
	Backend         string `yaml:"backend" validate:"oneof=memory postgres sqlite gsheets"`
	DatabaseURL     string `yaml:"database_url" validate:"required_if=Backend postgres"`
	SQLitePath      string `yaml:"sqlite_path" validate:"required_if=Backend sqlite"`
	SpreadsheetID   string `yaml:"spreadsheet_id" validate:"required_if=Backend gsheets"`
	CredentialsFile string `yaml:"credentials_file"`

	PersonasSheet  string `yaml:"personas_sheet" validate:"required"`
	TopicsSheet    string `yaml:"topics_sheet" validate:"required"`
	PostsSheet     string `yaml:"posts_sheet" validate:"required"`
	SchedulesSheet string `yaml:"schedules_sheet" validate:"required"`
}

// AssignmentConfig bounds topic fan-out
type AssignmentConfig struct {
	MaxPerTopic int `yaml:"max_assignments_per_topic" validate:"min=1,max=50"`
	// TopicLimit bounds unprocessed topics per batch; zero means all
	TopicLimit int `yaml:"topic_limit" validate:"min=0"`
}

// GenerationConfig configures the Generation API and the orchestrator
type GenerationConfig struct {
	APIKey         string            `yaml:"api_key"`
	Models         map[string]string `yaml:"models"`
	Temperature    float32           `yaml:"temperature" validate:"min=0,max=2"`
	MaxTokens      int32             `yaml:"max_tokens" validate:"min=0"`
	TitleRetryMax  int               `yaml:"title_retry_max" validate:"min=0,max=10"`
	RetryMax       int               `yaml:"retry_max" validate:"min=1,max=10"`
	InitialBackoff time.Duration     `yaml:"initial_backoff" validate:"min=0"`
	MaxBackoff     time.Duration     `yaml:"max_backoff" validate:"min=0"`
	CallTimeout    time.Duration     `yaml:"call_timeout" validate:"min=1s"`
	MinBodyChars   int               `yaml:"min_body_chars" validate:"min=0"`
	MaxTitleChars  int               `yaml:"max_title_chars" validate:"min=0"`
	BreakerTrips   uint32            `yaml:"breaker_trips"`
	BreakerOpen    time.Duration     `yaml:"breaker_open"`
}

// PublishConfig configures the Platform API and the scheduler
type PublishConfig struct {
	PlatformBaseURL string        `yaml:"platform_base_url" validate:"omitempty,url"`
	MinDelay        time.Duration `yaml:"min_delay" validate:"min=0"`
	Spacing         time.Duration `yaml:"spacing" validate:"min=0"`
	PoolSize        int           `yaml:"pool_size" validate:"min=1,max=64"`
	TickCap         int           `yaml:"tick_cap" validate:"min=1"`
	TickBudget      time.Duration `yaml:"tick_budget" validate:"min=1s"`
	CallTimeout     time.Duration `yaml:"call_timeout" validate:"min=1s"`
	SessionSkew     time.Duration `yaml:"session_skew" validate:"min=0"`
	RatePerSecond   float64       `yaml:"rate_per_second" validate:"min=0"`
	Burst           int           `yaml:"burst" validate:"min=1"`
	BreakerTrips    uint32        `yaml:"breaker_trips"`
	BreakerOpen     time.Duration `yaml:"breaker_open"`
}

// SessionsConfig selects the login-session cache. An empty RedisAddr keeps sessions in memory.
type SessionsConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db" validate:"min=0"`
}

// ScheduleConfig configures the periodic driver and its default jobs
type ScheduleConfig struct {
	Poll            time.Duration `yaml:"poll" validate:"min=1s"`
	PublishCadence  time.Duration `yaml:"publish_cadence" validate:"min=1m"`
	GenerateCadence time.Duration `yaml:"generate_cadence" validate:"min=0"`
}

// DiscoveryConfig lists topic sources
type DiscoveryConfig struct {
	Sources []discovery.SourceConfig `yaml:"sources" validate:"dive"`
	Timeout time.Duration            `yaml:"timeout" validate:"min=0"`
}

// ClassifyConfig points at an optional YAML lexicon replacing built-in vocabularies
type ClassifyConfig struct {
	LexiconPath string `yaml:"lexicon_path"`
}

// ServerConfig configures the operator HTTP surface
type ServerConfig struct {
	Addr          string  `yaml:"addr" validate:"required"`
	RatePerSecond float64 `yaml:"rate_per_second" validate:"min=0"`
	Burst         int     `yaml:"burst" validate:"min=0"`
	AllowedOrigin string  `yaml:"allowed_origin"`
}

// AuthConfig holds operator credentials and token settings
type AuthConfig struct {
	JWTSecret            string `yaml:"jwt_secret" validate:"omitempty,min=32"`
	JWTExpirationHours   int    `yaml:"jwt_expiration_hours" validate:"min=1"`
	OperatorUser         string `yaml:"operator_user" validate:"required"`
	OperatorPasswordHash string `yaml:"operator_password_hash"`
	BcryptCost           int    `yaml:"bcrypt_cost" validate:"min=10,max=14"`
	PasswordPepper       string `yaml:"password_pepper"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "console"},
		Store: StoreConfig{
			Backend:        "memory",
			SQLitePath:     filepath.Join(xdg.DataHome, "autoposter", "autoposter.db"),
			PersonasSheet:  "personas",
			TopicsSheet:    "topics",
			PostsSheet:     "posts",
			SchedulesSheet: "schedules",
		},
		Assignment: AssignmentConfig{MaxPerTopic: 3, TopicLimit: 20},
		Generation: GenerationConfig{
			Temperature:    0.9,
			MaxTokens:      2048,
			TitleRetryMax:  3,
			RetryMax:       3,
			InitialBackoff: 2 * time.Second,
			MaxBackoff:     30 * time.Second,
			CallTimeout:    60 * time.Second,
			MinBodyChars:   80,
			MaxTitleChars:  80,
			BreakerTrips:   5,
			BreakerOpen:    60 * time.Second,
		},
		Publish: PublishConfig{
			MinDelay:      120 * time.Second,
			Spacing:       30 * time.Minute,
			PoolSize:      4,
			TickCap:       50,
			TickBudget:    10 * time.Minute,
			CallTimeout:   30 * time.Second,
			SessionSkew:   2 * time.Minute,
			RatePerSecond: 1,
			Burst:         1,
			BreakerTrips:  5,
			BreakerOpen:   60 * time.Second,
		},
		Schedule: ScheduleConfig{
			Poll:            30 * time.Second,
			PublishCadence:  15 * time.Minute,
			GenerateCadence: time.Hour,
		},
		Discovery: DiscoveryConfig{Timeout: 20 * time.Second},
		Server:    ServerConfig{Addr: ":8080", RatePerSecond: 10, Burst: 20},
		Auth: AuthConfig{
			JWTExpirationHours: 24,
			OperatorUser:       "operator",
			BcryptCost:         12,
		},
	}
}

// DefaultPath is the config file location under the XDG config home
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "autoposter", "config.yaml")
}

// Load builds the configuration. An explicit path must exist; otherwise
// AUTOPOSTER_CONFIG and then DefaultPath are tried and a missing file means defaults.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		if env := os.Getenv(EnvConfigPath); env != "" {
			path, explicit = env, true
		} else {
			path = DefaultPath()
		}
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables looked up through lookup
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"LOG_LEVEL":                      &c.Log.Level,
		"LOG_FORMAT":                     &c.Log.Format,
		"STORE_BACKEND":                  &c.Store.Backend,
		"DATABASE_URL":                   &c.Store.DatabaseURL,
		"SQLITE_PATH":                    &c.Store.SQLitePath,
		"SPREADSHEET_ID":                 &c.Store.SpreadsheetID,
		"GOOGLE_APPLICATION_CREDENTIALS": &c.Store.CredentialsFile,
		"GEMINI_API_KEY":                 &c.Generation.APIKey,
		"PLATFORM_BASE_URL":              &c.Publish.PlatformBaseURL,
		"CLASSIFY_LEXICON_PATH":          &c.Classify.LexiconPath,
		"REDIS_ADDR":                     &c.Sessions.RedisAddr,
		"REDIS_PASSWORD":                 &c.Sessions.RedisPassword,
		"SERVER_ADDR":                    &c.Server.Addr,
		"JWT_SECRET":                     &c.Auth.JWTSecret,
		"OPERATOR_USER":                  &c.Auth.OperatorUser,
		"OPERATOR_PASSWORD_HASH":         &c.Auth.OperatorPasswordHash,
		"PASSWORD_PEPPER":                &c.Auth.PasswordPepper,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"REDIS_DB":             &c.Sessions.RedisDB,
		"JWT_EXPIRATION_HOURS": &c.Auth.JWTExpirationHours,
		"BCRYPT_COST":          &c.Auth.BcryptCost,
	}
	for key, dst := range ints {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = n
	}
	return nil
}

// Validate checks field ranges and backend requirements
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config error: %s failed %s check", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("config error: %w", err)
	}
	return nil
}
