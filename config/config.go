package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via config files or the environment.
type AppConfig struct {
	AppPort            string   `env:"APP_PORT"`
	JWTSecret          string   `env:"JWT_SECRET"`
	RateLimitPerMinute int      `env:"RATE_LIMIT_PER_MINUTE"`
	AllowedOrigins     []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	// Database: mysql (default), postgres or sqlite
	DBDriver    string `env:"DB_DRIVER"`
	DatabaseURI string `env:"DATABASE_URI"`
	DBHost      string `env:"DB_HOST"`
	DBPort      string `env:"DB_PORT"`
	DBUser      string `env:"DB_USER"`
	DBPassword  string `env:"DB_PASSWORD"`
	DBName      string `env:"DB_NAME"`
	// Redis for listing cache; empty host disables caching
	RedisHost     string `env:"REDIS_HOST"`
	RedisPort     int    `env:"REDIS_PORT"`
	RedisDB       int    `env:"REDIS_DB"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	// Gin framework configuration
	GinMode string `env:"GIN_MODE"`
	GinPath string `env:"GIN_LOG_PATH"`
	// Logging configuration
	LogLevel      string `env:"LOG_LEVEL"`
	LogPath       string `env:"LOG_PATH"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS"`
	LogMaxAgeDays int    `env:"LOG_MAX_AGE_DAYS"`
	LogCompress   bool   `env:"LOG_COMPRESS"`
	// Forum rules
	PostLifespanMinutes int `env:"POST_LIFESPAN_MINUTES"`
	VoteMaxRetries      int `env:"VOTE_MAX_RETRIES"`
	ExpirySweepSeconds  int `env:"EXPIRY_SWEEP_SECONDS"`
	ListCacheSeconds    int `env:"LIST_CACHE_SECONDS"`
}

// fileConfig mirrors the grouped layout of config/config.json and config/config.yaml.
type fileConfig struct {
	App struct {
		Port               string   `json:"port" yaml:"port"`
		JWTSecret          string   `json:"jwt_secret" yaml:"jwt_secret"`
		RateLimitPerMinute int      `json:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
		AllowedOrigins     []string `json:"allowed_origins" yaml:"allowed_origins"`
		GinMode            string   `json:"gin_mode" yaml:"gin_mode"`
		GinPath            string   `json:"gin_log_path" yaml:"gin_log_path"`
	} `json:"app" yaml:"app"`
	Database struct {
		Driver   string `json:"driver" yaml:"driver"`
		URI      string `json:"uri" yaml:"uri"`
		Host     string `json:"host" yaml:"host"`
		Port     string `json:"port" yaml:"port"`
		User     string `json:"user" yaml:"user"`
		Password string `json:"password" yaml:"password"`
		Name     string `json:"name" yaml:"name"`
	} `json:"database" yaml:"database"`
	Redis struct {
		Host     string `json:"host" yaml:"host"`
		Port     int    `json:"port" yaml:"port"`
		DB       int    `json:"db" yaml:"db"`
		Password string `json:"password" yaml:"password"`
	} `json:"redis" yaml:"redis"`
	Log struct {
		Level      string `json:"level" yaml:"level"`
		Path       string `json:"path" yaml:"path"`
		MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
		MaxBackups int    `json:"max_backups" yaml:"max_backups"`
		MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
		Compress   bool   `json:"compress" yaml:"compress"`
	} `json:"log" yaml:"log"`
	Forum struct {
		PostLifespanMinutes int `json:"post_lifespan_minutes" yaml:"post_lifespan_minutes"`
		VoteMaxRetries      int `json:"vote_max_retries" yaml:"vote_max_retries"`
		ExpirySweepSeconds  int `json:"expiry_sweep_seconds" yaml:"expiry_sweep_seconds"`
		ListCacheSeconds    int `json:"list_cache_seconds" yaml:"list_cache_seconds"`
	} `json:"forum" yaml:"forum"`
}

var cfg AppConfig
var loaded bool

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	if loaded {
		return cfg
	}
	c, err := LoadFrom("config")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if c.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in config or environment variables")
	}
	cfg = c
	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// LoadFrom reads dir/config.json or dir/config.yaml, fills defaults, then
// applies environment overrides. Precedence: file -> defaults -> environment.
func LoadFrom(dir string) (AppConfig, error) {
	var c AppConfig
	if err := loadFileConfig(dir, &c); err != nil {
		return c, err
	}
	applyDefaults(&c)
	if err := env.Parse(&c); err != nil {
		return c, fmt.Errorf("parse env: %w", err)
	}
	return c, nil
}

// loadFileConfig silently ignores a missing file; only malformed content is an error.
func loadFileConfig(dir string, out *AppConfig) error {
	var fc fileConfig
	found := false
	for _, name := range []string{"config.json", "config.yaml", "config.yml"} {
		path := filepath.Join(dir, name)
		b, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if strings.HasSuffix(name, ".json") {
			err = json.Unmarshal(b, &fc)
		} else {
			err = yaml.Unmarshal(b, &fc)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		found = true
		break
	}
	if !found {
		return nil
	}

	out.AppPort = fc.App.Port
	out.JWTSecret = fc.App.JWTSecret
	out.RateLimitPerMinute = fc.App.RateLimitPerMinute
	out.AllowedOrigins = fc.App.AllowedOrigins
	out.GinMode = fc.App.GinMode
	out.GinPath = fc.App.GinPath

	out.DBDriver = fc.Database.Driver
	out.DatabaseURI = fc.Database.URI
	out.DBHost = fc.Database.Host
	out.DBPort = fc.Database.Port
	out.DBUser = fc.Database.User
	out.DBPassword = fc.Database.Password
	out.DBName = fc.Database.Name

	out.RedisHost = fc.Redis.Host
	out.RedisPort = fc.Redis.Port
	out.RedisDB = fc.Redis.DB
	out.RedisPassword = fc.Redis.Password

	out.LogLevel = fc.Log.Level
	out.LogPath = fc.Log.Path
	out.LogMaxSizeMB = fc.Log.MaxSizeMB
	out.LogMaxBackups = fc.Log.MaxBackups
	out.LogMaxAgeDays = fc.Log.MaxAgeDays
	out.LogCompress = fc.Log.Compress

	out.PostLifespanMinutes = fc.Forum.PostLifespanMinutes
	out.VoteMaxRetries = fc.Forum.VoteMaxRetries
	out.ExpirySweepSeconds = fc.Forum.ExpirySweepSeconds
	out.ListCacheSeconds = fc.Forum.ListCacheSeconds
	return nil
}

func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 120
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.DBDriver == "" {
		c.DBDriver = "mysql"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		c.DBPort = "3306"
	}
	if c.DBName == "" {
		c.DBName = "piazza"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.PostLifespanMinutes == 0 {
		c.PostLifespanMinutes = 500
	}
	if c.VoteMaxRetries == 0 {
		c.VoteMaxRetries = 5
	}
	if c.ExpirySweepSeconds == 0 {
		c.ExpirySweepSeconds = 60
	}
	if c.ListCacheSeconds == 0 {
		c.ListCacheSeconds = 60
	}
}
