// Package config loads the forum server configuration from a TOML file and the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

var ErrConfParamMissing = fmt.Errorf("configuration parameter missing")

type Config struct {
	ServiceName string `toml:"serviceName"`
	HTTPAddr    string `toml:"httpAddr"`
	LogLevel    string `toml:"logLevel"`
	CORSOrigin  string `toml:"corsOrigin"`

	Auth     Auth     `toml:"auth"`
	Comments Comments `toml:"comments"`
	Cache    Cache    `toml:"cache"`
	Censor   Censor   `toml:"censor"`
	Kafka    Kafka    `toml:"kafka"`
}

type Auth struct {
	AccessSecret  string `toml:"accessSecret"`
	RefreshSecret string `toml:"refreshSecret"`
	SecureCookies bool   `toml:"secureCookies"`
}

type Comments struct {
	MaxDepth int `toml:"maxDepth"`
}

type Cache struct {
	Size    int           `toml:"size"`
	TreeTTL time.Duration `toml:"treeTTL"`
}

// Censor selects the content check: a remote service when URL is set, otherwise the local word list
// at WordsPath. Both empty disables the check.
type Censor struct {
	WordsPath string        `toml:"wordsPath"`
	URL       string        `toml:"url"`
	Timeout   time.Duration `toml:"timeout"`
}

type Kafka struct {
	Addr  string `toml:"addr"`
	Topic string `toml:"topic"`
	Batch int    `toml:"batch"`
}

func Default() Config {
	return Config{
		ServiceName: "forum",
		HTTPAddr:    ":8080",
		LogLevel:    "info",
		Cache:       Cache{Size: 512, TreeTTL: 30 * time.Second},
		Censor:      Censor{Timeout: 3 * time.Second},
		Kafka:       Kafka{Batch: 1},
	}
}

// Load reads the TOML file over the defaults and applies environment overrides. An empty path skips
// the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files into the process environment. Missing files
// are reported at debug level only.
func LoadDotEnv(files ...string) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			log.Debugf("[config] %s not loaded: %v", f, err)
		}
	}
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.AccessSecret = v
	}
	if v := os.Getenv("JWT_REFRESH_SECRET"); v != "" {
		c.Auth.RefreshSecret = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.HTTPAddr = ":" + v
	}
	if v := os.Getenv("KAFKA_ADDR"); v != "" {
		c.Kafka.Addr = v
	}
	if v := os.Getenv("CORS_ORIGIN"); v != "" {
		c.CORSOrigin = v
	}
	if v := os.Getenv("CENSOR_URL"); v != "" {
		c.Censor.URL = v
	}
	if v := os.Getenv("COMMENTS_MAX_DEPTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid COMMENTS_MAX_DEPTH %q", v)
		}
		c.Comments.MaxDepth = n
	}
	return nil
}

// Validate checks the parameters the server cannot start without.
func (c *Config) Validate() error {
	if c.Auth.AccessSecret == "" {
		return fmt.Errorf("%w: auth.accessSecret (JWT_SECRET)", ErrConfParamMissing)
	}
	if c.Auth.RefreshSecret == "" {
		return fmt.Errorf("%w: auth.refreshSecret (JWT_REFRESH_SECRET)", ErrConfParamMissing)
	}
	if c.Comments.MaxDepth < 0 {
		return fmt.Errorf("comments.maxDepth must not be negative")
	}
	if c.Cache.Size <= 0 {
		return fmt.Errorf("cache.size must be positive")
	}
	return nil
}

// SetLogLevel applies a textual log level to logrus. Unknown values leave the level unchanged.
func SetLogLevel(level string) {
	switch level {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	}
}
