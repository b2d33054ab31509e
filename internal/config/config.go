package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// TokenEnv is the environment variable carrying the bearer token for the
// chat API. It is read from the process environment, optionally seeded from
// an env file, and deliberately kept out of the TOML config.
const TokenEnv = "CHATSYNC_TOKEN"

// Duration wraps time.Duration so TOML values like "3s" decode directly.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config represents the client configuration file.
type Config struct {
	RestBaseURL  string   `toml:"rest_base_url"`
	SocketURL    string   `toml:"socket_url"`
	UserID       string   `toml:"user_id"`
	PageSize     int      `toml:"page_size"`
	TypingIdle   Duration `toml:"typing_idle"`
	TypingExpiry Duration `toml:"typing_expiry"`
	LogPath      string   `toml:"log_path"`
}

// Load reads config from the given path, applies defaults and validates it.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.PageSize <= 0 {
		c.PageSize = 50
	}
	if c.TypingIdle <= 0 {
		c.TypingIdle = Duration(3 * time.Second)
	}
	if c.TypingExpiry <= 0 {
		c.TypingExpiry = Duration(5 * time.Second)
	}
}

// Validate checks that the required fields are present and well-formed.
func (c *Config) Validate() error {
	if c.UserID == "" {
		return fmt.Errorf("config: user_id is required")
	}
	for name, raw := range map[string]string{
		"rest_base_url": c.RestBaseURL,
		"socket_url":    c.SocketURL,
	} {
		if raw == "" {
			return fmt.Errorf("config: %s is required", name)
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config: %s %q is not a valid URL", name, raw)
		}
	}
	return nil
}

// Token returns the API bearer token. If envPath is non-empty the env file is
// loaded first; a missing env file is not an error since the variable may
// already be set in the environment.
func Token(envPath string) string {
	if envPath != "" {
		_ = godotenv.Load(envPath)
	}
	return os.Getenv(TokenEnv)
}
