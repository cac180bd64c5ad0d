package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	defaultPort         = "3001"
	defaultRateLimit    = 10
	defaultRateBurst    = 20
	defaultHTTPTimeout  = 10 * time.Second
	defaultPollInterval = 5 * time.Second
)

// ErrMissingCredentials is returned when the Spotify client id or secret is not configured.
var ErrMissingCredentials = errors.New("spotify client credentials are not set")

// defaultOrigins are always allowed to call the API with credentials.
var defaultOrigins = []string{
	"http://localhost:3000",
	"https://localhost:3000",
}

// Config holds the application configuration.
type Config struct {
	Port           string
	BaseURL        string
	TLSCertFile    string
	TLSKeyFile     string
	AllowedOrigins []string
	LogLevel       logrus.Level
	LogFormat      string
	RateLimit      float64
	RateBurst      int
	LiveFeed       bool
	PollInterval   time.Duration
	Spotify        struct {
		ClientID     string
		ClientSecret string
		RefreshToken string
		HTTPTimeout  time.Duration
	}
}

// fileConfig mirrors the optional TOML configuration file.
type fileConfig struct {
	Spotify struct {
		ClientID     string `toml:"client_id"`
		ClientSecret string `toml:"client_secret"`
		RefreshToken string `toml:"refresh_token"`
		HTTPTimeout  string `toml:"http_timeout"`
	} `toml:"spotify"`
	Server struct {
		Port        string  `toml:"port"`
		BaseURL     string  `toml:"base_url"`
		TLSCertFile string  `toml:"tls_cert_file"`
		TLSKeyFile  string  `toml:"tls_key_file"`
		RateLimit   float64 `toml:"rate_limit"`
		RateBurst   int     `toml:"rate_burst"`
	} `toml:"server"`
	CORS struct {
		ClientURL      string   `toml:"client_url"`
		ExternalURL    string   `toml:"external_url"`
		AllowedOrigins []string `toml:"allowed_origins"`
	} `toml:"cors"`
	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`
	Live struct {
		Enabled      bool   `toml:"enabled"`
		PollInterval string `toml:"poll_interval"`
	} `toml:"live"`
}

// Load builds the configuration from an optional TOML file, a .env file in the
// working directory and the process environment, in increasing precedence.
func Load(path string) (*Config, error) {
	var fc fileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := toml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// godotenv never overrides variables already present in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{}

	cfg.Spotify.ClientID = env("SPOTIFY_CLIENT_ID", fc.Spotify.ClientID)
	cfg.Spotify.ClientSecret = env("SPOTIFY_CLIENT_SECRET", fc.Spotify.ClientSecret)
	cfg.Spotify.RefreshToken = env("SPOTIFY_REFRESH_TOKEN", fc.Spotify.RefreshToken)

	if cfg.Spotify.ClientID == "" || cfg.Spotify.ClientSecret == "" {
		return nil, ErrMissingCredentials
	}

	timeout, err := duration(env("HTTP_TIMEOUT", fc.Spotify.HTTPTimeout), defaultHTTPTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}
	cfg.Spotify.HTTPTimeout = timeout

	cfg.Port = env("PORT", fc.Server.Port)
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}

	cfg.TLSCertFile = env("TLS_CERT_FILE", fc.Server.TLSCertFile)
	cfg.TLSKeyFile = env("TLS_KEY_FILE", fc.Server.TLSKeyFile)

	cfg.BaseURL = strings.TrimRight(env("BASE_URL", fc.Server.BaseURL), "/")
	if cfg.BaseURL == "" {
		scheme := "http"
		if cfg.TLSEnabled() {
			scheme = "https"
		}
		cfg.BaseURL = fmt.Sprintf("%s://localhost:%s", scheme, cfg.Port)
	}

	extra := fc.CORS.AllowedOrigins
	if allowedOrigins := os.Getenv("ALLOWED_ORIGINS"); allowedOrigins != "" {
		extra = strings.Split(allowedOrigins, ",")
	}
	cfg.AllowedOrigins = origins(
		append([]string{
			env("CLIENT_URL", fc.CORS.ClientURL),
			env("RENDER_EXTERNAL_URL", fc.CORS.ExternalURL),
		}, extra...)...,
	)

	cfg.RateLimit = defaultRateLimit
	if fc.Server.RateLimit != 0 {
		cfg.RateLimit = fc.Server.RateLimit
	}
	if v := os.Getenv("RATE_LIMIT"); v != "" {
		limit, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT: %w", err)
		}
		cfg.RateLimit = limit
	}

	cfg.RateBurst = defaultRateBurst
	if fc.Server.RateBurst != 0 {
		cfg.RateBurst = fc.Server.RateBurst
	}
	if v := os.Getenv("RATE_BURST"); v != "" {
		burst, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid RATE_BURST: %w", err)
		}
		cfg.RateBurst = burst
	}

	live, err := strconv.ParseBool(os.Getenv("LIVE_FEED"))
	if err != nil {
		cfg.LiveFeed = fc.Live.Enabled
	} else {
		cfg.LiveFeed = live
	}

	interval, err := duration(env("POLL_INTERVAL", fc.Live.PollInterval), defaultPollInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid POLL_INTERVAL: %w", err)
	}
	cfg.PollInterval = interval

	switch strings.ToLower(env("LOG_LEVEL", fc.Log.Level)) {
	case "trace":
		cfg.LogLevel = logrus.TraceLevel
	case "debug":
		cfg.LogLevel = logrus.DebugLevel
	case "warn":
		cfg.LogLevel = logrus.WarnLevel
	case "error":
		cfg.LogLevel = logrus.ErrorLevel
	default:
		cfg.LogLevel = logrus.InfoLevel
	}

	cfg.LogFormat = strings.ToLower(env("LOG_FORMAT", fc.Log.Format))
	if cfg.LogFormat != "json" {
		cfg.LogFormat = "text"
	}

	return cfg, nil
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// RedirectURI is the OAuth callback registered with Spotify.
func (c *Config) RedirectURI() string {
	return c.BaseURL + "/callback"
}

// TLSEnabled reports whether both a certificate and a key are configured.
func (c *Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func duration(v string, fallback time.Duration) (time.Duration, error) {
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

// origins merges the default origins with the configured ones, dropping
// blanks, trailing slashes and duplicates.
func origins(configured ...string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, o := range append(append([]string{}, defaultOrigins...), configured...) {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" {
			continue
		}
		if _, ok := seen[o]; ok {
			continue
		}
		seen[o] = struct{}{}
		out = append(out, o)
	}
	return out
}
