// Package config loads labd/labctl settings from defaults, an optional TOML
// file, a .env file and LAB_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"k8s.io/klog/v2"
)

// Backend selects which controller provisions labs.
type Backend string

const (
	BackendRemote Backend = "remote"
	BackendDocker Backend = "docker"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the full runtime configuration.
type Config struct {
	ListenAddr string  `toml:"listen-addr"`
	Backend    Backend `toml:"backend"`
	// Token is the static bearer token labctl sends.
	Token string `toml:"token"`

	Auth      Auth      `toml:"auth"`
	Control   Control   `toml:"control"`
	Session   Session   `toml:"session"`
	Probe     Probe     `toml:"probe"`
	RateLimit RateLimit `toml:"rate-limit"`
	Docker    Docker    `toml:"docker"`
}

// Auth configures how labd verifies caller tokens.
type Auth struct {
	// Secret is the HMAC key caller JWTs are signed with.
	Secret string `toml:"secret"`
}

// Control points at the upstream gateway.
type Control struct {
	BaseURL string `toml:"base-url"`
	// FilesBaseURL defaults to BaseURL.
	FilesBaseURL   string   `toml:"files-base-url"`
	RequestTimeout Duration `toml:"request-timeout"`
}

// Session holds countdown settings.
type Session struct {
	Budget      Duration `toml:"budget"`
	StopTimeout Duration `toml:"stop-timeout"`
}

// Probe holds readiness polling settings.
type Probe struct {
	Timeout    Duration `toml:"timeout"`
	Interval   Duration `toml:"interval"`
	MaxRetries int      `toml:"max-retries"`
}

// RateLimit bounds API calls per user.
type RateLimit struct {
	PerHour int `toml:"per-hour"`
	Burst   int `toml:"burst"`
}

// Docker configures the local backend.
type Docker struct {
	Image string `toml:"image"`
	Port  string `toml:"port"`
}

// Duration decodes TOML strings such as "30m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenAddr: ":8080",
		Backend:    BackendRemote,
		Control: Control{
			RequestTimeout: Duration{30 * time.Second},
		},
		Session: Session{
			Budget:      Duration{30 * time.Minute},
			StopTimeout: Duration{30 * time.Second},
		},
		Probe: Probe{
			Timeout:    Duration{5 * time.Second},
			Interval:   Duration{10 * time.Second},
			MaxRetries: 36,
		},
		RateLimit: RateLimit{
			PerHour: 100,
			Burst:   10,
		},
		Docker: Docker{
			Image: "quay.io/jupyter/scipy-notebook:latest",
			Port:  "8888",
		},
	}
}

// Load builds a Config. path may be empty; a missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil {
		klog.V(2).InfoS("No .env file found, using system environment variables")
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if cfg.Control.FilesBaseURL == "" {
		cfg.Control.FilesBaseURL = cfg.Control.BaseURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	dur := func(key string, dst *Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalid, key, v, err)
		}
		dst.Duration = d
		return nil
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalid, key, v, err)
		}
		*dst = n
		return nil
	}

	str("LAB_LISTEN_ADDR", &cfg.ListenAddr)
	var backend string
	str("LAB_BACKEND", &backend)
	if backend != "" {
		cfg.Backend = Backend(backend)
	}
	str("LAB_TOKEN", &cfg.Token)
	str("LAB_AUTH_SECRET", &cfg.Auth.Secret)
	str("LAB_API_BASE_URL", &cfg.Control.BaseURL)
	str("LAB_FILES_BASE_URL", &cfg.Control.FilesBaseURL)
	str("LAB_DOCKER_IMAGE", &cfg.Docker.Image)
	str("LAB_DOCKER_PORT", &cfg.Docker.Port)

	for key, dst := range map[string]*Duration{
		"LAB_REQUEST_TIMEOUT": &cfg.Control.RequestTimeout,
		"LAB_SESSION_BUDGET":  &cfg.Session.Budget,
		"LAB_STOP_TIMEOUT":    &cfg.Session.StopTimeout,
		"LAB_PROBE_TIMEOUT":   &cfg.Probe.Timeout,
		"LAB_PROBE_INTERVAL":  &cfg.Probe.Interval,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}
	for key, dst := range map[string]*int{
		"LAB_PROBE_MAX_RETRIES":   &cfg.Probe.MaxRetries,
		"LAB_RATE_LIMIT_PER_HOUR": &cfg.RateLimit.PerHour,
		"LAB_RATE_LIMIT_BURST":    &cfg.RateLimit.Burst,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks that the configuration can start a lab.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendRemote:
		if c.Control.BaseURL == "" {
			return fmt.Errorf("%w: control base URL is required for the remote backend (LAB_API_BASE_URL)", ErrInvalid)
		}
	case BackendDocker:
		if c.Docker.Image == "" {
			return fmt.Errorf("%w: docker image is required for the docker backend", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalid, c.Backend)
	}

	if c.Session.Budget.Duration < time.Second {
		return fmt.Errorf("%w: session budget must be at least 1s", ErrInvalid)
	}
	if c.Probe.Timeout.Duration <= 0 || c.Probe.Interval.Duration <= 0 {
		return fmt.Errorf("%w: probe timeout and interval must be positive", ErrInvalid)
	}
	if c.Probe.MaxRetries < 0 {
		return fmt.Errorf("%w: probe max retries must not be negative", ErrInvalid)
	}
	if c.RateLimit.PerHour <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("%w: rate limit must be positive", ErrInvalid)
	}
	return nil
}

// ValidateServer checks everything Validate does plus what labd needs to
// authenticate callers.
func (c *Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Auth.Secret) == "" {
		return fmt.Errorf("%w: auth secret is required to verify caller tokens (LAB_AUTH_SECRET)", ErrInvalid)
	}
	return nil
}

// BudgetSeconds is the session budget as whole seconds.
func (c *Config) BudgetSeconds() int {
	return int(c.Session.Budget.Seconds())
}
