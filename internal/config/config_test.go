package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lab.toml")
	content := `
backend = "docker"

[session]
budget = "10m"

[probe]
max-retries = 5
interval = "2s"

[docker]
image = "jupyter/base-notebook"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	t.Setenv("LAB_PROBE_MAX_RETRIES", "7")
	t.Setenv("LAB_LISTEN_ADDR", ":9090")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, BackendDocker, cfg.Backend)
	require.Equal(t, 10*time.Minute, cfg.Session.Budget.Duration)
	require.Equal(t, 600, cfg.BudgetSeconds())
	require.Equal(t, 7, cfg.Probe.MaxRetries)
	require.Equal(t, 2*time.Second, cfg.Probe.Interval.Duration)
	require.Equal(t, 5*time.Second, cfg.Probe.Timeout.Duration)
	require.Equal(t, "jupyter/base-notebook", cfg.Docker.Image)
	require.Equal(t, ":9090", cfg.ListenAddr)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("LAB_API_BASE_URL", "https://gateway.example/prod")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	require.Equal(t, BackendRemote, cfg.Backend)
	require.Equal(t, "https://gateway.example/prod", cfg.Control.BaseURL)
	require.Equal(t, cfg.Control.BaseURL, cfg.Control.FilesBaseURL)
	require.Equal(t, 36, cfg.Probe.MaxRetries)
	require.Equal(t, 1800, cfg.BudgetSeconds())
}

func TestApplyEnvRejectsBadValues(t *testing.T) {
	cfg := Default()
	lookup := func(key string) (string, bool) {
		if key == "LAB_PROBE_TIMEOUT" {
			return "soon", true
		}
		return "", false
	}
	err := applyEnv(cfg, lookup)
	require.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"remote without base url", func(c *Config) {}, false},
		{"remote with base url", func(c *Config) { c.Control.BaseURL = "http://x" }, true},
		{"docker", func(c *Config) { c.Backend = BackendDocker }, true},
		{"unknown backend", func(c *Config) { c.Backend = "lambda" }, false},
		{"zero budget", func(c *Config) { c.Backend = BackendDocker; c.Session.Budget.Duration = 0 }, false},
		{"negative retries", func(c *Config) { c.Backend = BackendDocker; c.Probe.MaxRetries = -1 }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrInvalid)
			}
		})
	}
}

func TestSessionConfig(t *testing.T) {
	cfg := Default()
	cfg.Session.Budget = Duration{10 * time.Minute}
	cfg.Probe.MaxRetries = 3

	sc := cfg.SessionConfig()
	require.Equal(t, 600, sc.BudgetSeconds)
	require.Equal(t, time.Second, sc.TickInterval)
	require.Equal(t, 30*time.Second, sc.StopTimeout)
	require.Equal(t, 3, sc.Probe.MaxRetries)
	require.Equal(t, 5*time.Second, sc.Probe.Timeout)
	require.Equal(t, 10*time.Second, sc.Probe.Interval)
}

func TestValidateServerRequiresAuthSecret(t *testing.T) {
	cfg := Default()
	cfg.Backend = BackendDocker
	require.NoError(t, cfg.Validate())
	require.ErrorIs(t, cfg.ValidateServer(), ErrInvalid)

	require.NoError(t, applyEnv(cfg, func(key string) (string, bool) {
		if key == "LAB_AUTH_SECRET" {
			return "s3cret", true
		}
		return "", false
	}))
	require.Equal(t, "s3cret", cfg.Auth.Secret)
	require.NoError(t, cfg.ValidateServer())
}
