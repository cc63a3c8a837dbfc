package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override the file, loaded from the process
// environment (and a .env file, see cmd/concertcal).
const (
	EnvBackendURL = "CONCERTCAL_BACKEND_URL"
	EnvTokenFile  = "CONCERTCAL_TOKEN_FILE"
	EnvListen     = "CONCERTCAL_LISTEN"
)

const (
	defaultListen      = "127.0.0.1:8080"
	defaultLogLevel    = "info"
	defaultBackendURL  = "http://127.0.0.1:3000"
	defaultTimeout     = 15 * time.Second
	defaultTokenFile   = "./var/token"
	defaultRefreshCron = "*/15 * * * *"
	defaultStale       = "discard"
	defaultCaptureW    = 984
	defaultCaptureH    = 1304
)

// ICSConfig describes an extra concert feed merged into the calendar.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used as concert source and in logs.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
}

// BackendConfig points at the concert API.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url" json:"base_url"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// BasicAuthConfig protects the Web UI/API. PasswordHash is an argon2id
// hash as printed by `concertcal hash-password`.
type BasicAuthConfig struct {
	Username     string `yaml:"username" json:"username"`
	PasswordHash string `yaml:"password_hash" json:"-"`
}

// CaptureConfig controls the PNG snapshot of the calendar page.
type CaptureConfig struct {
	// OutputPath enables the scheduled snapshot when non-empty.
	OutputPath string `yaml:"output_path" json:"output_path"`
	Width      int    `yaml:"width" json:"width"`
	Height     int    `yaml:"height" json:"height"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	Backend BackendConfig `yaml:"backend" json:"backend"`

	// TokenFile stores the backend JWT between runs.
	TokenFile string `yaml:"token_file" json:"token_file"`

	// RefreshCron is a cron-style schedule (e.g. "*/15 * * * *") for
	// refetching the displayed month.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// StaleFetches selects how overlapping month fetches resolve:
	//   - "discard" (default): only the latest dispatched fetch is applied
	//   - "last_write_wins": whichever fetch resolves last is applied
	StaleFetches string `yaml:"stale_fetches" json:"stale_fetches"`

	// ICS is the list of extra concert feeds.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	Capture CaptureConfig `yaml:"capture" json:"capture"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:   defaultListen,
		LogLevel: defaultLogLevel,
		Backend: BackendConfig{
			BaseURL: defaultBackendURL,
			Timeout: defaultTimeout,
		},
		TokenFile:    defaultTokenFile,
		RefreshCron:  defaultRefreshCron,
		StaleFetches: defaultStale,
		ICS:          []ICSConfig{},
		Capture: CaptureConfig{
			Width:  defaultCaptureW,
			Height: defaultCaptureH,
		},
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = defaultBackendURL
	}
	if c.Backend.Timeout <= 0 {
		c.Backend.Timeout = defaultTimeout
	}
	if c.TokenFile == "" {
		c.TokenFile = defaultTokenFile
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	switch c.StaleFetches {
	case "discard", "last_write_wins":
	default:
		c.StaleFetches = defaultStale
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	for i := range c.ICS {
		if c.ICS[i].ID == "" {
			if c.ICS[i].Name != "" {
				c.ICS[i].ID = c.ICS[i].Name
			} else {
				c.ICS[i].ID = fmt.Sprintf("ics-%d", i+1)
			}
		}
	}
	if c.Capture.Width <= 0 {
		c.Capture.Width = defaultCaptureW
	}
	if c.Capture.Height <= 0 {
		c.Capture.Height = defaultCaptureH
	}
}

// ApplyEnv overrides file values with the CONCERTCAL_* variables that are set.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv(EnvBackendURL); v != "" {
		c.Backend.BaseURL = v
	}
	if v := getenv(EnvTokenFile); v != "" {
		c.TokenFile = v
	}
	if v := getenv(EnvListen); v != "" {
		c.Listen = v
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms (creating the parent directory) and returned.
//   - Otherwise the YAML is read, unmarshalled and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file in the same directory,
// then rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, ".concertcal-config-*.tmp")
}

// Save is a convenience method on Config that delegates to Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

// WriteFileAtomic writes data next to path under a temp name matching
// pattern, syncs it, sets 0600 and renames it over path. The parent
// directory is created with 0700 if needed.
func WriteFileAtomic(path string, data []byte, pattern string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
