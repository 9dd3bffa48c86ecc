package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// GoogleOAuthConfig holds the Google OAuth client settings used for the
// login handshake and the Calendar read API.
type GoogleOAuthConfig struct {
	ClientID     string `yaml:"client_id" json:"client_id"`
	ClientSecret string `yaml:"client_secret" json:"client_secret"`
	// RedirectURI must exactly match one of the redirect URIs registered
	// in the Google Cloud console (e.g. "http://127.0.0.1:8080/oauth2/callback").
	RedirectURI string `yaml:"redirect_uri" json:"redirect_uri"`
	// StateSecret is the server-side key used to sign OAuth state tokens.
	// 로그에 절대 남기면 안 된다.
	StateSecret string `yaml:"state_secret" json:"state_secret"`
	// CalendarID selects which calendar is queried for event-day markers.
	CalendarID string `yaml:"calendar_id" json:"calendar_id"`
}

// ICSConfig describes a single ICS subscription source. ICS sources are
// consulted for event-day markers when the user is not logged in with Google.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label shown in the UI.
	Name string `yaml:"name" json:"name"`
}

// SnapshotConfig controls the periodic PNG capture of the calendar page.
type SnapshotConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	OutputPath string `yaml:"output_path" json:"output_path"`
	Width      int    `yaml:"width" json:"width"`
	Height     int    `yaml:"height" json:"height"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used for display purposes (e.g. "Asia/Seoul").
	// Month-boundary queries against event providers always use UTC regardless
	// of this setting.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart controls which weekday is treated as the first day of the week
	// in the calendar grid. Supported values:
	//   - "sunday" (default)
	//   - "monday"
	WeekStart string `yaml:"week_start" json:"week_start"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *") used
	// for the periodic marker-cache refresh, snapshot capture, and session sweep.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// SessionTTLHours is how long an idle browser session survives before the
	// sweep removes it.
	SessionTTLHours int `yaml:"session_ttl_hours" json:"session_ttl_hours"`

	// GoogleOAuth configures login and the Calendar read API. If nil, the
	// login button is disabled and only ICS sources (if any) drive markers.
	GoogleOAuth *GoogleOAuthConfig `yaml:"google_oauth,omitempty" json:"google_oauth,omitempty"`

	// ICS is the list of subscribed ICS sources.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// Snapshot, if enabled, captures the rendered calendar page to PNG on the
	// refresh schedule and serves it at /preview.png.
	Snapshot SnapshotConfig `yaml:"snapshot" json:"snapshot"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:          "127.0.0.1:8080",
		Timezone:        "Asia/Seoul",
		WeekStart:       "sunday",
		RefreshCron:     "*/15 * * * *",
		SessionTTLHours: 24,
		GoogleOAuth:     nil,
		ICS:             []ICSConfig{},
		Snapshot: SnapshotConfig{
			Enabled:    false,
			OutputPath: "/var/lib/barojab/preview.png",
			Width:      984,
			Height:     1304,
		},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "Asia/Seoul"
	}
	// WeekStart default & validation. The source fixes Sunday-first, so an
	// unknown value falls back to sunday rather than surprising layouts.
	switch c.WeekStart {
	case "sunday", "monday":
		// ok
	default:
		c.WeekStart = "sunday"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/15 * * * *"
	}
	if c.SessionTTLHours <= 0 {
		c.SessionTTLHours = 24
	}
	if c.GoogleOAuth != nil && c.GoogleOAuth.CalendarID == "" {
		c.GoogleOAuth.CalendarID = "primary"
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	if c.Snapshot.OutputPath == "" {
		c.Snapshot.OutputPath = "/var/lib/barojab/preview.png"
	}
	if c.Snapshot.Width <= 0 {
		c.Snapshot.Width = 984
	}
	if c.Snapshot.Height <= 0 {
		c.Snapshot.Height = 1304
	}
}

// LoginEnabled reports whether the Google login flow is fully configured.
func (c *Config) LoginEnabled() bool {
	g := c.GoogleOAuth
	if g == nil {
		return false
	}
	return g.ClientID != "" && g.ClientSecret != "" && g.RedirectURI != "" && g.StateSecret != ""
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
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
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// The config carries the OAuth client secret and state-signing key, so the
// file is written atomically (temp file + rename) and ends up with 0600 perms.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".barojab-config-*.tmp")
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
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	return nil
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
