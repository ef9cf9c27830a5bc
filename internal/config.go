package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/synapse/internal/briefing"
	"github.com/starford/synapse/internal/directive"
	"github.com/starford/synapse/internal/oracle"
	"github.com/starford/synapse/internal/search"
	"github.com/starford/synapse/internal/vault"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Vault    VaultConfig       `yaml:"vault"`
	SQLite   SQLiteConfig      `yaml:"sqlite"`
	Auth     AuthConfig        `yaml:"auth"`
	Oracle   OracleConfig      `yaml:"oracle"`
	Search   SearchConfig      `yaml:"search"`
	Briefing BriefingConfig    `yaml:"briefing"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return fmt.Errorf("vault: %w", err)
	}
	if err := c.SQLite.Validate(); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Oracle.Validate(); err != nil {
		return fmt.Errorf("oracle: %w", err)
	}
	if err := c.Search.Validate(); err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if err := c.Briefing.Validate(); err != nil {
		return fmt.Errorf("briefing: %w", err)
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig describes the markdown vault and its filing folders.
type VaultConfig struct {
	Path              string   `yaml:"path"`
	Categories        []string `yaml:"categories"`
	DefaultCategory   string   `yaml:"default_category"`
	DirectivesPath    string   `yaml:"directives_path"`
	AttachmentsFolder string   `yaml:"attachments_folder"`
	ProjectsFolder    string   `yaml:"projects_folder"`
}

// Validate validates the vault configuration. The default category must be
// one of the categories.
func (c *VaultConfig) Validate() error {
	cats := make([]any, len(c.Categories))
	for i, cat := range c.Categories {
		cats[i] = cat
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Categories, validation.Required),
		validation.Field(&c.DefaultCategory, validation.Required, validation.In(cats...)),
		validation.Field(&c.DirectivesPath, validation.Required),
		validation.Field(&c.AttachmentsFolder, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// OracleConfig configures the Gemini oracle. An empty APIKey leaves the
// oracle unavailable: every message then gets the generic failure reply.
type OracleConfig struct {
	APIKey            string        `yaml:"api_key"`
	Model             string        `yaml:"model"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	Burst             int           `yaml:"burst"`
}

// Validate validates the oracle configuration.
func (c *OracleConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Model, validation.Required),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.RequestsPerMinute, validation.Min(0)),
		validation.Field(&c.Burst, validation.Min(0)),
	)
}

// SearchConfig tunes the search engine.
type SearchConfig struct {
	TopN          int `yaml:"top_n"`
	SnippetWindow int `yaml:"snippet_window"`
}

// Validate validates the search configuration.
func (c *SearchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TopN, validation.Required, validation.Min(1)),
		validation.Field(&c.SnippetWindow, validation.Required, validation.Min(20)),
	)
}

// BriefingConfig schedules the daily briefing.
type BriefingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Schedule    string `yaml:"schedule"`
	RecentHours int    `yaml:"recent_hours"`
}

// Validate validates the briefing configuration.
func (c *BriefingConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Schedule, validation.Required, validation.By(func(any) error {
			if !briefing.ValidSchedule(c.Schedule) {
				return errors.New("must be a valid cron expression")
			}
			return nil
		})),
		validation.Field(&c.RecentHours, validation.Required, validation.Min(1)),
	)
}

// RecentWindow returns how far back recent captures reach.
func (c *BriefingConfig) RecentWindow() time.Duration {
	return time.Duration(c.RecentHours) * time.Hour
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path:              "./vault",
			Categories:        append([]string(nil), vault.DefaultCategories...),
			DefaultCategory:   "Inbox",
			DirectivesPath:    directive.DefaultPath,
			AttachmentsFolder: "Attachments",
			ProjectsFolder:    "Projects",
		},
		SQLite: SQLiteConfig{
			Path: "./synapse.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Oracle: OracleConfig{
			Model:             oracle.DefaultModel,
			Timeout:           60 * time.Second,
			RequestsPerMinute: 30,
			Burst:             5,
		},
		Search: SearchConfig{
			TopN:          search.DefaultTopN,
			SnippetWindow: search.DefaultWindow,
		},
		Briefing: BriefingConfig{
			Enabled:     true,
			Schedule:    briefing.DefaultSchedule,
			RecentHours: 24,
		},
	}
}
