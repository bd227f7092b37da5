package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Folders    FoldersConfig     `yaml:"folders"`
	SQLite     SQLiteConfig      `yaml:"sqlite"`
	Embedding  EmbeddingConfig   `yaml:"embedding"`
	Matching   MatchingConfig    `yaml:"matching"`
	Extraction ExtractionConfig  `yaml:"extraction"`
	Auth       AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Folders.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Matching.Validate(); err != nil {
		return err
	}
	if err := c.Extraction.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
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

// FoldersConfig holds the default inbox and archive directories. They seed
// the persisted settings on first start; afterwards the settings stored in
// SQLite win.
type FoldersConfig struct {
	Inbox      string `yaml:"inbox"`
	Archive    string `yaml:"archive"`
	Monitoring bool   `yaml:"monitoring"`
}

// Validate validates the folders configuration.
func (c *FoldersConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Inbox, validation.Required),
		validation.Field(&c.Archive, validation.Required),
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

// EmbeddingConfig holds the local embedding model configuration.
type EmbeddingConfig struct {
	Model    string `yaml:"model"`
	CacheDir string `yaml:"cache_dir"`
}

// MatchingConfig holds the similarity thresholds. Zero values fall back to
// the matcher defaults.
type MatchingConfig struct {
	KeywordFloor  float64 `yaml:"keyword_floor"`
	RuleThreshold float64 `yaml:"rule_threshold"`
}

// Validate validates the matching configuration.
func (c *MatchingConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.KeywordFloor, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.RuleThreshold, validation.Min(0.0), validation.Max(1.0)),
	)
}

// ExtractionConfig bounds content extraction. Zero values fall back to the
// extractor defaults.
type ExtractionConfig struct {
	MaxTextLen  int   `yaml:"max_text_len"`
	MaxFileSize int64 `yaml:"max_file_size"`
}

// Validate validates the extraction configuration.
func (c *ExtractionConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxTextLen, validation.Min(0)),
		validation.Field(&c.MaxFileSize, validation.Min(int64(0))),
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
	// Normalise empty mode to "disabled" for backward compatibility.
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

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Folders: FoldersConfig{
			Inbox:      "./inbox",
			Archive:    "./archive",
			Monitoring: true,
		},
		SQLite: SQLiteConfig{
			Path: "./othala.db",
		},
		Embedding: EmbeddingConfig{
			Model:    "BAAI/bge-small-en-v1.5",
			CacheDir: "./models",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
