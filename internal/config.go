package internal

import (
	"fmt"
	"log/slog"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/text/language"

	"github.com/starford/wikistore/internal/wikidata"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

var suffixRe = regexp.MustCompile(`^\.[^./\\]+$`)

// Config represents the application configuration.
type Config struct {
	App  ApplicationConfig `yaml:"app"`
	Wiki WikiConfig        `yaml:"wiki"`
	Auth AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Wiki.Validate(); err != nil {
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

// WikiConfig describes the wiki data directory and its cache.
type WikiConfig struct {
	DataDir           string `yaml:"data_dir"`
	PageSuffix        string `yaml:"page_suffix"`
	RootWord          string `yaml:"root_word"`
	Backend           string `yaml:"backend"`
	ASCIIFilenames    bool   `yaml:"ascii_filenames"`
	MaxFilenameLength int    `yaml:"max_filename_length"`
	ReadOnly          bool   `yaml:"read_only"`
	AutoMigrate       bool   `yaml:"auto_migrate"`
	// Collation is a BCP 47 tag ordering link suggestions; empty means root order.
	Collation         string `yaml:"collation"`
}

// Validate validates the wiki configuration.
func (c *WikiConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DataDir, validation.Required),
		validation.Field(&c.RootWord, validation.Required),
		validation.Field(&c.PageSuffix, validation.Required, validation.Length(2, 16),
			validation.Match(suffixRe).Error("must start with a dot")),
		validation.Field(&c.Backend, validation.Required,
			validation.In(wikidata.BackendSQLite, wikidata.BackendLite)),
		validation.Field(&c.MaxFilenameLength, validation.Required, validation.Min(16), validation.Max(250)),
		validation.Field(&c.Collation, validation.By(languageTag)),
	)
}

func languageTag(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := language.Parse(s); err != nil {
		return fmt.Errorf("invalid language tag %q", s)
	}
	return nil
}

// Wikidata converts the section into the store configuration.
func (c *WikiConfig) Wikidata() wikidata.Config {
	return wikidata.Config{
		DataDir:           c.DataDir,
		PageSuffix:        c.PageSuffix,
		RootWord:          c.RootWord,
		Backend:           c.Backend,
		ASCIIFilenames:    c.ASCIIFilenames,
		MaxFilenameLength: c.MaxFilenameLength,
		ReadOnly:          c.ReadOnly,
		AutoMigrate:       c.AutoMigrate,
	}
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
		Wiki: WikiConfig{
			DataDir:           "./data",
			PageSuffix:        ".wiki",
			RootWord:          "WikiHome",
			Backend:           wikidata.BackendSQLite,
			MaxFilenameLength: 120,
			AutoMigrate:       true,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
