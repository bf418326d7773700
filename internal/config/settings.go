package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/handiism/bandcamp-verificator/internal/model"
)

// Settings holds all configuration options.
type Settings struct {
	// Endpoints
	VerifyURL string `json:"verify_url" toml:"verify_url" validate:"required,url"`
	YumURL    string `json:"yum_url" toml:"yum_url" validate:"required,url"`
	Origin    string `json:"origin" toml:"origin" validate:"required,url"`
	Domain    string `json:"cookie_domain" toml:"cookie_domain" validate:"required"`
	UserAgent string `json:"user_agent" toml:"user_agent" validate:"required"`

	// Request behaviour
	TimeoutSec    int     `json:"timeout_sec" toml:"timeout_sec" validate:"gte=1"`
	MaxRetries    int     `json:"max_retries" toml:"max_retries" validate:"gte=0"`
	RetryCooldown float64 `json:"retry_cooldown" toml:"retry_cooldown" validate:"gte=0"`
	RetryExponent float64 `json:"retry_exponent" toml:"retry_exponent" validate:"gte=1"`

	// Rate limiting
	MinDelaySec int `json:"min_delay_sec" toml:"min_delay_sec" validate:"gte=0"`
	MaxDelaySec int `json:"max_delay_sec" toml:"max_delay_sec" validate:"gtefield=MinDelaySec"`

	// Limits
	MaxCodes          int `json:"max_codes" toml:"max_codes" validate:"gte=1"`
	MaxCodeLength     int `json:"max_code_length" toml:"max_code_length" validate:"gte=1"`
	MaxCrumbLength    int `json:"max_crumb_length" toml:"max_crumb_length" validate:"gte=1"`
	MaxClientIDLength int `json:"max_client_id_length" toml:"max_client_id_length" validate:"gte=1"`
	MaxSessionLength  int `json:"max_session_length" toml:"max_session_length" validate:"gte=1"`

	// Transport is "http" for direct API calls or "browser" for form submission.
	Transport string `json:"transport" toml:"transport" validate:"oneof=http browser"`

	// Output
	OutputPath   string `json:"output_path" toml:"output_path"`
	OutputFormat string `json:"output_format" toml:"output_format" validate:"oneof=csv json"`

	Credentials CredentialSettings `json:"credentials" toml:"credentials"`
	Browser     BrowserSettings    `json:"browser" toml:"browser"`
	Logging     LoggingSettings    `json:"logging" toml:"logging"`
	Server      ServerSettings     `json:"server" toml:"server"`
}

// CredentialSettings carries pre-obtained Bandcamp credentials.
// They are usually supplied through the environment rather than the file.
type CredentialSettings struct {
	ClientID string `json:"client_id,omitempty" toml:"client_id,omitempty"`
	Session  string `json:"session,omitempty" toml:"session,omitempty"`
	Identity string `json:"identity,omitempty" toml:"identity,omitempty"`
	Crumb    string `json:"crumb,omitempty" toml:"crumb,omitempty"`
}

// BrowserSettings configures the driven browser used for login and form submission.
type BrowserSettings struct {
	Headless             bool `json:"headless" toml:"headless"`
	NoSandbox            bool `json:"no_sandbox" toml:"no_sandbox"`
	NavigationTimeoutSec int  `json:"navigation_timeout_sec" toml:"navigation_timeout_sec" validate:"gte=1"`
	LoginTimeoutSec      int  `json:"login_timeout_sec" toml:"login_timeout_sec" validate:"gte=1"`
	LoginPollIntervalSec int  `json:"login_poll_interval_sec" toml:"login_poll_interval_sec" validate:"gte=1"`
	ResponseTimeoutSec   int  `json:"response_timeout_sec" toml:"response_timeout_sec" validate:"gte=1"`
	DOMCheckTimeoutSec   int  `json:"dom_check_timeout_sec" toml:"dom_check_timeout_sec" validate:"gte=0"`
}

// LoggingSettings configures the zap logger.
type LoggingSettings struct {
	Level  string `json:"level" toml:"level" validate:"oneof=debug info warn error"`
	Format string `json:"format" toml:"format" validate:"oneof=json text"`
	File   string `json:"file" toml:"file"`
}

// ServerSettings configures the HTTP service.
type ServerSettings struct {
	Host             string `json:"host" toml:"host" validate:"required"`
	Port             int    `json:"port" toml:"port" validate:"gte=1,lte=65535"`
	CSRFEnabled      bool   `json:"csrf_enabled" toml:"csrf_enabled"`
	SecureCookie     bool   `json:"secure_cookie" toml:"secure_cookie"`
	VerifyPerMinute  int    `json:"verify_per_minute" toml:"verify_per_minute" validate:"gte=1"`
	ExtractPerMinute int    `json:"extract_per_minute" toml:"extract_per_minute" validate:"gte=1"`
}

// DefaultSettings returns settings with default values.
func DefaultSettings() *Settings {
	return &Settings{
		VerifyURL: "https://bandcamp.com/api/codes/1/verify",
		YumURL:    "https://bandcamp.com/yum",
		Origin:    "https://bandcamp.com",
		Domain:    ".bandcamp.com",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/140.0.0.0 Safari/537.36 Edg/140.0.0.0",

		TimeoutSec:    25,
		MaxRetries:    3,
		RetryCooldown: 1.0,
		RetryExponent: 2.0,

		MinDelaySec: 1,
		MaxDelaySec: 5,

		MaxCodes:          2000,
		MaxCodeLength:     256,
		MaxCrumbLength:    512,
		MaxClientIDLength: 128,
		MaxSessionLength:  4096,

		Transport: "http",

		OutputPath:   "results.csv",
		OutputFormat: "csv",

		Browser: BrowserSettings{
			Headless:             true,
			NavigationTimeoutSec: 15,
			LoginTimeoutSec:      60,
			LoginPollIntervalSec: 2,
			ResponseTimeoutSec:   10,
			DOMCheckTimeoutSec:   3,
		},

		Logging: LoggingSettings{
			Level:  "info",
			Format: "json",
			File:   "verificator.log",
		},

		Server: ServerSettings{
			Host:             "127.0.0.1",
			Port:             5000,
			CSRFEnabled:      true,
			SecureCookie:     true,
			VerifyPerMinute:  10,
			ExtractPerMinute: 5,
		},
	}
}

// Load reads settings from a JSON or TOML file, chosen by extension.
// A missing file yields the defaults.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return nil, err
	}

	settings := DefaultSettings()
	if isTOML(path) {
		err = toml.Unmarshal(data, settings)
	} else {
		err = json.Unmarshal(data, settings)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return settings, nil
}

// Save writes settings to a JSON or TOML file, chosen by extension.
func (s *Settings) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		data, err = toml.Marshal(s)
	} else {
		data, err = json.MarshalIndent(s, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// ApplyEnv overrides credentials with BANDCAMP_* environment variables.
func (s *Settings) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv("BANDCAMP_CLIENT_ID"); v != "" {
		s.Credentials.ClientID = v
	}
	if v := getenv("BANDCAMP_SESSION"); v != "" {
		s.Credentials.Session = v
	}
	if v := getenv("BANDCAMP_IDENTITY"); v != "" {
		s.Credentials.Identity = v
	}
	if v := getenv("BANDCAMP_CRUMB"); v != "" {
		s.Credentials.Crumb = v
	}
}

// Validate checks value ranges, e.g. that MinDelaySec does not exceed MaxDelaySec.
func (s *Settings) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

// HasCredentials reports whether client_id, session and crumb are all configured.
func (s *Settings) HasCredentials() bool {
	c := s.Credentials
	return c.ClientID != "" && c.Session != "" && c.Crumb != ""
}

// ToCredentials converts the configured credentials to model.Credentials.
func (s *Settings) ToCredentials() model.Credentials {
	return model.Credentials{
		ClientID: s.Credentials.ClientID,
		Session:  s.Credentials.Session,
		Identity: s.Credentials.Identity,
		Crumb:    s.Credentials.Crumb,
	}
}

// ToLimits converts the length caps to model.Limits.
func (s *Settings) ToLimits() model.Limits {
	return model.Limits{
		MaxCodeLength:     s.MaxCodeLength,
		MaxCrumbLength:    s.MaxCrumbLength,
		MaxClientIDLength: s.MaxClientIDLength,
		MaxSessionLength:  s.MaxSessionLength,
	}
}

// Timeout returns the per-request timeout.
func (s *Settings) Timeout() time.Duration {
	return time.Duration(s.TimeoutSec) * time.Second
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}
