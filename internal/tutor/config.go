package tutor

import "time"

// Config defines model provider configuration for the tutor.
type Config struct {
	DefaultProvider string        `mapstructure:"default_provider"`
	DefaultTimeout  time.Duration `mapstructure:"default_timeout"`

	// Temperature and MaxTokens are sent with every request when set.
	Temperature *float64 `mapstructure:"temperature"`
	MaxTokens   int      `mapstructure:"max_tokens"`

	// Providers is a set of provider instances keyed by a user-defined id.
	// Each instance declares its underlying driver via AIProvider.
	Providers map[string]ProviderInstanceConfig `mapstructure:"providers"`

	// RateLimitMargin scales requests_per_minute budgets, in (0,1].
	RateLimitMargin float64 `mapstructure:"rate_limit_margin"`

	// Routing maps a role (chat, lesson, template, vision) to a provider id.
	Routing map[string]string `mapstructure:"routing"`
}

// ProviderInstanceConfig defines a configured provider instance (e.g. "gemini").
type ProviderInstanceConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// AIProvider is the driver identifier: "gemini" or "openai".
	AIProvider string `mapstructure:"ai_provider"`

	// SelectionPolicy controls which credential is chosen.
	// Supported values: "priority" (default), "round_robin".
	SelectionPolicy string `mapstructure:"selection_policy"`

	// DefaultCredential, if set, forces selecting the matching credential label.
	DefaultCredential string `mapstructure:"default_credential"`

	BaseURL string            `mapstructure:"base_url"`
	Models  map[string]string `mapstructure:"models"`
	Roles   []string          `mapstructure:"roles"`

	// RequestsPerMinute caps calls to this provider. Zero means no cap.
	RequestsPerMinute int `mapstructure:"requests_per_minute"`

	Credentials []CredentialConfig `mapstructure:"credentials"`
}

// CredentialConfig is a single API key for a provider instance.
type CredentialConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Label    string `mapstructure:"label"`
	APIKey   string `mapstructure:"api_key"`
	Priority int    `mapstructure:"priority"`
}

// Roles used for routing.
const (
	RoleChat     = "chat"
	RoleTemplate = "template"
	RoleLesson   = "lesson"
	RoleVision   = "vision"
)
