// Package config provides centralized configuration management for AgriTutor.
// Layers, lowest first:
// Layer 1: built-in defaults (SetDefaults)
// Layer 2: user config file (--config or the XDG config directory)
// Layer 3: environment variables and runtime overrides
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/agritutor/agritutor/internal/appid"
	"github.com/agritutor/agritutor/internal/media"
	"github.com/agritutor/agritutor/internal/tutor"
)

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex
)

// EnvVarSpec defines environment variable mappings for config fields
// following the pattern: {PREFIX}{NAME} maps to config path
type EnvVarSpec = gfconfig.EnvVarSpec

// Environment variable types
const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// DefaultGeminiModel is the model used when a Gemini provider names none.
const DefaultGeminiModel = "gemini-1.5-flash"

// Load builds the configuration from the global viper instance.
//
// This function is safe to call multiple times (e.g., for config reload)
func Load(ctx context.Context, runtimeOverrides ...map[string]any) (*Config, error) {
	return LoadFrom(ctx, viper.GetViper(), runtimeOverrides...)
}

// LoadFrom builds the configuration from v, which carries defaults and any
// config file already read, then applies environment and runtime overrides.
func LoadFrom(ctx context.Context, v *viper.Viper, runtimeOverrides ...map[string]any) (*Config, error) {
	identity, err := appid.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load app identity: %w", err)
	}
	prefix := identity.Prefix()

	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)

	envOverrides, err := gfconfig.LoadEnvOverrides(getEnvSpecs(prefix))
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}
	if envOverrides == nil {
		envOverrides = map[string]any{}
	}
	applyTutorDynamicEnvOverrides(prefix, envOverrides)

	merged := viper.New()
	layers := append([]map[string]any{v.AllSettings(), envOverrides}, runtimeOverrides...)
	for _, layer := range layers {
		if len(layer) == 0 {
			continue
		}
		if err := merged.MergeConfigMap(layer); err != nil {
			return nil, fmt.Errorf("failed to merge config layer: %w", err)
		}
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(merged.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	applyGeminiKeyShortcut(prefix, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	setConfig(cfg)
	return cfg, nil
}

// SetDefaults registers built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "330s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_body_bytes", 16<<20)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	// Store defaults
	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	v.SetDefault("cache.ttl", "1h")
	v.SetDefault("catalog.path", "")

	// Tutor defaults
	v.SetDefault("tutor.default_provider", "gemini")
	v.SetDefault("tutor.default_timeout", "60s")
	v.SetDefault("tutor.max_tokens", 0)
	v.SetDefault("tutor.rate_limit_margin", 1.0)
	v.SetDefault("tutor.providers.gemini.enabled", true)
	v.SetDefault("tutor.providers.gemini.ai_provider", "gemini")
	v.SetDefault("tutor.providers.gemini.models.default", DefaultGeminiModel)

	// Media defaults
	def := media.DefaultOptions()
	v.SetDefault("media.max_bytes", def.MaxBytes)
	v.SetDefault("media.max_image_dimension", def.MaxImageDimension)
	v.SetDefault("media.jpeg_quality", def.JPEGQuality)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Health check defaults
	v.SetDefault("health.enabled", true)

	// Debug defaults
	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.pprof_enabled", false)
}

// Validate rejects settings that cannot work at runtime.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("invalid cache.ttl %s", c.Cache.TTL)
	}
	if c.Tutor.DefaultTimeout < 0 {
		return fmt.Errorf("invalid tutor.default_timeout %s", c.Tutor.DefaultTimeout)
	}
	if c.Tutor.RateLimitMargin < 0 || c.Tutor.RateLimitMargin > 1 {
		return fmt.Errorf("invalid tutor.rate_limit_margin %g", c.Tutor.RateLimitMargin)
	}
	for id, provider := range c.Tutor.Providers {
		if provider.RequestsPerMinute < 0 {
			return fmt.Errorf("provider %q: invalid requests_per_minute %d", id, provider.RequestsPerMinute)
		}
		if !provider.Enabled {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(provider.AIProvider)) {
		case "gemini", "google", "openai":
		default:
			return fmt.Errorf("provider %q: unsupported ai_provider %q", id, provider.AIProvider)
		}
	}
	return nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// getEnvSpecs returns environment variable specifications for config mapping
// Maps {PREFIX}{NAME} environment variables to config paths
func getEnvSpecs(prefix string) []EnvVarSpec {
	return []EnvVarSpec{
		// Server config
		{Name: prefix + "HOST", Path: []string{"server", "host"}, Type: EnvString},
		{Name: prefix + "PORT", Path: []string{"server", "port"}, Type: EnvInt},
		// Duration fields are parsed as strings and converted by mapstructure decode hook
		{Name: prefix + "READ_TIMEOUT", Path: []string{"server", "read_timeout"}, Type: EnvString},
		{Name: prefix + "WRITE_TIMEOUT", Path: []string{"server", "write_timeout"}, Type: EnvString},
		{Name: prefix + "IDLE_TIMEOUT", Path: []string{"server", "idle_timeout"}, Type: EnvString},
		{Name: prefix + "SHUTDOWN_TIMEOUT", Path: []string{"server", "shutdown_timeout"}, Type: EnvString},
		{Name: prefix + "MAX_BODY_BYTES", Path: []string{"server", "max_body_bytes"}, Type: EnvInt},

		{Name: prefix + "LOG_LEVEL", Path: []string{"logging", "level"}, Type: EnvString},
		{Name: prefix + "LOG_PROFILE", Path: []string{"logging", "profile"}, Type: EnvString},

		// Store config
		{Name: prefix + "DB_DRIVER", Path: []string{"store", "driver"}, Type: EnvString},
		{Name: prefix + "DB_PATH", Path: []string{"store", "path"}, Type: EnvString},
		{Name: prefix + "DB_URL", Path: []string{"store", "url"}, Type: EnvString},
		{Name: prefix + "DB_AUTH_TOKEN", Path: []string{"store", "auth_token"}, Type: EnvString},

		{Name: prefix + "CACHE_TTL", Path: []string{"cache", "ttl"}, Type: EnvString},
		{Name: prefix + "CATALOG_PATH", Path: []string{"catalog", "path"}, Type: EnvString},

		// Tutor config
		{Name: prefix + "TUTOR_DEFAULT_PROVIDER", Path: []string{"tutor", "default_provider"}, Type: EnvString},
		{Name: prefix + "TUTOR_DEFAULT_TIMEOUT", Path: []string{"tutor", "default_timeout"}, Type: EnvString},
		{Name: prefix + "TUTOR_TEMPERATURE", Path: []string{"tutor", "temperature"}, Type: EnvString},
		{Name: prefix + "TUTOR_MAX_TOKENS", Path: []string{"tutor", "max_tokens"}, Type: EnvInt},
		{Name: prefix + "TUTOR_RATE_LIMIT_MARGIN", Path: []string{"tutor", "rate_limit_margin"}, Type: EnvString},

		{Name: prefix + "MEDIA_MAX_BYTES", Path: []string{"media", "max_bytes"}, Type: EnvInt},
		{Name: prefix + "MEDIA_MAX_IMAGE_DIMENSION", Path: []string{"media", "max_image_dimension"}, Type: EnvInt},
		{Name: prefix + "MEDIA_JPEG_QUALITY", Path: []string{"media", "jpeg_quality"}, Type: EnvInt},

		// Metrics config
		{Name: prefix + "METRICS_ENABLED", Path: []string{"metrics", "enabled"}, Type: EnvBool},
		{Name: prefix + "METRICS_PORT", Path: []string{"metrics", "port"}, Type: EnvInt},

		{Name: prefix + "HEALTH_ENABLED", Path: []string{"health", "enabled"}, Type: EnvBool},

		// Debug config
		{Name: prefix + "DEBUG_ENABLED", Path: []string{"debug", "enabled"}, Type: EnvBool},
		{Name: prefix + "DEBUG_PPROF_ENABLED", Path: []string{"debug", "pprof_enabled"}, Type: EnvBool},
	}
}

func appNamesForPaths() (configName string, binaryName string) {
	configName = "agritutor"
	binaryName = "agritutor"
	identity, err := appid.Get(context.Background())
	if err != nil || identity == nil {
		return configName, binaryName
	}
	if strings.TrimSpace(identity.ConfigName) != "" {
		configName = identity.ConfigName
	}
	if strings.TrimSpace(identity.BinaryName) != "" {
		binaryName = identity.BinaryName
	}
	return configName, binaryName
}

// UserConfigPaths returns the user config file paths to check, most specific
// first.
func UserConfigPaths() []string {
	configName, binaryName := appNamesForPaths()
	var legacy []string
	if binaryName != configName {
		legacy = append(legacy, binaryName)
	}
	return gfconfig.GetAppConfigPaths(configName, legacy...)
}

// DefaultConfigDir returns the XDG-compliant config directory for the app.
func DefaultConfigDir() string {
	configName, _ := appNamesForPaths()
	return gfconfig.GetAppConfigDir(configName)
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := DefaultConfigDir()
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	configName, _ := appNamesForPaths()
	return gfconfig.GetAppDataDir(configName)
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	_, binaryName := appNamesForPaths()
	dataDir := DefaultDataDir()
	if strings.TrimSpace(dataDir) == "" {
		return "./" + binaryName + ".db"
	}
	return filepath.Join(dataDir, binaryName+".db")
}

// applyGeminiKeyShortcut adds {PREFIX}GEMINI_API_KEY as the credential of the
// gemini provider when that provider has no key of its own.
func applyGeminiKeyShortcut(prefix string, cfg *Config) {
	key := strings.TrimSpace(os.Getenv(prefix + "GEMINI_API_KEY"))
	if key == "" {
		return
	}
	provider, ok := cfg.Tutor.Providers["gemini"]
	if !ok {
		return
	}
	for _, cred := range provider.Credentials {
		if strings.TrimSpace(cred.APIKey) != "" {
			return
		}
	}
	provider.Credentials = []tutor.CredentialConfig{{Enabled: true, Label: "env", APIKey: key}}
	cfg.Tutor.Providers["gemini"] = provider
}

func applyTutorDynamicEnvOverrides(prefix string, envOverrides map[string]any) {
	providerPrefix := prefix + "TUTOR_PROVIDERS_"
	routingPrefix := prefix + "TUTOR_ROUTING_"

	for _, item := range os.Environ() {
		key, value, ok := strings.Cut(item, "=")
		if !ok {
			continue
		}
		if strings.TrimSpace(value) == "" {
			continue
		}

		switch {
		case strings.HasPrefix(key, providerPrefix):
			applyProviderOverride(envOverrides, key[len(providerPrefix):], value)
		case strings.HasPrefix(key, routingPrefix):
			applyRoutingOverride(envOverrides, key[len(routingPrefix):], value)
		}
	}
}

func applyRoutingOverride(envOverrides map[string]any, rawRole string, providerID string) {
	role := toSlug(rawRole)
	providerID = strings.TrimSpace(providerID)
	if role == "" || providerID == "" {
		return
	}

	tutorMap := ensureMap(envOverrides, "tutor")
	routing := ensureMap(tutorMap, "routing")
	routing[role] = providerID
}

// applyProviderOverride maps {ID}_{FIELD...} onto tutor.providers.{id}. The
// id is everything before the first recognised field word.
func applyProviderOverride(envOverrides map[string]any, raw string, value string) {
	parts := strings.Split(strings.TrimSpace(raw), "_")
	if len(parts) < 2 {
		return
	}

	section := -1
	for i, part := range parts {
		switch part {
		case "ENABLED", "AI", "BASE", "MODELS", "CREDENTIALS", "DEFAULT", "SELECTION", "ROLES", "API", "REQUESTS":
			section = i
		}
		if section != -1 {
			break
		}
	}
	if section <= 0 {
		return
	}

	providerID := strings.ToLower(strings.Join(parts[:section], "-"))
	value = strings.TrimSpace(value)

	tutorMap := ensureMap(envOverrides, "tutor")
	providers := ensureMap(tutorMap, "providers")
	provider := ensureMap(providers, providerID)

	rest := parts[section:]
	switch {
	case len(rest) == 1 && rest[0] == "ENABLED":
		provider["enabled"] = strings.EqualFold(value, "true")
	case len(rest) == 1 && rest[0] == "ROLES":
		provider["roles"] = value
	case len(rest) == 2 && rest[0] == "AI" && rest[1] == "PROVIDER":
		provider["ai_provider"] = strings.ToLower(value)
	case len(rest) == 2 && rest[0] == "API" && rest[1] == "KEY":
		creds := ensureSlice(provider, "credentials", 1)
		cred := ensureSliceMap(creds, 0)
		cred["api_key"] = value
		cred["enabled"] = true
	case len(rest) == 2 && rest[0] == "DEFAULT" && rest[1] == "CREDENTIAL":
		provider["default_credential"] = value
	case len(rest) == 2 && rest[0] == "SELECTION" && rest[1] == "POLICY":
		provider["selection_policy"] = strings.ToLower(value)
	case len(rest) == 2 && rest[0] == "BASE" && rest[1] == "URL":
		provider["base_url"] = value
	case len(rest) == 3 && rest[0] == "REQUESTS" && rest[1] == "PER" && rest[2] == "MINUTE":
		if parsed, err := strconv.Atoi(value); err == nil {
			provider["requests_per_minute"] = parsed
		}
	case len(rest) >= 2 && rest[0] == "MODELS":
		modelKey := strings.ToLower(strings.Join(rest[1:], "_"))
		models := ensureMap(provider, "models")
		models[modelKey] = value
	case len(rest) >= 3 && rest[0] == "CREDENTIALS":
		idx, err := strconv.Atoi(rest[1])
		if err != nil || idx < 0 {
			return
		}
		field := strings.ToLower(strings.Join(rest[2:], "_"))
		if field == "" {
			return
		}

		creds := ensureSlice(provider, "credentials", idx+1)
		cred := ensureSliceMap(creds, idx)
		switch field {
		case "priority":
			if parsed, err := strconv.Atoi(value); err == nil {
				cred[field] = parsed
			} else {
				cred[field] = value
			}
		case "enabled":
			cred[field] = strings.EqualFold(value, "true")
		default:
			cred[field] = value
		}
	}
}

func ensureMap(parent map[string]any, key string) map[string]any {
	if parent == nil {
		return map[string]any{}
	}
	if existing, ok := parent[key]; ok {
		if typed, ok := existing.(map[string]any); ok {
			return typed
		}
	}
	next := map[string]any{}
	parent[key] = next
	return next
}

func ensureSlice(parent map[string]any, key string, length int) []any {
	var existing []any
	if raw, ok := parent[key]; ok {
		existing, _ = raw.([]any)
	}
	for len(existing) < length {
		existing = append(existing, map[string]any{})
	}
	parent[key] = existing
	return existing
}

func ensureSliceMap(slice []any, idx int) map[string]any {
	if idx < 0 || idx >= len(slice) {
		return map[string]any{}
	}
	if typed, ok := slice[idx].(map[string]any); ok {
		return typed
	}
	m := map[string]any{}
	slice[idx] = m
	return m
}

func toSlug(raw string) string {
	parts := strings.Split(strings.TrimSpace(raw), "_")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		p := strings.ToLower(strings.TrimSpace(part))
		if p == "" {
			continue
		}
		clean = append(clean, p)
	}
	return strings.Join(clean, "-")
}
