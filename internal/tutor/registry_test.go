package tutor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agritutor/agritutor/internal/tutor/driver/gemini"
	"github.com/agritutor/agritutor/internal/tutor/driver/openai"
)

func TestResolveModelOrder(t *testing.T) {
	providerCfg := ProviderInstanceConfig{AIProvider: "openai", Models: map[string]string{"default": "m-default", "lesson": "m-lesson"}}

	model, err := resolveModel(providerCfg, "lesson", "override")
	require.NoError(t, err)
	require.Equal(t, "override", model)

	model, err = resolveModel(providerCfg, "lesson", "")
	require.NoError(t, err)
	require.Equal(t, "m-lesson", model)

	model, err = resolveModel(providerCfg, "chat", "")
	require.NoError(t, err)
	require.Equal(t, "m-default", model)

	_, err = resolveModel(ProviderInstanceConfig{AIProvider: "openai"}, "chat", "")
	require.Error(t, err)

	model, err = resolveModel(ProviderInstanceConfig{AIProvider: "gemini"}, "chat", "")
	require.NoError(t, err)
	require.Equal(t, gemini.DefaultModel, model)
}

func TestResolveBuildsDrivers(t *testing.T) {
	reg := NewRegistry(Config{
		Routing: map[string]string{"vision": "vision"},
		Providers: map[string]ProviderInstanceConfig{
			"text":   {Enabled: true, AIProvider: "openai", Models: map[string]string{"default": "gpt"}, Roles: []string{"chat"}, Credentials: []CredentialConfig{{APIKey: "a"}}},
			"vision": {Enabled: true, AIProvider: "gemini", Credentials: []CredentialConfig{{APIKey: "b"}}},
		},
	})

	resolved, err := reg.Resolve("vision", "")
	require.NoError(t, err)
	require.Equal(t, "vision", resolved.ProviderID)
	_, ok := resolved.Driver.(*gemini.Client)
	require.True(t, ok)

	resolved, err = reg.Resolve("chat", "")
	require.NoError(t, err)
	require.Equal(t, "text", resolved.ProviderID)
	_, ok = resolved.Driver.(*openai.Client)
	require.True(t, ok)

	again, err := reg.Resolve("chat", "")
	require.NoError(t, err)
	require.Same(t, resolved.Driver, again.Driver)

	_, err = reg.Resolve("lesson", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no provider routing configured")
}

func TestResolveProviderErrors(t *testing.T) {
	reg := NewRegistry(Config{})
	_, err := reg.Resolve("chat", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no enabled providers")

	reg = NewRegistry(Config{
		DefaultProvider: "missing",
		Providers:       map[string]ProviderInstanceConfig{"gemini": {Enabled: true}},
	})
	_, err = reg.Resolve("chat", "")
	require.Error(t, err)

	reg = NewRegistry(Config{
		Providers: map[string]ProviderInstanceConfig{"x": {Enabled: true, AIProvider: "llama", Credentials: []CredentialConfig{{APIKey: "k"}}}},
	})
	_, err = reg.Resolve("chat", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported ai_provider")
}

func TestSelectCredentialRoundRobin(t *testing.T) {
	cfg := ProviderInstanceConfig{
		SelectionPolicy: "round_robin",
		Credentials: []CredentialConfig{
			{Enabled: true, Label: "low", APIKey: "k0", Priority: 1},
			{Enabled: true, Label: "a", APIKey: "k1", Priority: 5},
			{Enabled: true, Label: "b", APIKey: "k2", Priority: 5},
		},
	}
	reg := NewRegistry(Config{})
	next := func(group string, n int) int { return reg.rrIndex("p:"+group, n) }

	first, _, err := selectCredential(cfg, next)
	require.NoError(t, err)
	second, _, err := selectCredential(cfg, next)
	require.NoError(t, err)
	third, _, err := selectCredential(cfg, next)
	require.NoError(t, err)

	require.Equal(t, "a", first.Label)
	require.Equal(t, "b", second.Label)
	require.Equal(t, "a", third.Label)

	cfg.DefaultCredential = "B"
	forced, key, err := selectCredential(cfg, next)
	require.NoError(t, err)
	require.Equal(t, "b", forced.Label)
	require.Equal(t, "b", key)
}

func TestSelectCredentialWithoutKeys(t *testing.T) {
	cred, key, err := selectCredential(ProviderInstanceConfig{Credentials: []CredentialConfig{{}}}, nil)
	require.NoError(t, err)
	require.Empty(t, cred.APIKey)
	require.Equal(t, "0", key)

	_, _, err = selectCredential(ProviderInstanceConfig{}, nil)
	require.Error(t, err)
}
