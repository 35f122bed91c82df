package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_GlobalThenProjectThenCLI(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	globalDir := filepath.Join(home, GlobalConfigDir)
	require.NoError(t, os.MkdirAll(globalDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(globalDir, GlobalConfigFile), []byte(`{
		"defaults": {"maxParallel": 2, "timeout": 30},
		"providers": {"exa": {"apiKey": "$EXA_API_KEY", "enabled": true}}
	}`), 0o600))

	cwd := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cwd, ProjectConfigFile), []byte(`{
		"defaults": {"maxParallel": 6},
		"groups": {"default": ["exa"]}
	}`), 0o600))

	cfg, warnings, err := Load(cwd, map[string]interface{}{"defaults.timeout": 90})
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, 6, cfg.Defaults.MaxParallel, "project overrides global")
	assert.Equal(t, 90, cfg.Defaults.Timeout, "CLI overrides project")
	assert.True(t, cfg.Providers["exa"].Enabled)
	assert.Equal(t, []string{"exa"}, cfg.Groups["default"])
}

func TestLoad_NoFilesReturnsDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cwd := t.TempDir()

	cfg, warnings, err := Load(cwd, nil)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, DefaultOutputDir, cfg.Defaults.OutputDir)
	assert.Equal(t, ModeMixed, cfg.Defaults.Mode)
}

func TestResolveAPIKey_EnvRef(t *testing.T) {
	t.Setenv("MY_KEY", "secret-value")

	v, ok := ResolveAPIKey("$MY_KEY")
	require.True(t, ok)
	assert.Equal(t, "secret-value", v)

	v, ok = ResolveAPIKey("literal-value")
	require.True(t, ok)
	assert.Equal(t, "literal-value", v)

	_, ok = ResolveAPIKey("")
	assert.False(t, ok)
}

func TestResolveAPIKey_MissingEnvVar(t *testing.T) {
	os.Unsetenv("UNSET_FOR_TEST_XYZ")
	_, ok := ResolveAPIKey("$UNSET_FOR_TEST_XYZ")
	assert.False(t, ok)
}

func TestMigrateLegacyIDs_RewritesProviderGroupAndFallback(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Providers["gpt-researcher"] = ProviderEntry{Enabled: true}
	cfg.Providers["anthropic-research"] = ProviderEntry{Enabled: true, Fallback: "gpt-researcher"}
	cfg.Groups["default"] = []string{"gpt-researcher", "exa"}

	warnings := migrateLegacyIDs(&cfg)
	assert.NotEmpty(t, warnings)

	_, hasLegacy := cfg.Providers["gpt-researcher"]
	assert.False(t, hasLegacy)
	assert.True(t, cfg.Providers["openai-websearch"].Enabled)
	assert.Equal(t, []string{"openai-websearch", "exa"}, cfg.Groups["default"])
}

func TestMigrateLegacyIDs_CanonicalWinsWhenBothConfigured(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Providers["gpt-researcher"] = ProviderEntry{Enabled: true, Model: "legacy"}
	cfg.Providers["openai-websearch"] = ProviderEntry{Enabled: true, Model: "canonical"}

	warnings := migrateLegacyIDs(&cfg)
	assert.NotEmpty(t, warnings)
	assert.Equal(t, "canonical", cfg.Providers["openai-websearch"].Model)
	_, hasLegacy := cfg.Providers["gpt-researcher"]
	assert.False(t, hasLegacy)
}

func TestValidateFallbacks_SelfReferenceUnknownAndChain(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Providers["a"] = ProviderEntry{Enabled: true, Fallback: "a"}
	cfg.Providers["b"] = ProviderEntry{Enabled: true, Fallback: "missing"}
	cfg.Providers["c"] = ProviderEntry{Enabled: true, Fallback: "d"}
	cfg.Providers["d"] = ProviderEntry{Enabled: true, Fallback: "a"}

	// a: self-reference; b: unknown target; c->d and d->a: chains, since
	// both d and a have a fallback of their own.
	warnings := validateFallbacks(&cfg)
	assert.Len(t, warnings, 4)
}

func TestDecodeConfig_ParsesCustomProviders(t *testing.T) {
	store := NewStore()
	store.Set("customProviders.my-script.type", "script")
	store.Set("customProviders.my-script.command", "/usr/local/bin/my-provider")
	store.Set("customProviders.my-script.env.FOO", "bar")

	cfg := decodeConfig(store)
	entry := cfg.CustomProviders["my-script"]
	assert.Equal(t, "script", entry.Type)
	assert.Equal(t, "/usr/local/bin/my-provider", entry.Command)
	assert.Equal(t, "bar", entry.Env["FOO"])
}
