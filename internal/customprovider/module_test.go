package customprovider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanix-darker/librarium/internal/config"
	"github.com/sanix-darker/librarium/internal/installdetect"
	"github.com/sanix-darker/librarium/internal/provider"
)

func TestLoadModule_SkipsWhenInstallMethodDoesNotSupportPlugins(t *testing.T) {
	entry := config.CustomProviderEntry{Type: "npm", Module: "acme-search"}

	p, reason, err := LoadModule("acme", entry, provider.Entry{ID: "acme"}, installdetect.MethodHomebrew)

	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Contains(t, reason, "unavailable under install method")
}

func TestLoadModule_SkipsWhenModuleNotFound(t *testing.T) {
	entry := config.CustomProviderEntry{Type: "npm", Module: "does-not-exist-anywhere"}

	p, reason, err := LoadModule("acme", entry, provider.Entry{ID: "acme"}, installdetect.MethodSource)

	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Contains(t, reason, "not found")
}

func TestLoadModule_SkipsWhenModuleFieldEmpty(t *testing.T) {
	entry := config.CustomProviderEntry{Type: "npm"}

	p, reason, err := LoadModule("acme", entry, provider.Entry{ID: "acme"}, installdetect.MethodGoInstall)

	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Contains(t, reason, "not found")
}

type fakeModuleProvider struct {
	provider.Base
	desc provider.Descriptor
}

func (f fakeModuleProvider) Descriptor() provider.Descriptor { return f.desc }

func TestValidateLoaded_RejectsMismatchedID(t *testing.T) {
	p := fakeModuleProvider{desc: provider.Descriptor{ID: "other", Source: provider.SourceNPM}}

	err := validateLoaded("acme", p)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match configured id")
}

func TestValidateLoaded_RejectsMissingEnvVarWhenAPIKeyRequired(t *testing.T) {
	p := fakeModuleProvider{desc: provider.Descriptor{ID: "acme", RequiresAPIKey: true, Source: provider.SourceNPM}}

	err := validateLoaded("acme", p)

	require.Error(t, err)
}

func TestValidateLoaded_RejectsNilProvider(t *testing.T) {
	err := validateLoaded("acme", nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil provider")
}

func TestValidateLoaded_AcceptsWellFormedProvider(t *testing.T) {
	p := fakeModuleProvider{desc: provider.Descriptor{ID: "acme", Source: provider.SourceNPM}}

	assert.NoError(t, validateLoaded("acme", p))
}

func TestOptionsOf_NilWhenNoArgs(t *testing.T) {
	assert.Nil(t, optionsOf(config.CustomProviderEntry{}))
}

func TestOptionsOf_WrapsArgsWhenPresent(t *testing.T) {
	opts := optionsOf(config.CustomProviderEntry{Args: []string{"--flag"}})

	require.NotNil(t, opts)
	assert.Equal(t, []string{"--flag"}, opts["args"])
}

func TestResolveModulePath_MissingModuleNotFound(t *testing.T) {
	_, found := resolveModulePath("nonexistent-module-xyz")
	assert.False(t, found)
}

func TestResolveModulePath_EmptyNameNotFound(t *testing.T) {
	_, found := resolveModulePath("")
	assert.False(t, found)
}
