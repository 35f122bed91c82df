package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_LoadJSONFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, writeFile(path, `{"defaults":{"maxParallel":4,"mode":"mixed"},"providers":{"exa":{"enabled":true}}}`))

	s := NewStore()
	require.NoError(t, s.LoadJSONFile(path))
	assert.Equal(t, 4, s.GetInt("defaults.maxParallel"))
	assert.Equal(t, "mixed", s.GetString("defaults.mode"))
	assert.True(t, s.GetBool("providers.exa.enabled"))
}

func TestStore_Merge_OverridesOnlyExplicitValues(t *testing.T) {
	base := NewStore()
	base.Set("defaults.maxParallel", 4)
	base.Set("defaults.timeout", 30)

	override := NewStore()
	override.Set("defaults.maxParallel", 8)

	merged := NewStore()
	merged.Merge(base).Merge(override)

	assert.Equal(t, 8, merged.GetInt("defaults.maxParallel"))
	assert.Equal(t, 30, merged.GetInt("defaults.timeout"))
}

func TestStore_SaveJSONFile_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	s := NewStore()
	s.Set("defaults.maxParallel", 4)
	s.Set("providers.exa.enabled", true)
	require.NoError(t, s.SaveJSONFile(path, 0o600))

	reloaded := NewStore()
	require.NoError(t, reloaded.LoadJSONFile(path))
	assert.Equal(t, 4, reloaded.GetInt("defaults.maxParallel"))
	assert.True(t, reloaded.GetBool("providers.exa.enabled"))
}

func TestStore_ChildKeys(t *testing.T) {
	s := NewStore()
	s.Set("providers.exa.enabled", true)
	s.Set("providers.tavily.enabled", false)
	s.Set("defaults.mode", "sync")

	keys := s.ChildKeys("providers")
	assert.ElementsMatch(t, []string{"exa", "tavily"}, keys)
}

func TestStore_Sub_ReturnsNilWhenEmpty(t *testing.T) {
	s := NewStore()
	assert.Nil(t, s.Sub("providers.missing"))
}

func TestStore_Delete_RemovesExplicitValue(t *testing.T) {
	s := NewStore()
	s.Set("groups.fast", []string{"exa", "tavily"})

	s.Delete("groups.fast")

	assert.False(t, s.IsSet("groups.fast"))
}

func writeFile(path, content string) error {
	return AtomicWriteFile(path, []byte(content), 0o600)
}
