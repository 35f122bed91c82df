// Package config implements the layered configuration system: a minimal
// dot-notation Store (store.go, a deliberate non-viper replacement
// carried over from this project's CLI ancestor) plus the Config domain
// type, three-layer merge, env-ref resolution, legacy-id migration, and
// fallback validation.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	homedir "github.com/mitchellh/go-homedir"

	"github.com/sanix-darker/librarium/internal/provider"
)

const (
	// GlobalConfigDir is relative to the user's home directory.
	GlobalConfigDir  = ".config/librarium"
	GlobalConfigFile = "config.json"

	// ProjectConfigFile is looked up in the current working directory.
	ProjectConfigFile = ".librarium.json"

	// DefaultOutputDir is used when defaults.outputDir is unset.
	DefaultOutputDir = "./agents/librarium"
)

// Mode mirrors provider.DispatchMode as a plain string so config decoding
// doesn't need to know about dispatch semantics.
type Mode string

const (
	ModeSync  Mode = "sync"
	ModeAsync Mode = "async"
	ModeMixed Mode = "mixed"
)

// Defaults holds the run-wide defaults.
type Defaults struct {
	OutputDir         string `json:"outputDir"`
	MaxParallel       int    `json:"maxParallel"`
	Timeout           int    `json:"timeout"`           // seconds
	AsyncTimeout      int    `json:"asyncTimeout"`      // seconds
	AsyncPollInterval int    `json:"asyncPollInterval"` // seconds
	Mode              Mode   `json:"mode"`
}

// ProviderEntry is one entry under "providers" in the config.
type ProviderEntry struct {
	APIKey   string                 `json:"apiKey,omitempty"`
	Enabled  bool                   `json:"enabled"`
	Model    string                 `json:"model,omitempty"`
	Options  map[string]interface{} `json:"options,omitempty"`
	Fallback string                 `json:"fallback,omitempty"`
}

// CustomProviderEntry is one entry under "customProviders".
type CustomProviderEntry struct {
	Type string `json:"type"` // "npm" | "script"

	// npm loader
	Module string `json:"module,omitempty"`

	// script loader
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`

	DisplayName string `json:"displayName,omitempty"`
}

// Config is the fully-merged configuration.
type Config struct {
	Version            int                            `json:"version"`
	Defaults           Defaults                       `json:"defaults"`
	Providers          map[string]ProviderEntry       `json:"providers"`
	CustomProviders    map[string]CustomProviderEntry `json:"customProviders"`
	TrustedProviderIDs map[string]struct{}            `json:"-"`
	Groups             map[string][]string            `json:"groups"`
}

// Warning is a non-fatal diagnostic produced while loading or validating a
// Config (legacy-id rewrites, fallback problems, skipped plugins).
type Warning struct {
	Message string
}

func (w Warning) String() string { return w.Message }

// NewDefaultConfig returns a Config with its documented defaults and no
// providers/groups configured yet.
func NewDefaultConfig() Config {
	return Config{
		Version: 1,
		Defaults: Defaults{
			OutputDir:         DefaultOutputDir,
			MaxParallel:       4,
			Timeout:           60,
			AsyncTimeout:      600,
			AsyncPollInterval: 10,
			Mode:              ModeMixed,
		},
		Providers:          map[string]ProviderEntry{},
		CustomProviders:    map[string]CustomProviderEntry{},
		TrustedProviderIDs: map[string]struct{}{},
		Groups:             map[string][]string{},
	}
}

// GlobalConfigPath returns $HOME/.config/librarium/config.json.
func GlobalConfigPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, GlobalConfigDir, GlobalConfigFile), nil
}

// Load implements the three-layer merge: global file, then project file,
// then CLI overrides, each overriding the previous key by key.
// providers/customProviders/trustedProviderIds are global-only: those keys
// are dropped from the project file before it is merged. The project file
// may still override defaults and add or replace groups.
//
// cliDefaults carries CLI flag overrides already resolved to defaults.*
// dot-keys (e.g. "defaults.maxParallel"); cwd is the directory to look
// for ProjectConfigFile in.
func Load(cwd string, cliDefaults map[string]interface{}) (*Config, []Warning, error) {
	var warnings []Warning

	store := NewStore()

	if globalPath, err := GlobalConfigPath(); err == nil {
		if _, statErr := os.Stat(globalPath); statErr == nil {
			gs := NewStore()
			if err := gs.LoadFile(globalPath); err != nil {
				return nil, nil, fmt.Errorf("failed to load global config %s: %w", globalPath, err)
			}
			store.Merge(gs)
		}
	}

	projectPath := filepath.Join(cwd, ProjectConfigFile)
	if _, err := os.Stat(projectPath); err == nil {
		ps := NewStore()
		if err := ps.LoadFile(projectPath); err != nil {
			return nil, nil, fmt.Errorf("failed to load project config %s: %w", projectPath, err)
		}
		for k := range ps.data {
			if strings.HasPrefix(k, "providers.") || strings.HasPrefix(k, "customProviders.") || k == "trustedProviderIds" {
				delete(ps.data, k)
			}
		}
		store.Merge(ps)
	}

	if len(cliDefaults) > 0 {
		cs := NewStore()
		for k, v := range cliDefaults {
			cs.Set(k, v)
		}
		store.Merge(cs)
	}

	cfg := decodeConfig(store)

	migWarnings := migrateLegacyIDs(&cfg)
	warnings = append(warnings, migWarnings...)

	warnings = append(warnings, validateFallbacks(&cfg)...)

	return &cfg, warnings, nil
}

func decodeConfig(store *Store) Config {
	cfg := NewDefaultConfig()

	if v := store.GetInt("version"); v != 0 {
		cfg.Version = v
	}
	if v := store.GetString("defaults.outputDir"); v != "" {
		cfg.Defaults.OutputDir = v
	}
	if v := store.GetInt("defaults.maxParallel"); v != 0 {
		cfg.Defaults.MaxParallel = v
	}
	if v := store.GetInt("defaults.timeout"); v != 0 {
		cfg.Defaults.Timeout = v
	}
	if v := store.GetInt("defaults.asyncTimeout"); v != 0 {
		cfg.Defaults.AsyncTimeout = v
	}
	if v := store.GetInt("defaults.asyncPollInterval"); v != 0 {
		cfg.Defaults.AsyncPollInterval = v
	}
	if v := store.GetString("defaults.mode"); v != "" {
		cfg.Defaults.Mode = Mode(v)
	}

	for _, id := range store.ChildKeys("providers") {
		sub := store.Sub("providers." + id)
		if sub == nil {
			continue
		}
		entry := ProviderEntry{
			APIKey:   sub.GetString("apiKey"),
			Enabled:  subBoolDefaultTrue(sub, "enabled"),
			Model:    sub.GetString("model"),
			Fallback: sub.GetString("fallback"),
		}
		if opts := sub.Sub("options"); opts != nil {
			entry.Options = rawMap(opts)
		}
		cfg.Providers[id] = entry
	}

	for _, id := range store.ChildKeys("customProviders") {
		sub := store.Sub("customProviders." + id)
		if sub == nil {
			continue
		}
		entry := CustomProviderEntry{
			Type:        sub.GetString("type"),
			Module:      sub.GetString("module"),
			Command:     sub.GetString("command"),
			Args:        sub.GetStringSlice("args"),
			Cwd:         sub.GetString("cwd"),
			DisplayName: sub.GetString("displayName"),
		}
		if envSub := sub.Sub("env"); envSub != nil {
			entry.Env = map[string]string{}
			for k, v := range rawMap(envSub) {
				entry.Env[k] = fmt.Sprint(v)
			}
		}
		cfg.CustomProviders[id] = entry
	}

	for _, id := range store.GetStringSlice("trustedProviderIds") {
		cfg.TrustedProviderIDs[id] = struct{}{}
	}

	for _, name := range store.ChildKeys("groups") {
		cfg.Groups[name] = store.GetStringSlice("groups." + name)
	}

	return cfg
}

func subBoolDefaultTrue(s *Store, key string) bool {
	if !s.IsSet(key) {
		return true
	}
	return s.GetBool(key)
}

func rawMap(s *Store) map[string]interface{} {
	out := make(map[string]interface{})
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

// ResolveAPIKey resolves the "apiKey" field: a leading "$" means "look
// this up in the environment"; anything else is literal. A resolved
// empty string counts as missing.
func ResolveAPIKey(ref string) (string, bool) {
	if ref == "" {
		return "", false
	}
	if strings.HasPrefix(ref, "$") {
		val := os.Getenv(strings.TrimPrefix(ref, "$"))
		if val == "" {
			return "", false
		}
		return val, true
	}
	return ref, true
}

// migrateLegacyIDs rewrites provider keys, group members, and fallback
// targets using the canonical id table, producing one warning per rewrite
//.
func migrateLegacyIDs(cfg *Config) []Warning {
	var warnings []Warning

	table := provider.LegacyIDs()

	for legacy, canon := range table {
		entry, hasLegacy := cfg.Providers[legacy]
		if !hasLegacy {
			continue
		}
		if _, hasCanon := cfg.Providers[canon]; hasCanon {
			warnings = append(warnings, Warning{Message: fmt.Sprintf(
				"config: both legacy provider id %q and canonical id %q are configured; canonical wins", legacy, canon)})
			delete(cfg.Providers, legacy)
			continue
		}
		cfg.Providers[canon] = entry
		delete(cfg.Providers, legacy)
		warnings = append(warnings, Warning{Message: fmt.Sprintf(
			"config: migrated legacy provider id %q to %q", legacy, canon)})
	}

	for name, members := range cfg.Groups {
		changed := false
		rewritten := make([]string, len(members))
		for i, m := range members {
			if canon, ok := table[m]; ok {
				rewritten[i] = canon
				changed = true
			} else {
				rewritten[i] = m
			}
		}
		if changed {
			cfg.Groups[name] = rewritten
			warnings = append(warnings, Warning{Message: fmt.Sprintf(
				"config: migrated legacy provider id(s) in group %q", name)})
		}
	}

	for id, entry := range cfg.Providers {
		if entry.Fallback == "" {
			continue
		}
		if canon, ok := table[entry.Fallback]; ok {
			legacy := entry.Fallback
			entry.Fallback = canon
			cfg.Providers[id] = entry
			warnings = append(warnings, Warning{Message: fmt.Sprintf(
				"config: migrated legacy fallback id %q to %q for provider %q", legacy, canon, id)})
		}
	}

	return warnings
}

// validateFallbacks emits non-fatal warnings for fallback problems:
// self-reference, unknown target, and chained fallback
// (fallback-of-a-fallback, which is never followed).
func validateFallbacks(cfg *Config) []Warning {
	var warnings []Warning

	ids := make([]string, 0, len(cfg.Providers))
	for id := range cfg.Providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		entry := cfg.Providers[id]
		if entry.Fallback == "" {
			continue
		}
		if entry.Fallback == id {
			warnings = append(warnings, Warning{Message: fmt.Sprintf(
				"config: provider %q has a fallback referencing itself; ignoring", id)})
			continue
		}
		target, ok := cfg.Providers[entry.Fallback]
		if !ok {
			warnings = append(warnings, Warning{Message: fmt.Sprintf(
				"config: provider %q has an unknown fallback target %q", id, entry.Fallback)})
			continue
		}
		if target.Fallback != "" {
			warnings = append(warnings, Warning{Message: fmt.Sprintf(
				"config: fallback target %q for provider %q itself has a fallback; chains are not followed", entry.Fallback, id)})
		}
	}

	return warnings
}

// SampleConfigJSON returns the example global config file content written
// by "init".
func SampleConfigJSON() string {
	sample := map[string]interface{}{
		"version": 1,
		"defaults": map[string]interface{}{
			"outputDir":         DefaultOutputDir,
			"maxParallel":       4,
			"timeout":           60,
			"asyncTimeout":      600,
			"asyncPollInterval": 10,
			"mode":              "mixed",
		},
		"providers": map[string]interface{}{
			"perplexity-sonar-pro": map[string]interface{}{
				"apiKey":  "$PERPLEXITY_API_KEY",
				"enabled": true,
			},
			"anthropic-research": map[string]interface{}{
				"apiKey":  "$ANTHROPIC_API_KEY",
				"enabled": true,
			},
			"exa": map[string]interface{}{
				"apiKey":  "$EXA_API_KEY",
				"enabled": true,
			},
		},
		"customProviders":    map[string]interface{}{},
		"trustedProviderIds": []string{},
		"groups": map[string]interface{}{
			"default": []string{"perplexity-sonar-pro", "anthropic-research", "exa"},
		},
	}
	raw, _ := json.MarshalIndent(sample, "", "  ")
	return string(raw)
}
