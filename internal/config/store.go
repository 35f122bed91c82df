package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Store is a flat dot-notation key/value map used to merge the three config
// layers (global file, project file, CLI overrides) before they are decoded
// into a Config. Each layer loads into its own Store; Merge then overlays
// them in override order without needing to know the shape of the data.
type Store struct {
	data map[string]interface{}
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{data: make(map[string]interface{})}
}

// LoadYAMLFile reads a YAML config file into the store.
func (s *Store) LoadYAMLFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var m map[string]interface{}
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	s.data = flatten("", m)
	return nil
}

// LoadJSONFile reads a JSON config file into the store. This is the
// canonical format for librarium's config and manifest files;
// LoadYAMLFile remains available for the legacy/teacher YAML format.
func (s *Store) LoadJSONFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	s.data = flatten("", m)
	return nil
}

// LoadFile dispatches to LoadJSONFile or LoadYAMLFile based on extension,
// defaulting to JSON for anything else.
func (s *Store) LoadFile(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return s.LoadYAMLFile(path)
	default:
		return s.LoadJSONFile(path)
	}
}

// Merge overlays other's explicit values (not defaults) on top of s,
// returning the receiver for chaining. Used by the layered config loader
// (global -> project -> CLI) to implement the override order.
func (s *Store) Merge(other *Store) *Store {
	if other == nil {
		return s
	}
	for k, v := range other.data {
		s.data[k] = v
	}
	return s
}

// SaveJSONFile atomically writes the store's explicit data as nested JSON:
// write to a temp file in the same directory, then rename over the
// target, so a crash mid-write never leaves a torn file.
func (s *Store) SaveJSONFile(path string, perm os.FileMode) error {
	nested := unflatten(s.data)
	raw, err := json.MarshalIndent(nested, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return AtomicWriteFile(path, raw, perm)
}

// AtomicWriteFile writes data to a temp file beside path, then renames it
// over path. Shared by the config store and internal/asyncmgr so both
// single-writer-per-directory paths use one implementation.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file into place: %w", err)
	}
	return nil
}

// unflatten reverses flatten, turning dot-notation keys back into nested
// maps for serialization.
func unflatten(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for key, value := range data {
		parts := strings.Split(key, ".")
		cur := out
		for i, p := range parts {
			if i == len(parts)-1 {
				cur[p] = value
				continue
			}
			next, ok := cur[p].(map[string]interface{})
			if !ok {
				next = make(map[string]interface{})
				cur[p] = next
			}
			cur = next
		}
	}
	return out
}

// Set stores a value under the given dot-notation key.
func (s *Store) Set(key string, value interface{}) {
	s.data[key] = value
}

// Delete removes an explicit value at the given dot-notation key, if any.
func (s *Store) Delete(key string) {
	delete(s.data, key)
}

// IsSet returns true if the key has an explicit value.
func (s *Store) IsSet(key string) bool {
	_, ok := s.data[key]
	return ok
}

// Get returns the raw value for a key.
func (s *Store) Get(key string) (interface{}, bool) {
	v, ok := s.data[key]
	return v, ok
}

// GetString returns the string value for a key.
func (s *Store) GetString(key string) string {
	v, ok := s.Get(key)
	if !ok {
		return ""
	}
	return toString(v)
}

// GetInt returns the integer value for a key.
func (s *Store) GetInt(key string) int {
	v, ok := s.Get(key)
	if !ok {
		return 0
	}
	return toInt(v)
}

// GetBool returns the boolean value for a key.
func (s *Store) GetBool(key string) bool {
	v, ok := s.Get(key)
	if !ok {
		return false
	}
	return toBool(v)
}

// GetStringSlice returns a string slice for a key.
func (s *Store) GetStringSlice(key string) []string {
	v, ok := s.Get(key)
	if !ok {
		return nil
	}
	switch val := v.(type) {
	case []interface{}:
		out := make([]string, len(val))
		for i, item := range val {
			out[i] = toString(item)
		}
		return out
	case []string:
		return val
	default:
		return nil
	}
}

// Sub returns a new Store scoped to the given prefix, e.g. Sub("providers.exa")
// on a store holding "providers.exa.apiKey" returns a store where "apiKey"
// is set. Returns nil if no key under the prefix exists, so decodeConfig's
// "for _, id := range store.ChildKeys(...)" loops can skip absent entries
// with a plain nil check instead of a second IsSet call.
func (s *Store) Sub(prefix string) *Store {
	dot := prefix + "."
	sub := NewStore()
	for k, v := range s.data {
		if rest, ok := strings.CutPrefix(k, dot); ok {
			sub.data[rest] = v
		}
	}
	if len(sub.data) == 0 {
		return nil
	}
	return sub
}

// ChildKeys returns the distinct immediate child segments under prefix,
// e.g. ChildKeys("providers") on keys "providers.openai.model" and
// "providers.exa.enabled" returns ["exa", "openai"]. Used to enumerate
// map-shaped config sections (providers, customProviders, groups).
func (s *Store) ChildKeys(prefix string) []string {
	dot := prefix + "."
	seen := make(map[string]struct{})
	for k := range s.data {
		if !strings.HasPrefix(k, dot) {
			continue
		}
		rest := strings.TrimPrefix(k, dot)
		if i := strings.Index(rest, "."); i >= 0 {
			rest = rest[:i]
		}
		seen[rest] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	return out
}

// flatten converts a nested map into dot-notation keys.
func flatten(prefix string, m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]interface{}:
			for fk, fv := range flatten(key, val) {
				out[fk] = fv
			}
		case map[interface{}]interface{}:
			// YAML sometimes produces map[interface{}]interface{}.
			converted := make(map[string]interface{}, len(val))
			for mk, mv := range val {
				converted[fmt.Sprint(mk)] = mv
			}
			for fk, fv := range flatten(key, converted) {
				out[fk] = fv
			}
		default:
			out[key] = v
		}
	}
	return out
}

func toString(v interface{}) string {
	if v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

func toInt(v interface{}) int {
	switch val := v.(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		return int(val)
	case string:
		n, _ := strconv.Atoi(val)
		return n
	default:
		return 0
	}
}

func toBool(v interface{}) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		b, _ := strconv.ParseBool(val)
		return b
	case int:
		return val != 0
	default:
		return false
	}
}
