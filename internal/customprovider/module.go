package customprovider

import (
	"fmt"
	"os"
	"path/filepath"
	"plugin"

	"github.com/sanix-darker/librarium/internal/config"
	"github.com/sanix-darker/librarium/internal/installdetect"
	"github.com/sanix-darker/librarium/internal/provider"
)

// pluginDir is the invoking project's local plugin directory, checked
// before the runtime's own install-tree plugin directory. The module
// resolution order is realized in Go as plugin.Open against two candidate
// .so locations rather than a require()-style search path.
const pluginDir = ".librarium/plugins"

// ProviderFactory is the symbol a plugin's built .so must export: either a
// ready-made provider.Provider value or a factory function matching this
// signature.
type ProviderFactory func(id string, cfg provider.Entry, sourceOptions map[string]interface{}) (provider.Provider, error)

// LoadModule resolves and loads a "npm"-type custom provider entry as a Go
// plugin. It returns (nil, reason, nil) when the entry should be skipped
// rather than treated as an error.
func LoadModule(id string, entry config.CustomProviderEntry, cfg provider.Entry, installedAs installdetect.Method) (provider.Provider, string, error) {
	if !installdetect.SupportsPlugins(installedAs) {
		return nil, fmt.Sprintf("customprovider %q: npm-type providers are unavailable under install method %q; skipping", id, installedAs), nil
	}

	path, found := resolveModulePath(entry.Module)
	if !found {
		return nil, fmt.Sprintf("customprovider %q: module %q not found; skipping", id, entry.Module), nil
	}

	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Sprintf("customprovider %q: failed to open plugin %s: %v; skipping", id, path, err), nil
	}

	sym, err := p.Lookup("Provider")
	if err != nil {
		return nil, fmt.Sprintf("customprovider %q: plugin %s does not export \"Provider\"; skipping", id, path), nil
	}

	prov, err := resolveSymbol(id, cfg, entry, sym)
	if err != nil {
		return nil, fmt.Sprintf("customprovider %q: %v; skipping", id, err), nil
	}

	if err := validateLoaded(id, prov); err != nil {
		return nil, fmt.Sprintf("customprovider %q: %v; skipping", id, err), nil
	}

	return prov, "", nil
}

func resolveSymbol(id string, cfg provider.Entry, entry config.CustomProviderEntry, sym plugin.Symbol) (provider.Provider, error) {
	switch v := sym.(type) {
	case provider.Provider:
		return v, nil
	case *provider.Provider:
		return *v, nil
	case ProviderFactory:
		return v(id, cfg, optionsOf(entry))
	case func(string, provider.Entry, map[string]interface{}) (provider.Provider, error):
		return v(id, cfg, optionsOf(entry))
	default:
		return nil, fmt.Errorf("exported \"Provider\" symbol has an unsupported type")
	}
}

func optionsOf(entry config.CustomProviderEntry) map[string]interface{} {
	if len(entry.Args) == 0 {
		return nil
	}
	return map[string]interface{}{"args": entry.Args}
}

// validateLoaded checks the loaded provider against the contract:
// descriptor id matches, envVar set when requiresApiKey is true.
func validateLoaded(id string, p provider.Provider) error {
	if p == nil {
		return fmt.Errorf("plugin returned a nil provider")
	}
	desc := p.Descriptor()
	if desc.ID != "" && desc.ID != id {
		return fmt.Errorf("plugin descriptor id %q does not match configured id %q", desc.ID, id)
	}
	return desc.Validate()
}

// resolveModulePath looks for <module> first relative to the invoking
// project's ./.librarium/plugins/ directory, then the runtime's own
// install-tree plugin directory.
func resolveModulePath(module string) (string, bool) {
	if module == "" {
		return "", false
	}

	candidates := []string{
		filepath.Join(pluginDir, module+".so"),
	}
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), "plugins", module+".so"))
	}

	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, true
		}
	}
	return "", false
}
