package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sanix-darker/librarium/internal/config"
	"github.com/sanix-darker/librarium/internal/customprovider"
	"github.com/sanix-darker/librarium/internal/installdetect"
	"github.com/sanix-darker/librarium/internal/provider"

	// Built-in providers self-register against the global registry on import.
	_ "github.com/sanix-darker/librarium/internal/providers/anthropicresearch"
	_ "github.com/sanix-darker/librarium/internal/providers/exa"
	_ "github.com/sanix-darker/librarium/internal/providers/geminigrounded"
	_ "github.com/sanix-darker/librarium/internal/providers/openaiwebsearch"
	_ "github.com/sanix-darker/librarium/internal/providers/perplexitysonar"
	_ "github.com/sanix-darker/librarium/internal/providers/tavily"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "librarium",
	Short: "Dispatch a research query across multiple search and research providers.",
	Long:  `Fan a query out to search and deep-research providers in parallel, normalize their citations, and write one run artifact per query.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(); it only needs to happen
// once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(2)
	}
}

func init() {
	rootCmd.PersistentFlags().Bool("json", false, "emit machine-readable JSON output")
}

// loadConfig applies the three-layer config merge (global, project, CLI)
// and prints non-fatal warnings to stderr.
func loadConfig(cliDefaults map[string]interface{}) *config.Config {
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	cfg, warnings, err := config.Load(cwd, cliDefaults)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(2)
	}
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w.Message)
	}
	registerCustomProviders(cfg)
	return cfg
}

// registerCustomProviders loads every trusted customProviders entry and adds
// it to the global registry, so every command that calls loadConfig (doctor's
// sweep and run's dispatch among them) sees built-in and custom providers
// alike; init does not call loadConfig, so init --auto sees built-ins only. Entries
// that fail the trust gate, collide with a built-in id, or fail to load are
// skipped with a warning rather than aborting the command.
func registerCustomProviders(cfg *config.Config) {
	if len(cfg.CustomProviders) == 0 {
		return
	}
	method := installdetect.Detect()

	for id, entry := range cfg.CustomProviders {
		if !customprovider.Trusted(cfg, id) {
			fmt.Fprintf(os.Stderr, "Warning: custom provider %q is not listed in trustedProviderIds; skipping\n", id)
			continue
		}
		if provider.Has(id) {
			fmt.Fprintf(os.Stderr, "Warning: custom provider %q collides with a built-in provider id; skipping\n", id)
			continue
		}

		runtimeEntry := resolveRuntimeEntry(cfg, id)

		var prov provider.Provider
		var skipReason string
		var err error
		switch entry.Type {
		case "npm":
			prov, skipReason, err = customprovider.LoadModule(id, entry, runtimeEntry, method)
		case "script":
			prov, err = customprovider.NewScriptProvider(context.Background(), id, entry, runtimeEntry)
		default:
			skipReason = fmt.Sprintf("customprovider %q: unknown type %q; skipping", id, entry.Type)
		}
		switch {
		case err != nil:
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			continue
		case skipReason != "":
			fmt.Fprintf(os.Stderr, "Warning: %s\n", skipReason)
			continue
		case prov == nil:
			continue
		}

		if err := provider.TryRegister(prov.Descriptor(), func(provider.Entry) (provider.Provider, error) { return prov, nil }); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: customprovider %q: %v\n", id, err)
		}
	}
}

// resolveRuntimeEntry draws the api key/model/options a custom provider
// needs from the same cfg.Providers map built-ins use: customProviders only
// describes how to load the provider's code, not its runtime config.
func resolveRuntimeEntry(cfg *config.Config, id string) provider.Entry {
	entry := cfg.Providers[id]
	apiKey, _ := config.ResolveAPIKey(entry.APIKey)
	return provider.Entry{ID: id, APIKey: apiKey, Model: entry.Model, Options: entry.Options}
}

// resolveSelection expands -p/-g into a final provider id list against
// configured groups. It does not check ids against the registry: an
// unknown provider referenced by a selection is not a CLI error, it is a
// per-task concern the dispatcher reports on (provider.ReportError)
// without aborting the run.
func resolveSelection(cfg *config.Config, providerFlag, groupFlag string) ([]string, error) {
	if providerFlag != "" && groupFlag != "" {
		return nil, fmt.Errorf("--providers and --group are mutually exclusive")
	}

	var ids []string
	switch {
	case groupFlag != "":
		members, ok := cfg.Groups[groupFlag]
		if !ok {
			return nil, fmt.Errorf("unknown group %q", groupFlag)
		}
		ids = members
	case providerFlag != "":
		ids = splitCSV(providerFlag)
	default:
		for id, entry := range cfg.Providers {
			if entry.Enabled {
				ids = append(ids, id)
			}
		}
	}

	if len(ids) == 0 {
		return nil, fmt.Errorf("no providers selected")
	}

	return ids, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
