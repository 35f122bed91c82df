package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sanix-darker/librarium/internal/config"
	"github.com/sanix-darker/librarium/internal/provider"
)

func newInitCmd() *cobra.Command {
	var auto bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the global config file",
		Run: func(cmd *cobra.Command, args []string) {
			cfgPath, err := config.GlobalConfigPath()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(2)
			}

			if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
				fmt.Fprintf(os.Stderr, "Error creating config directory: %v\n", err)
				os.Exit(2)
			}

			if _, err := os.Stat(cfgPath); err == nil {
				fmt.Printf("Config file already exists at %s\n", cfgPath)
				return
			}

			content := config.SampleConfigJSON()
			if auto {
				content = autoDetectedConfig()
			}

			if err := os.WriteFile(cfgPath, []byte(content), 0o600); err != nil {
				fmt.Fprintf(os.Stderr, "Error writing config: %v\n", err)
				os.Exit(2)
			}

			fmt.Printf("Config file created at %s\n", cfgPath)
		},
	}

	cmd.Flags().BoolVar(&auto, "auto", false, "only enable providers whose API key env var is already set")

	return cmd
}

// autoDetectedConfig builds a config.json that enables exactly the
// registered providers whose env var already has a value, so a first run
// doesn't fail on missing keys.
func autoDetectedConfig() string {
	cfg := config.NewDefaultConfig()

	var enabled []string
	for _, desc := range provider.Descriptors() {
		if desc.EnvVar == "" {
			continue
		}
		if _, ok := os.LookupEnv(desc.EnvVar); !ok {
			continue
		}
		cfg.Providers[desc.ID] = config.ProviderEntry{
			APIKey:  "$" + desc.EnvVar,
			Enabled: true,
		}
		enabled = append(enabled, desc.ID)
	}
	if len(enabled) > 0 {
		cfg.Groups["default"] = enabled
	}

	raw, _ := json.MarshalIndent(cfg, "", "  ")
	return string(raw)
}

func init() {
	rootCmd.AddCommand(newInitCmd())
}
