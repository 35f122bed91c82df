package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sanix-darker/librarium/internal/config"
)

func newConfigCmd() *cobra.Command {
	var global, jsonOut bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Run: func(cmd *cobra.Command, args []string) {
			if global {
				printGlobalConfig(jsonOut)
				return
			}
			printEffectiveConfig(jsonOut)
		},
	}

	cmd.Flags().BoolVar(&global, "global", false, "print only the global config file, unmerged")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit raw JSON instead of a summary")

	return cmd
}

func printGlobalConfig(jsonOut bool) {
	path, err := config.GlobalConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("No global config file found at %s\n", path)
		return
	}
	if jsonOut {
		fmt.Println(string(data))
		return
	}
	fmt.Printf("# %s\n%s\n", path, string(data))
}

func printEffectiveConfig(jsonOut bool) {
	cfg := loadConfig(nil)
	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(cfg)
		return
	}

	fmt.Printf("outputDir:         %s\n", cfg.Defaults.OutputDir)
	fmt.Printf("maxParallel:       %d\n", cfg.Defaults.MaxParallel)
	fmt.Printf("timeout:           %ds\n", cfg.Defaults.Timeout)
	fmt.Printf("asyncTimeout:      %ds\n", cfg.Defaults.AsyncTimeout)
	fmt.Printf("asyncPollInterval: %ds\n", cfg.Defaults.AsyncPollInterval)
	fmt.Printf("mode:              %s\n", cfg.Defaults.Mode)
	fmt.Println("providers:")
	for id, entry := range cfg.Providers {
		status := "disabled"
		if entry.Enabled {
			status = "enabled"
		}
		fmt.Printf("  %-24s %s\n", id, status)
	}
}

func init() {
	rootCmd.AddCommand(newConfigCmd())
}
