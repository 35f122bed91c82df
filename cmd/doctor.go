package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/aquasecurity/table"
	"github.com/spf13/cobra"

	"github.com/sanix-darker/librarium/internal/config"
	"github.com/sanix-darker/librarium/internal/installdetect"
	"github.com/sanix-darker/librarium/internal/provider"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configured providers for reachability",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig(nil)

			t := table.New(os.Stdout)
			t.SetHeaders("Provider", "Tier", "Source", "Status")

			for _, desc := range provider.Descriptors() {
				entry, configured := cfg.Providers[desc.ID]
				if !configured || !entry.Enabled {
					t.AddRow(desc.ID, string(desc.Tier), string(desc.Source), "not enabled")
					continue
				}

				apiKey, hasKey := config.ResolveAPIKey(entry.APIKey)
				if desc.RequiresAPIKey && !hasKey {
					t.AddRow(desc.ID, string(desc.Tier), string(desc.Source), fmt.Sprintf("missing %s", desc.EnvVar))
					continue
				}

				p, err := provider.Get(desc.ID, provider.Entry{ID: desc.ID, APIKey: apiKey, Model: entry.Model, Options: entry.Options})
				if err != nil {
					t.AddRow(desc.ID, string(desc.Tier), string(desc.Source), err.Error())
					continue
				}

				if !desc.Capabilities.Test {
					t.AddRow(desc.ID, string(desc.Tier), string(desc.Source), "enabled (no self-test)")
					continue
				}

				result, err := p.Test(context.Background())
				switch {
				case err != nil:
					t.AddRow(desc.ID, string(desc.Tier), string(desc.Source), err.Error())
				case !result.OK:
					t.AddRow(desc.ID, string(desc.Tier), string(desc.Source), "unreachable: "+result.Error)
				default:
					t.AddRow(desc.ID, string(desc.Tier), string(desc.Source), "ok")
				}
			}
			t.Render()

			method := installdetect.Detect()
			fmt.Printf("\nInstall method: %s\n", method)
			if !installdetect.SupportsPlugins(method) {
				fmt.Println("Note: custom \"npm\"-type providers are unavailable under this install method.")
			}
		},
	}
}

func init() {
	rootCmd.AddCommand(newDoctorCmd())
}
