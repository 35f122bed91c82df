package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sanix-darker/librarium/internal/provider"
)

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List registered providers and their tier and capabilities",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig(nil)
			for _, desc := range provider.Descriptors() {
				enabled := "disabled"
				if entry, ok := cfg.Providers[desc.ID]; ok && entry.Enabled {
					enabled = "enabled"
				}
				fmt.Printf("%-24s %-16s %-9s %s\n", desc.ID, desc.Tier, enabled, capabilitiesString(desc.Capabilities))
			}
		},
	}
}

func capabilitiesString(c provider.Capabilities) string {
	s := ""
	if c.Submit {
		s += "submit,"
	}
	if c.Poll {
		s += "poll,"
	}
	if c.Retrieve {
		s += "retrieve,"
	}
	if c.Test {
		s += "test,"
	}
	if s == "" {
		return "execute"
	}
	return s[:len(s)-1]
}

func init() {
	rootCmd.AddCommand(newLsCmd())
}
