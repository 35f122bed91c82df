package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sanix-darker/librarium/internal/asyncmgr"
	"github.com/sanix-darker/librarium/internal/provider"
)

func newStatusCmd() *cobra.Command {
	var wait, retrieve, jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show async provider tasks recorded under the output directory",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig(nil)
			reg := provider.Global()

			switch {
			case wait:
				interval := time.Duration(cfg.Defaults.AsyncPollInterval) * time.Second
				timeout := time.Duration(cfg.Defaults.AsyncTimeout) * time.Second
				if err := asyncmgr.PollLoop(context.Background(), reg, cfg, cfg.Defaults.OutputDir, interval, timeout); err != nil {
					fmt.Fprintf(os.Stderr, "Error: %v\n", err)
					os.Exit(2)
				}
			case retrieve:
				if err := asyncmgr.PollOnce(context.Background(), reg, cfg, cfg.Defaults.OutputDir); err != nil {
					fmt.Fprintf(os.Stderr, "Error: %v\n", err)
					os.Exit(2)
				}
			}

			entries, err := asyncmgr.Query(cfg.Defaults.OutputDir)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(2)
			}

			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				_ = enc.Encode(entries)
				return
			}

			if len(entries) == 0 {
				fmt.Println("No pending async tasks.")
				return
			}
			for _, e := range entries {
				fmt.Printf("%-24s %-12s %s\n", e.Handle.Provider, e.Handle.Status, e.Dir)
			}
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "block, polling until every async task reaches a terminal state")
	cmd.Flags().BoolVar(&retrieve, "retrieve", false, "poll once, retrieving any task that completes")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit machine-readable JSON instead of console output")

	return cmd
}

func init() {
	rootCmd.AddCommand(newStatusCmd())
}
