package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sanix-darker/librarium/internal/artifact"
	"github.com/sanix-darker/librarium/internal/dispatch"
	"github.com/sanix-darker/librarium/internal/provider"
)

// consoleSink prints progress events as they arrive.
type consoleSink struct {
	spin *spinner.Spinner
}

func (s *consoleSink) Emit(e dispatch.Event) {
	if s.spin != nil {
		s.spin.Suffix = fmt.Sprintf("  %s: %s", e.ProviderID, e.Kind)
	}
	switch e.Kind {
	case dispatch.EventCompleted:
		fmt.Printf("%s %s\n", color.GreenString("done"), e.ProviderID)
	case dispatch.EventError:
		fmt.Printf("%s %s: %s\n", color.RedString("error"), e.ProviderID, e.Message)
	case dispatch.EventAsyncSubmitted:
		fmt.Printf("%s %s\n", color.YellowString("async"), e.ProviderID)
	case dispatch.EventFallbackStarted:
		fmt.Printf("%s %s\n", color.YellowString("fallback"), e.ProviderID)
	}
}

func newRunCmd() *cobra.Command {
	var providersFlag, groupFlag, modeFlag, outputFlag string
	var parallel, timeoutSec int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "run <query>",
		Short: "Dispatch a query to selected providers and write a run artifact",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			query := argsToQuery(args)

			cliDefaults := map[string]interface{}{}
			if parallel > 0 {
				cliDefaults["defaults.maxParallel"] = parallel
			}
			if timeoutSec > 0 {
				cliDefaults["defaults.timeout"] = timeoutSec
			}
			if outputFlag != "" {
				cliDefaults["defaults.outputDir"] = outputFlag
			}
			if modeFlag != "" {
				cliDefaults["defaults.mode"] = modeFlag
			}

			cfg := loadConfig(cliDefaults)
			reg := provider.Global()

			ids, err := resolveSelection(cfg, providersFlag, groupFlag)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(2)
			}

			now := time.Now()
			runDir, err := artifact.EnsureRunDir(cfg.Defaults.OutputDir, query, now)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(2)
			}

			var sink dispatch.EventSink
			var spin *spinner.Spinner
			if !jsonOut {
				spin = spinner.New(spinner.CharSets[11], 100*time.Millisecond)
				spin.Start()
				sink = &consoleSink{spin: spin}
			}

			d := dispatch.New(reg)
			result, err := d.Run(context.Background(), dispatch.Request{
				Config:      cfg,
				ProviderIDs: ids,
				Query:       query,
				OutputDir:   runDir,
				Mode:        provider.DispatchMode(cfg.Defaults.Mode),
				Sink:        sink,
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(2)
			}

			if _, err := artifact.WriteRun(cfg.Defaults.OutputDir, artifact.Run{
				Query:      query,
				Mode:       provider.DispatchMode(cfg.Defaults.Mode),
				Reports:    result.Reports,
				Sources:    result.Sources,
				AsyncTasks: result.AsyncTasks,
				Timestamp:  now,
			}); err != nil {
				fmt.Fprintf(os.Stderr, "Error writing run artifact: %v\n", err)
				os.Exit(2)
			}

			exitCode := artifact.ExitCode(result.Reports)

			if spin != nil {
				spin.Stop()
			}

			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				_ = enc.Encode(map[string]interface{}{
					"outputDir": runDir,
					"reports":   result.Reports,
					"exitCode":  exitCode,
				})
			} else {
				fmt.Printf("\nWrote run to %s\n", runDir)
			}

			os.Exit(exitCode)
		},
	}

	cmd.Flags().StringVarP(&providersFlag, "providers", "p", "", "comma-separated provider ids")
	cmd.Flags().StringVarP(&groupFlag, "group", "g", "", "named provider group")
	cmd.Flags().StringVarP(&modeFlag, "mode", "m", "", "dispatch mode: sync, async, or mixed")
	cmd.Flags().StringVarP(&outputFlag, "output", "o", "", "output directory root")
	cmd.Flags().IntVar(&parallel, "parallel", 0, "max concurrent provider tasks")
	cmd.Flags().IntVar(&timeoutSec, "timeout", 0, "per-provider timeout in seconds")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit machine-readable JSON instead of console output")

	return cmd
}

func argsToQuery(args []string) string {
	q := args[0]
	for _, a := range args[1:] {
		q += " " + a
	}
	return q
}

func init() {
	rootCmd.AddCommand(newRunCmd())
}
