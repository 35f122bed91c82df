package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newCleanupCmd() *cobra.Command {
	var days int
	var dryRun, jsonOut bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove run directories older than --days",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig(nil)
			cutoff := time.Now().AddDate(0, 0, -days)

			entries, err := os.ReadDir(cfg.Defaults.OutputDir)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Println("Nothing to clean up: output directory does not exist.")
					return
				}
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(2)
			}

			var candidates, kept []string
			for _, e := range entries {
				if !e.IsDir() {
					continue
				}
				ts, ok := runDirTimestamp(e.Name())
				if !ok {
					continue
				}
				path := filepath.Join(cfg.Defaults.OutputDir, e.Name())
				if ts.Before(cutoff) {
					candidates = append(candidates, path)
				} else {
					kept = append(kept, path)
				}
			}

			if !dryRun && !jsonOut && len(candidates) > 0 {
				msg := fmt.Sprintf("Delete %d run director(ies) older than %d day(s)?", len(candidates), days)
				if !confirm(msg) {
					fmt.Println("Aborted.")
					return
				}
			}

			var removed []string
			for _, path := range candidates {
				if !dryRun {
					if err := os.RemoveAll(path); err != nil {
						fmt.Fprintf(os.Stderr, "Error removing %s: %v\n", path, err)
						continue
					}
				}
				removed = append(removed, path)
			}

			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				_ = enc.Encode(map[string]interface{}{
					"removed": removed,
					"kept":    kept,
					"dryRun":  dryRun,
				})
				return
			}

			verb := "Removed"
			if dryRun {
				verb = "Would remove"
			}
			fmt.Printf("%s %d run director(ies), kept %d.\n", verb, len(removed), len(kept))
			for _, p := range removed {
				fmt.Println(" ", p)
			}
		},
	}

	cmd.Flags().IntVar(&days, "days", 30, "remove run directories older than this many days")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be removed without deleting anything")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit machine-readable JSON instead of console output")

	return cmd
}

// confirm prompts on stderr and reads a y/n answer from stdin; anything
// other than "y" (case-insensitive) counts as no.
func confirm(message string) bool {
	fmt.Fprintf(os.Stderr, "%s Press (y/n): ", message)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	return strings.ToLower(strings.TrimSpace(line)) == "y"
}

// runDirTimestamp parses the leading unix-timestamp segment of a run
// directory name.
func runDirTimestamp(name string) (time.Time, bool) {
	prefix, _, found := strings.Cut(name, "-")
	if !found {
		return time.Time{}, false
	}
	sec, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(sec, 0), true
}

func init() {
	rootCmd.AddCommand(newCleanupCmd())
}
