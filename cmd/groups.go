package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sanix-darker/librarium/internal/config"
)

func newGroupsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "groups",
		Short: "List, add, or remove named provider groups",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig(nil)
			if len(cfg.Groups) == 0 {
				fmt.Println("No groups configured.")
				return
			}
			for name, ids := range cfg.Groups {
				fmt.Printf("%-20s %s\n", name, strings.Join(ids, ", "))
			}
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name> <ids…>",
		Short: "Add or replace a group definition in the global config",
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			name := args[0]
			ids := args[1:]
			mutateGlobalStore(func(s *config.Store) {
				s.Set("groups."+name, ids)
			})
			fmt.Printf("Group %q saved with %d provider(s).\n", name, len(ids))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a group from the global config",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			name := args[0]
			mutateGlobalStore(func(s *config.Store) {
				s.Delete("groups." + name)
			})
			fmt.Printf("Group %q removed.\n", name)
		},
	})

	return cmd
}

// mutateGlobalStore loads the global config file (if any) into a Store,
// applies mutate, and atomically saves it back.
func mutateGlobalStore(mutate func(*config.Store)) {
	path, err := config.GlobalConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	store := config.NewStore()
	if _, statErr := os.Stat(path); statErr == nil {
		if err := store.LoadFile(path); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(2)
		}
	} else if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating config directory: %v\n", err)
		os.Exit(2)
	}

	mutate(store)

	if err := store.SaveJSONFile(path, 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(2)
	}
}

func init() {
	rootCmd.AddCommand(newGroupsCmd())
}
