package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/osintnexus/internal/config"
)

// NewRootCmd creates the root command for osintnexus.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "osintnexus",
		Short: "OSINT collection engine with an entity graph",
		Long: `osintnexus runs open-source intelligence modules against a target and
links everything they discover into a per-project entity graph.

Modules run concurrently under a shared bound. Machines chain modules into
steps, feeding the entities found by one step into the next. Results are
stored in a SQLite database in the XDG data directory.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .osintnexus in current or home directory)")
	cmd.PersistentFlags().String("db-dir", config.XDGDataDir(), "Directory of the SQLite database")

	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewMachineCmd())
	cmd.AddCommand(NewModulesCmd())
	cmd.AddCommand(NewProjectCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
