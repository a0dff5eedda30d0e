package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/osintnexus/internal/config"
)

//go:embed templates/osintnexus.yaml
var configTemplate embed.FS

// templatePath is the path of the configuration template inside configTemplate.
const templatePath = "templates/osintnexus.yaml"

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a commented osintnexus configuration file",
		Long: `Init writes a commented .osintnexus configuration file.

The generated file documents:
- Scan defaults (concurrency, timeouts, depth, limit, project)
- API keys of third-party services
- A SOCKS5 proxy for probe traffic
- User-defined machines

Examples:
  # Create .osintnexus in the current directory
  osintnexus init

  # Create the file in the XDG config directory
  osintnexus init -o ~/.config/osintnexus/config.yaml

  # Overwrite an existing file
  osintnexus init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	if dir := filepath.Dir(outputPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// The file may hold API keys.
	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit this file to configure:")
	fmt.Fprintln(out, "  - API keys (Shodan)")
	fmt.Fprintln(out, "  - Scan concurrency, timeouts and the default project")
	fmt.Fprintln(out, "  - Your own machines")

	return nil
}
