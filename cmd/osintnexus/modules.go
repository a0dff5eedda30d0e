package main

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/nao1215/osintnexus/internal/module"
)

// NewModulesCmd creates the modules command.
func NewModulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modules",
		Short: "List the available collection modules",
		Long: `Modules lists every registered module with the target fields it consumes.

Examples:
  # All modules
  osintnexus modules

  # Modules that take an IP address
  osintnexus modules --input ip`,
		Args: cobra.NoArgs,
		RunE: runModulesCmd,
	}
	cmd.Flags().String("input", "", "Only modules consuming this input type (username, email, phone, domain, ip, platform)")
	return cmd
}

func runModulesCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	registry, err := newModuleRegistry(cfg, newLogger(cfg))
	if err != nil {
		return err
	}

	input, err := cmd.Flags().GetString("input")
	if err != nil {
		return err
	}
	modules := registry.All()
	if input != "" {
		modules = registry.ForInputType(strings.ToLower(input))
	}

	if len(modules) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No modules found")
		return nil
	}
	return writeModuleTable(cmd, modules)
}

// writeModuleTable lists modules with their input types.
func writeModuleTable(cmd *cobra.Command, modules []module.Module) error {
	data := pterm.TableData{{"NAME", "INPUTS", "DESCRIPTION"}}
	for _, m := range modules {
		data = append(data, []string{m.Name(), strings.Join(m.InputTypes(), ","), m.Description()})
	}
	return pterm.DefaultTable.WithHasHeader().WithWriter(cmd.OutOrStdout()).WithData(data).Render()
}
