package main

import (
	"cmp"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/nao1215/osintnexus/internal/analytics"
	"github.com/nao1215/osintnexus/internal/config"
	"github.com/nao1215/osintnexus/internal/database"
	"github.com/nao1215/osintnexus/internal/report"
)

// defaultHistoryLimit is the number of scan results shown by project show.
const defaultHistoryLimit = 20

// NewProjectCmd creates the project command group.
func NewProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects and export their entity graphs",
		Long: `A project is a named container for entities, connections and scan
history. Scans and machine runs store into the project given with --project
("default" unless configured otherwise).`,
	}

	cmd.AddCommand(newProjectCreateCmd())
	cmd.AddCommand(newProjectListCmd())
	cmd.AddCommand(newProjectShowCmd())
	cmd.AddCommand(newProjectExportCmd())
	cmd.AddCommand(newProjectAnalyzeCmd())
	cmd.AddCommand(newProjectPathCmd())
	cmd.AddCommand(newProjectDeleteCmd())
	return cmd
}

// openStore loads the configuration and opens the store.
func openStore(cmd *cobra.Command) (*config.Config, *database.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	store, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return cfg, store, nil
}

func newProjectCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			description, err := cmd.Flags().GetString("description")
			if err != nil {
				return err
			}
			_, store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			p, err := store.CreateProject(cmd.Context(), args[0], description)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created project %s (#%d)\n", p.Name, p.ID)
			return nil
		},
	}
	cmd.Flags().String("description", "", "Project description")
	return cmd
}

func newProjectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			projects, err := store.ListProjects(cmd.Context())
			if err != nil {
				return err
			}
			if len(projects) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No projects found")
				return nil
			}

			data := pterm.TableData{{"ID", "NAME", "UPDATED", "DESCRIPTION"}}
			for _, p := range projects {
				data = append(data, []string{
					strconv.FormatInt(p.ID, 10),
					p.Name,
					p.UpdatedAt.Local().Format(time.DateTime),
					p.Description,
				})
			}
			return pterm.DefaultTable.WithHasHeader().WithWriter(cmd.OutOrStdout()).WithData(data).Render()
		},
	}
}

func newProjectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show a project summary and its recent module runs",
		Args:  cobra.ExactArgs(1),
		RunE:  runProjectShowCmd,
	}
	cmd.Flags().Int("history", defaultHistoryLimit, "Number of recent module runs to list (0 for all)")
	return cmd
}

func runProjectShowCmd(cmd *cobra.Command, args []string) error {
	limit, err := cmd.Flags().GetInt("history")
	if err != nil {
		return err
	}
	_, store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	p, err := store.GetProjectByName(ctx, args[0])
	if err != nil {
		return err
	}
	export, err := store.ExportProject(ctx, p.ID)
	if err != nil {
		return err
	}
	history, err := store.ListScanResults(ctx, p.ID, limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Project:     %s (#%d)\n", p.Name, p.ID)
	if p.Description != "" {
		fmt.Fprintf(out, "Description: %s\n", p.Description)
	}
	fmt.Fprintf(out, "Created:     %s\n", p.CreatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(out, "Entities:    %d\n", len(export.Entities))
	fmt.Fprintf(out, "Connections: %d\n", len(export.Connections))

	counts := export.CountByType()
	if len(counts) > 0 {
		fmt.Fprintln(out, "\nEntity types:")
		for _, t := range sortedTypes(counts) {
			fmt.Fprintf(out, "  %-12s %d\n", t, counts[t])
		}
	}

	if len(history) == 0 {
		fmt.Fprintln(out, "\nNo module runs recorded")
		return nil
	}
	fmt.Fprintln(out, "\nRecent module runs:")
	data := pterm.TableData{{"WHEN", "MODULE", "INPUT", "STATUS", "ELAPSED", "ERROR"}}
	for _, r := range history {
		data = append(data, []string{
			r.CreatedAt.Local().Format(time.DateTime),
			r.Module,
			r.Input.Describe(),
			string(r.Status),
			r.Elapsed.Round(time.Millisecond).String(),
			r.Error,
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithWriter(out).WithData(data).Render()
}

// sortedTypes returns the entity types of counts, most frequent first.
func sortedTypes(counts map[string]int) []string {
	return slices.SortedFunc(maps.Keys(counts), func(a, b string) int {
		return cmp.Or(cmp.Compare(counts[b], counts[a]), cmp.Compare(a, b))
	})
}

func newProjectExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <name>",
		Short: "Export a project's entities and connections",
		Long: `Export writes the full entity graph of a project.

Examples:
  # JSON to stdout
  osintnexus project export acme

  # Markdown with an entity type chart
  osintnexus project export acme --format markdown -o acme.md

  # GraphML for Gephi, DOT for Graphviz
  osintnexus project export acme --format graphml -o acme.graphml`,
		Args: cobra.ExactArgs(1),
		RunE: runProjectExportCmd,
	}
	cmd.Flags().StringP("format", "f", string(report.FormatJSON), "Output format: json, markdown, simple, graphml or dot")
	cmd.Flags().StringP("output", "o", "", "Write the export to this file instead of stdout")
	return cmd
}

func runProjectExportCmd(cmd *cobra.Command, args []string) error {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	switch format {
	case string(report.FormatJSON), string(report.FormatMarkdown), string(report.FormatSimple),
		formatGraphML, formatDOT:
	default:
		return fmt.Errorf("unknown export format %q (use json, markdown, simple, graphml or dot)", format)
	}

	cfg, store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	p, err := store.GetProjectByName(ctx, args[0])
	if err != nil {
		return err
	}
	export, err := store.ExportProject(ctx, p.ID)
	if err != nil {
		return err
	}

	switch format {
	case formatGraphML:
		return writeOutput(cmd, cfg.ReportFile, func(w io.Writer) error {
			return analytics.FromExport(export).WriteGraphML(w, p.Name)
		})
	case formatDOT:
		return writeOutput(cmd, cfg.ReportFile, func(w io.Writer) error {
			return analytics.FromExport(export).WriteDOT(w, graphName(p.Name))
		})
	}
	return writeReport(cmd, cfg.ReportFile, report.Format(format), func(w report.Writer) error {
		_, err := w.WriteExport(export)
		return err
	})
}

func newProjectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a project with its entities, connections and history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			p, err := store.GetProjectByName(ctx, args[0])
			if err != nil {
				return err
			}
			if err := store.DeleteProject(ctx, p.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted project %s\n", p.Name)
			return nil
		},
	}
}
