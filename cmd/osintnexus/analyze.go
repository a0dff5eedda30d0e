package main

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/nao1215/osintnexus/internal/analytics"
	"github.com/nao1215/osintnexus/internal/model"
)

// Graph export formats of project export.
const (
	formatGraphML = "graphml"
	formatDOT     = "dot"
)

var dotIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// graphName returns name as a DOT graph identifier.
func graphName(name string) string {
	if dotIdentifier.MatchString(name) {
		return name
	}
	return strconv.Quote(name)
}

func newProjectAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <name>",
		Short: "Analyze a project's entity graph",
		Long: `Analyze ranks the entities of a project by centrality, detects
communities, and flags anomalies: isolated entities, degree outliers,
bridges between parts of the graph, and hubs linking many entity types.`,
		Args: cobra.ExactArgs(1),
		RunE: runProjectAnalyzeCmd,
	}
	cmd.Flags().Int("top", analytics.DefaultTop, "Number of top-ranked entities to list")
	cmd.Flags().String("metric", string(analytics.MetricPageRank), "Ranking metric: degree, betweenness, closeness or pagerank")
	cmd.Flags().Float64("sensitivity", analytics.DefaultSensitivity, "Standard deviations above the mean degree that make an outlier")
	cmd.Flags().BoolP("json", "j", false, "Output the analysis as JSON")
	return cmd
}

func runProjectAnalyzeCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	top, err := flags.GetInt("top")
	if err != nil {
		return err
	}
	metricName, err := flags.GetString("metric")
	if err != nil {
		return err
	}
	metric, err := analytics.ParseMetric(metricName)
	if err != nil {
		return err
	}
	sensitivity, err := flags.GetFloat64("sensitivity")
	if err != nil {
		return err
	}
	asJSON, err := flags.GetBool("json")
	if err != nil {
		return err
	}

	export, err := loadExport(cmd, args[0])
	if err != nil {
		return err
	}
	result := analytics.FromExport(export).Analyze(analytics.Options{
		Top:         top,
		Metric:      metric,
		Sensitivity: sensitivity,
	})

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	return writeAnalysis(out, export.Project.Name, result)
}

// loadExport opens the store and exports the project named name.
func loadExport(cmd *cobra.Command, name string) (*model.ProjectExport, error) {
	_, store, err := openStore(cmd)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	ctx := cmd.Context()
	p, err := store.GetProjectByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return store.ExportProject(ctx, p.ID)
}

func writeAnalysis(out io.Writer, project string, r *analytics.Report) error {
	s := r.Statistics
	fmt.Fprintf(out, "Project:      %s\n", project)
	fmt.Fprintf(out, "Entities:     %d\n", s.Entities)
	fmt.Fprintf(out, "Connections:  %d\n", s.Connections)
	fmt.Fprintf(out, "Density:      %.3f\n", s.Density)
	fmt.Fprintf(out, "Components:   %d\n", s.Components)
	fmt.Fprintf(out, "Clustering:   %.3f\n", s.AvgClustering)
	if s.Diameter != nil {
		fmt.Fprintf(out, "Diameter:     %d\n", *s.Diameter)
	}
	if s.Entities == 0 {
		return nil
	}

	fmt.Fprintf(out, "\nTop entities by %s:\n", r.Metric)
	data := pterm.TableData{{"ID", "TYPE", "VALUE", "DEGREE", "BETWEENNESS", "CLOSENESS", "PAGERANK"}}
	for _, c := range r.Top {
		data = append(data, []string{
			strconv.FormatInt(c.Entity.ID, 10),
			c.Entity.Type,
			c.Entity.DisplayLabel(),
			score(c.Degree),
			score(c.Betweenness),
			score(c.Closeness),
			score(c.PageRank),
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithWriter(out).WithData(data).Render(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nCommunities (modularity %.3f):\n", r.Modularity)
	data = pterm.TableData{{"COMMUNITY", "SIZE", "DENSITY", "ENTITY IDS"}}
	for _, c := range r.Communities {
		ids := make([]string, len(c.EntityIDs))
		for i, id := range c.EntityIDs {
			ids[i] = strconv.FormatInt(id, 10)
		}
		data = append(data, []string{c.Label, strconv.Itoa(len(c.EntityIDs)), score(c.Density), strings.Join(ids, " ")})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithWriter(out).WithData(data).Render(); err != nil {
		return err
	}

	if len(r.Anomalies) == 0 {
		fmt.Fprintln(out, "\nNo anomalies found")
		return nil
	}
	fmt.Fprintln(out, "\nAnomalies:")
	data = pterm.TableData{{"KIND", "ID", "ENTITY", "SCORE", "DESCRIPTION"}}
	for _, a := range r.Anomalies {
		data = append(data, []string{
			a.Kind,
			strconv.FormatInt(a.Entity.ID, 10),
			fmt.Sprintf("%s %s", a.Entity.Type, a.Entity.DisplayLabel()),
			score(a.Score),
			a.Description,
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithWriter(out).WithData(data).Render()
}

func score(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }

func newProjectPathCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path <name> <from-id> <to-id>",
		Short: "Show the shortest links between two entities of a project",
		Args:  cobra.ExactArgs(3),
		RunE:  runProjectPathCmd,
	}
	cmd.Flags().Int("limit", analytics.DefaultPathLimit, "Maximum number of paths to list")
	return cmd
}

func runProjectPathCmd(cmd *cobra.Command, args []string) error {
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	from, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid entity id %q: %w", args[1], err)
	}
	to, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid entity id %q: %w", args[2], err)
	}

	export, err := loadExport(cmd, args[0])
	if err != nil {
		return err
	}
	g := analytics.FromExport(export)
	paths, err := g.ShortestPaths(from, to, limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(paths) == 0 {
		fmt.Fprintf(out, "No path between entities %d and %d\n", from, to)
		return nil
	}
	for i, p := range paths {
		var sb strings.Builder
		for j, id := range p.EntityIDs {
			if j > 0 {
				fmt.Fprintf(&sb, " -[%s]- ", p.Relationships[j-1])
			}
			e, _ := g.Entity(id)
			fmt.Fprintf(&sb, "%s:%s", e.Type, e.DisplayLabel())
		}
		fmt.Fprintf(out, "%d. (%d hops) %s\n", i+1, p.Len(), sb.String())
	}
	return nil
}
