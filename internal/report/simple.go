package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/osintnexus/internal/model"
)

const ruleWidth = 70

// SimpleWriter outputs human-readable text reports for terminal display.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with nothing to list are shown.
	showEmpty bool

	// verbose adds entity attributes and connection lists.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteScan outputs a scan or workflow report.
func (w *SimpleWriter) WriteScan(report *ScanReport) (int, error) {
	var sb strings.Builder

	title := "OSINTNEXUS SCAN REPORT"
	if report.Machine != "" {
		title = "OSINTNEXUS WORKFLOW REPORT"
	}
	writeBanner(&sb, title)

	if report.Project != "" {
		fmt.Fprintf(&sb, "Project:   %s\n", report.Project)
	}
	if report.Machine != "" {
		fmt.Fprintf(&sb, "Machine:   %s\n", report.Machine)
	}
	for _, f := range targetFields(report.Target) {
		fmt.Fprintf(&sb, "%-10s %s\n", f[0]+":", f[1])
	}
	if !report.StartedAt.IsZero() {
		fmt.Fprintf(&sb, "Started:   %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Fprintf(&sb, "Elapsed:   %s\n", report.Elapsed.Round(time.Millisecond))
	if report.Cancelled {
		sb.WriteString("Status:    CANCELLED (partial results)\n")
	}
	sb.WriteString("\n")

	w.writeSteps(&sb, report)
	w.writeModules(&sb, report)
	w.writeEntities(&sb, report.Discoveries())
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// writeSteps lists workflow steps.
func (w *SimpleWriter) writeSteps(sb *strings.Builder, report *ScanReport) {
	if len(report.Steps) == 0 {
		return
	}
	writeSection(sb, "STEPS")
	for _, s := range report.Steps {
		if s.Skipped {
			fmt.Fprintf(sb, "  %d. %s: skipped\n", s.Index+1, s.Description)
			continue
		}
		fmt.Fprintf(sb, "  %d. %s: %d candidate(s), %d run(s), %d failed, %d discovered (%s)\n",
			s.Index+1, s.Description, s.Candidates, s.Invocations, s.Failed, s.Discovered,
			s.Duration.Round(time.Millisecond))
	}
	sb.WriteString("\n")
}

// writeModules lists every module result with its status indicator.
func (w *SimpleWriter) writeModules(sb *strings.Builder, report *ScanReport) {
	if len(report.Results) == 0 && !w.showEmpty {
		return
	}
	writeSection(sb, "MODULES")

	if len(report.Results) == 0 {
		sb.WriteString("  No modules ran\n\n")
		return
	}
	for _, r := range report.Results {
		fmt.Fprintf(sb, "  [%s] %-22s %3d entities %3d connections  %s\n",
			statusIndicator(r.Status), r.Module, len(r.Entities), len(r.Relations),
			r.Elapsed.Round(time.Millisecond))
		if r.Error != "" {
			fmt.Fprintf(sb, "      error: %s\n", r.Error)
		}
	}

	s := report.Summary()
	fmt.Fprintf(sb, "\n  TOTAL: %d completed, %d failed, %d cancelled\n\n", s.Completed, s.Failed, s.Cancelled)
}

// writeEntities lists discovered entities grouped by type.
func (w *SimpleWriter) writeEntities(sb *strings.Builder, entities []model.Entity) {
	if len(entities) == 0 && !w.showEmpty {
		return
	}
	writeSection(sb, "DISCOVERED ENTITIES")

	if len(entities) == 0 {
		sb.WriteString("  Nothing discovered\n\n")
		return
	}

	current := ""
	for _, e := range entities {
		if e.Type != current {
			current = e.Type
			fmt.Fprintf(sb, "[%s]\n", current)
		}
		if e.Label != "" && e.Label != e.Value {
			fmt.Fprintf(sb, "  * %s (%s)\n", e.Value, e.Label)
		} else {
			fmt.Fprintf(sb, "  * %s\n", e.Value)
		}
		if w.verbose {
			for _, k := range sortedAttributeKeys(e.Attributes) {
				fmt.Fprintf(sb, "      %s: %v\n", k, e.Attributes[k])
			}
		}
	}
	sb.WriteString("\n")
}

// WriteExport outputs a project snapshot.
func (w *SimpleWriter) WriteExport(export *model.ProjectExport) (int, error) {
	var sb strings.Builder

	writeBanner(&sb, "OSINTNEXUS PROJECT")
	fmt.Fprintf(&sb, "Project:     %s (#%d)\n", export.Project.Name, export.Project.ID)
	if export.Project.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", export.Project.Description)
	}
	fmt.Fprintf(&sb, "Entities:    %d\n", len(export.Entities))
	fmt.Fprintf(&sb, "Connections: %d\n\n", len(export.Connections))

	counts := export.CountByType()
	if len(counts) > 0 {
		writeSection(&sb, "ENTITY TYPES")
		for _, t := range sortedKeys(counts) {
			fmt.Fprintf(&sb, "  %-12s %d\n", t, counts[t])
		}
		sb.WriteString("\n")
	}

	w.writeEntities(&sb, export.Entities)

	if w.verbose && len(export.Connections) > 0 {
		writeSection(&sb, "CONNECTIONS")
		byID := export.EntityByID()
		for _, c := range export.Connections {
			fmt.Fprintf(&sb, "  %s -[%s x%g]-> %s\n",
				byID[c.SourceID].DisplayLabel(), c.Relationship, c.Weight, byID[c.TargetID].DisplayLabel())
		}
		sb.WriteString("\n")
	}

	w.writeFooter(&sb)
	return w.output.Write([]byte(sb.String()))
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\nReport generated by osintnexus\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
}

func writeBanner(sb *strings.Builder, title string) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
	pad := max(0, (ruleWidth-len(title))/2)
	sb.WriteString(strings.Repeat(" ", pad) + title + "\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n\n")
}

func writeSection(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n\n")
}

// statusIndicator returns a short visual marker for a result status.
func statusIndicator(s model.Status) string {
	switch s {
	case model.StatusCompleted:
		return "ok"
	case model.StatusFailed:
		return "!!"
	case model.StatusCancelled:
		return "--"
	default:
		return "??"
	}
}
