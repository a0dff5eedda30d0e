package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/osintnexus/internal/model"
)

// maxMarkdownEntities caps the entity table so large projects stay readable.
const maxMarkdownEntities = 500

// MarkdownWriter outputs reports as GitHub Flavored Markdown using the
// nao1215/markdown builder.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// WriteScan outputs a scan or workflow report.
func (w *MarkdownWriter) WriteScan(report *ScanReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	if report.Machine != "" {
		md.H1("osintnexus Workflow Report")
	} else {
		md.H1("osintnexus Scan Report")
	}
	md.PlainText("")

	rows := [][]string{}
	if report.Project != "" {
		rows = append(rows, []string{"Project", report.Project})
	}
	if report.Machine != "" {
		rows = append(rows, []string{"Machine", report.Machine})
	}
	for _, f := range targetFields(report.Target) {
		rows = append(rows, []string{f[0], "`" + f[1] + "`"})
	}
	if !report.StartedAt.IsZero() {
		rows = append(rows, []string{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")})
	}
	rows = append(rows, []string{"Elapsed", report.Elapsed.Round(time.Millisecond).String()})
	md.Table(markdown.TableSet{Header: []string{"Property", "Value"}, Rows: rows})
	md.PlainText("")

	w.writeAlert(md, report)
	w.writeSteps(md, report)
	w.writeModules(md, report)

	entities := report.Discoveries()
	w.writeEntityChart(md, "Discovered Entity Types", entities)
	w.writeEntities(md, entities)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeAlert summarizes the run outcome as a GitHub alert.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *ScanReport) {
	s := report.Summary()
	switch {
	case report.Cancelled:
		md.Importantf("The run was cancelled. %d module run(s) finished before cancellation.", s.Completed)
	case s.Failed > 0:
		md.Warningf("%d of %d module run(s) failed.", s.Failed, s.Total)
	case s.Total == 0:
		md.Note("No module accepted the target.")
	default:
		md.Tip("All module runs completed.")
	}
	md.PlainText("")
}

// writeSteps writes the workflow step table.
func (w *MarkdownWriter) writeSteps(md *markdown.Markdown, report *ScanReport) {
	if len(report.Steps) == 0 {
		return
	}
	md.H2("Steps")
	md.PlainText("")

	rows := make([][]string, len(report.Steps))
	for i, s := range report.Steps {
		status := "✅ ran"
		if s.Skipped {
			status = "⏭️ skipped"
		}
		rows[i] = []string{
			strconv.Itoa(s.Index + 1),
			s.Description,
			status,
			strconv.Itoa(s.Candidates),
			strconv.Itoa(s.Invocations),
			strconv.Itoa(s.Failed),
			strconv.Itoa(s.Discovered),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"#", "Step", "Status", "Candidates", "Runs", "Failed", "Discovered"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeModules writes the module result table.
func (w *MarkdownWriter) writeModules(md *markdown.Markdown, report *ScanReport) {
	md.H2("Modules")
	md.PlainText("")

	if len(report.Results) == 0 {
		md.PlainText("No modules ran.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(report.Results))
	for i, r := range report.Results {
		errText := r.Error
		if errText == "" {
			errText = "-"
		}
		rows[i] = []string{
			r.Module,
			statusEmoji(r.Status) + " " + r.Status.String(),
			strconv.Itoa(len(r.Entities)),
			strconv.Itoa(len(r.Relations)),
			r.Elapsed.Round(time.Millisecond).String(),
			truncateString(errText, 60),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Module", "Status", "Entities", "Connections", "Elapsed", "Error"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeEntityChart writes a mermaid pie chart of entity types.
func (w *MarkdownWriter) writeEntityChart(md *markdown.Markdown, title string, entities []model.Entity) {
	if len(entities) == 0 {
		return
	}
	counts := countByType(entities)

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle(title),
		piechart.WithShowData(true),
	)
	for _, t := range sortedKeys(counts) {
		chart.LabelAndIntValue(t, uint64(counts[t])) //nolint:gosec // counts are positive
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeEntities writes the entity table.
func (w *MarkdownWriter) writeEntities(md *markdown.Markdown, entities []model.Entity) {
	md.H2("Entities")
	md.PlainText("")

	if len(entities) == 0 {
		md.PlainText("No entities discovered.")
		md.PlainText("")
		return
	}

	shown := entities
	if len(shown) > maxMarkdownEntities {
		shown = shown[:maxMarkdownEntities]
	}
	rows := make([][]string, len(shown))
	for i, e := range shown {
		label := e.Label
		if label == "" || label == e.Value {
			label = "-"
		}
		rows[i] = []string{e.Type, "`" + truncateString(e.Value, 80) + "`", truncateString(label, 50)}
	}
	md.Table(markdown.TableSet{Header: []string{"Type", "Value", "Label"}, Rows: rows})
	md.PlainText("")
	if len(entities) > len(shown) {
		md.PlainTextf("*%d more entities not shown.*", len(entities)-len(shown))
		md.PlainText("")
	}
}

// WriteExport outputs a project snapshot.
func (w *MarkdownWriter) WriteExport(export *model.ProjectExport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1(fmt.Sprintf("Project: %s", export.Project.Name))
	md.PlainText("")

	rows := [][]string{
		{"ID", strconv.FormatInt(export.Project.ID, 10)},
		{"Entities", strconv.Itoa(len(export.Entities))},
		{"Connections", strconv.Itoa(len(export.Connections))},
		{"Exported", export.ExportedAt.Format("2006-01-02 15:04:05 MST")},
	}
	if export.Project.Description != "" {
		rows = append([][]string{{"Description", export.Project.Description}}, rows...)
	}
	md.Table(markdown.TableSet{Header: []string{"Property", "Value"}, Rows: rows})
	md.PlainText("")

	w.writeEntityChart(md, "Entity Types", export.Entities)
	w.writeEntities(md, export.Entities)
	w.writeConnections(md, export)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeConnections writes the connection table of an export.
func (w *MarkdownWriter) writeConnections(md *markdown.Markdown, export *model.ProjectExport) {
	md.H2("Connections")
	md.PlainText("")

	if len(export.Connections) == 0 {
		md.PlainText("No connections.")
		md.PlainText("")
		return
	}

	byID := export.EntityByID()
	rows := make([][]string, len(export.Connections))
	for i, c := range export.Connections {
		rows[i] = []string{
			truncateString(byID[c.SourceID].DisplayLabel(), 50),
			c.Relationship,
			truncateString(byID[c.TargetID].DisplayLabel(), 50),
			strconv.FormatFloat(c.Weight, 'g', -1, 64),
		}
	}
	md.Table(markdown.TableSet{Header: []string{"Source", "Relationship", "Target", "Weight"}, Rows: rows})
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [osintnexus](https://github.com/nao1215/osintnexus)*")
}

func statusEmoji(s model.Status) string {
	switch s {
	case model.StatusCompleted:
		return "✅"
	case model.StatusFailed:
		return "❌"
	case model.StatusCancelled:
		return "⚠️"
	default:
		return "❔"
	}
}
