package report

import (
	"cmp"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/nao1215/osintnexus/internal/machine"
	"github.com/nao1215/osintnexus/internal/model"
)

// Writer defines the interface for report output.
type Writer interface {
	// WriteScan renders a scan or workflow run.
	WriteScan(report *ScanReport) (int, error)

	// WriteExport renders a project snapshot.
	WriteExport(export *model.ProjectExport) (int, error)
}

// ScanReport is the renderable outcome of a scan or a workflow run.
type ScanReport struct {
	Project   string             `json:"project,omitempty"`
	ScanID    string             `json:"scan_id,omitempty"`
	Target    model.Target       `json:"target"`
	StartedAt time.Time          `json:"started_at"`
	Elapsed   time.Duration      `json:"-"`
	Results   []model.ScanResult `json:"results"`

	// Machine, Cancelled and Steps are set for workflow runs.
	Machine   string                `json:"machine,omitempty"`
	Cancelled bool                  `json:"cancelled,omitempty"`
	Steps     []machine.StepOutcome `json:"steps,omitempty"`

	// Entities overrides the discovered entities shown in the report. A
	// workflow sets it to the output of its last step.
	Entities []model.Entity `json:"entities,omitempty"`
}

// Summary counts the results by status.
func (r *ScanReport) Summary() model.Summary {
	return model.Summarize(r.Results)
}

// Discoveries returns the entities to show: Entities when set, otherwise
// the distinct entities of the completed results. The result is sorted by
// type and value.
func (r *ScanReport) Discoveries() []model.Entity {
	var out []model.Entity
	if r.Entities != nil {
		out = slices.Clone(r.Entities)
	} else {
		seen := make(map[model.Identity]bool)
		for _, res := range r.Results {
			if !res.Succeeded() {
				continue
			}
			for _, e := range res.Entities {
				id := e.IdentityIn(0)
				if seen[id] {
					continue
				}
				seen[id] = true
				out = append(out, e)
			}
		}
	}
	slices.SortStableFunc(out, func(a, b model.Entity) int {
		return cmp.Or(cmp.Compare(a.Type, b.Type), cmp.Compare(a.Value, b.Value))
	})
	return out
}

// countByType counts entities per type.
func countByType(entities []model.Entity) map[string]int {
	counts := make(map[string]int)
	for _, e := range entities {
		counts[e.Type]++
	}
	return counts
}

// sortedKeys returns the keys of counts, largest count first.
func sortedKeys(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		return cmp.Or(cmp.Compare(counts[b], counts[a]), cmp.Compare(a, b))
	})
	return keys
}

// sortedAttributeKeys returns the attribute names in lexical order.
func sortedAttributeKeys(attrs map[string]any) []string {
	return slices.Sorted(maps.Keys(attrs))
}

// MultiWriter writes to multiple Writers, stopping at the first error.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// WriteScan implements Writer.
func (m *MultiWriter) WriteScan(report *ScanReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteScan(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteExport implements Writer.
func (m *MultiWriter) WriteExport(export *model.ProjectExport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteExport(export)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Format selects a writer implementation.
type Format string

const (
	FormatSimple   Format = "simple"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// New returns the writer for format. Unknown formats get the simple writer.
func New(format Format, output io.Writer) Writer {
	switch format {
	case FormatJSON:
		return NewJSONWriter(output, WithPrettyPrint())
	case FormatMarkdown:
		return NewMarkdownWriter(output)
	default:
		return NewSimpleWriter(output)
	}
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// truncateString truncates a string to maxLen bytes with an ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// targetFields lists the populated identity fields of t as label/value pairs.
func targetFields(t model.Target) [][2]string {
	var out [][2]string
	for _, f := range []struct{ name, value string }{
		{"Username", t.Username},
		{"Email", t.Email},
		{"Phone", t.Phone},
		{"Domain", t.Domain},
		{"IP", t.IP},
		{"Platform", t.Platform},
	} {
		if f.value != "" {
			out = append(out, [2]string{f.name, f.value})
		}
	}
	return out
}
