package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/osintnexus/internal/model"
)

// JSONWriter outputs reports in JSON format for tool integration.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	indent       bool
	indentPrefix string
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint is WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// jsonScanReport adds derived fields to a ScanReport.
type jsonScanReport struct {
	*ScanReport
	ElapsedSeconds float64        `json:"elapsed_seconds"`
	Summary        model.Summary  `json:"summary"`
	Discovered     []model.Entity `json:"discovered"`
}

// WriteScan outputs the report with its summary and discovered entities.
func (w *JSONWriter) WriteScan(report *ScanReport) (int, error) {
	discovered := report.Discoveries()
	if discovered == nil {
		discovered = []model.Entity{}
	}
	return w.writeJSON(jsonScanReport{
		ScanReport:     report,
		ElapsedSeconds: report.Elapsed.Seconds(),
		Summary:        report.Summary(),
		Discovered:     discovered,
	})
}

// WriteExport outputs the project snapshot as is.
func (w *JSONWriter) WriteExport(export *model.ProjectExport) (int, error) {
	return w.writeJSON(export)
}

// writeJSON marshals v and writes it with a trailing newline.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}
	data = append(data, '\n')
	return w.output.Write(data)
}
