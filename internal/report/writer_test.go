package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/osintnexus/internal/machine"
	"github.com/nao1215/osintnexus/internal/model"
)

// createTestReport creates a scan report with one completed and one failed
// module run.
func createTestReport() *ScanReport {
	domain := model.NewEntity(model.EntityDomain, "example.com")
	ip := model.NewEntity(model.EntityIP, "192.0.2.1")
	mx := model.NewEntity(model.EntityDomain, "mx.example.com").WithAttribute("preference", 10)

	return &ScanReport{
		Project:   "acme",
		ScanID:    "scan-1",
		Target:    model.Target{Domain: "example.com"},
		StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Elapsed:   1500 * time.Millisecond,
		Results: []model.ScanResult{
			{
				Module:    "DNS Resolver",
				Status:    model.StatusCompleted,
				Entities:  []model.Entity{domain, ip, mx, domain},
				Relations: []model.Relation{model.NewRelation(domain, ip, "resolves_to")},
				Elapsed:   50 * time.Millisecond,
			},
			{
				Module:  "Shodan Lookup",
				Status:  model.StatusFailed,
				Error:   "missing api key",
				Elapsed: time.Millisecond,
			},
		},
	}
}

// createTestExport creates a two-entity project export.
func createTestExport() *model.ProjectExport {
	return &model.ProjectExport{
		Project: model.Project{ID: 7, Name: "acme", Description: "red team"},
		Entities: []model.Entity{
			{ID: 1, ProjectID: 7, Type: model.EntityDomain, Value: "example.com", Label: "example.com"},
			{ID: 2, ProjectID: 7, Type: model.EntityIP, Value: "192.0.2.1"},
		},
		Connections: []model.Connection{
			{ID: 1, ProjectID: 7, SourceID: 1, TargetID: 2, Relationship: "resolves_to", Weight: 2},
		},
		ExportedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestDiscoveries(t *testing.T) {
	t.Parallel()

	t.Run("deduplicates completed results", func(t *testing.T) {
		t.Parallel()

		got := createTestReport().Discoveries()
		want := []string{"domain:example.com", "domain:mx.example.com", "ip:192.0.2.1"}
		if len(got) != len(want) {
			t.Fatalf("expected %d entities, got %d", len(want), len(got))
		}
		for i, e := range got {
			if e.Type+":"+e.Value != want[i] {
				t.Errorf("entity %d = %s:%s, want %s", i, e.Type, e.Value, want[i])
			}
		}
	})

	t.Run("explicit entities win", func(t *testing.T) {
		t.Parallel()

		report := createTestReport()
		report.Entities = []model.Entity{model.NewEntity(model.EntityEmail, "a@example.com")}
		got := report.Discoveries()
		if len(got) != 1 || got[0].Value != "a@example.com" {
			t.Errorf("expected only the explicit entity, got %v", got)
		}
	})
}

// TestSimpleWriter tests the human-readable report writer.
func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes scan report", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).WriteScan(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{
			"OSINTNEXUS SCAN REPORT",
			"Project:   acme",
			"example.com",
			"[ok] DNS Resolver",
			"[!!] Shodan Lookup",
			"error: missing api key",
			"TOTAL: 1 completed, 1 failed, 0 cancelled",
			"[domain]",
			"[ip]",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q:\n%s", want, output)
			}
		}
		if strings.Contains(output, "preference") {
			t.Error("expected attributes to be hidden without verbose")
		}
	})

	t.Run("verbose shows attributes", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf, WithVerbose(true)).WriteScan(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "preference: 10") {
			t.Errorf("expected attributes in verbose output:\n%s", buf.String())
		}
	})

	t.Run("workflow report lists steps", func(t *testing.T) {
		t.Parallel()

		report := createTestReport()
		report.Machine = "Footprint Domain L1"
		report.Cancelled = true
		report.Steps = []machine.StepOutcome{
			{Index: 0, Description: "Domain Intelligence", Candidates: 1, Invocations: 2, Discovered: 3},
			{Index: 1, Description: "IP Analysis", Skipped: true},
		}

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).WriteScan(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{
			"OSINTNEXUS WORKFLOW REPORT",
			"Machine:   Footprint Domain L1",
			"CANCELLED",
			"1. Domain Intelligence: 1 candidate(s), 2 run(s), 0 failed, 3 discovered",
			"2. IP Analysis: skipped",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q:\n%s", want, output)
			}
		}
	})

	t.Run("empty report hides sections", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).WriteScan(&ScanReport{Target: model.Target{Email: "a@example.com"}}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Contains(buf.String(), "MODULES") {
			t.Error("expected modules section to be hidden")
		}

		buf.Reset()
		if _, err := NewSimpleWriter(&buf, WithShowEmpty(true)).WriteScan(&ScanReport{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "No modules ran") || !strings.Contains(buf.String(), "Nothing discovered") {
			t.Errorf("expected empty sections:\n%s", buf.String())
		}
	})

	t.Run("writes export", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf, WithVerbose(true)).WriteExport(createTestExport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{
			"Project:     acme (#7)",
			"Description: red team",
			"Connections: 1",
			"example.com -[resolves_to x2]-> 192.0.2.1",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q:\n%s", want, output)
			}
		}
	})
}

// TestJSONWriter tests the JSON report writer.
func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("scan report carries summary and discoveries", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).WriteScan(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var decoded struct {
			Project        string            `json:"project"`
			ElapsedSeconds float64           `json:"elapsed_seconds"`
			Summary        model.Summary     `json:"summary"`
			Discovered     []model.Entity    `json:"discovered"`
			Results        []json.RawMessage `json:"results"`
			Target         model.Target      `json:"target"`
		}
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
		}
		if decoded.Project != "acme" {
			t.Errorf("expected project acme, got %q", decoded.Project)
		}
		if decoded.ElapsedSeconds != 1.5 {
			t.Errorf("expected 1.5 seconds, got %v", decoded.ElapsedSeconds)
		}
		if decoded.Summary.Completed != 1 || decoded.Summary.Failed != 1 {
			t.Errorf("unexpected summary: %+v", decoded.Summary)
		}
		if len(decoded.Discovered) != 3 {
			t.Errorf("expected 3 discovered entities, got %d", len(decoded.Discovered))
		}
		if len(decoded.Results) != 2 {
			t.Errorf("expected 2 results, got %d", len(decoded.Results))
		}
		if decoded.Target.Domain != "example.com" {
			t.Errorf("expected target domain, got %+v", decoded.Target)
		}
	})

	t.Run("pretty print", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithPrettyPrint()).WriteExport(createTestExport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "\n  \"project\"") {
			t.Errorf("expected indented output:\n%s", buf.String())
		}

		var decoded model.ProjectExport
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(decoded.Entities) != 2 || decoded.Connections[0].Weight != 2 {
			t.Errorf("unexpected export: %+v", decoded)
		}
	})

	t.Run("compact output ends with newline", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).WriteScan(&ScanReport{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.HasSuffix(buf.String(), "}\n") {
			t.Errorf("expected trailing newline, got %q", buf.String())
		}
		if !strings.Contains(buf.String(), `"discovered":[]`) {
			t.Errorf("expected empty discovered array, got %s", buf.String())
		}
	})
}

// TestMarkdownWriter tests the Markdown report writer.
func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("scan report", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		n, err := NewMarkdownWriter(&buf).WriteScan(createTestReport())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n == 0 {
			t.Error("expected non-zero length")
		}

		output := buf.String()
		for _, want := range []string{
			"# osintnexus Scan Report",
			"`example.com`",
			"## Modules",
			"DNS Resolver",
			"missing api key",
			"```mermaid",
			"pie",
			"## Entities",
			"[!WARNING]",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q:\n%s", want, output)
			}
		}
	})

	t.Run("workflow report has steps table", func(t *testing.T) {
		t.Parallel()

		report := createTestReport()
		report.Results = report.Results[:1]
		report.Machine = "Email Pivot"
		report.Steps = []machine.StepOutcome{{Index: 0, Description: "Mailbox Breakdown", Invocations: 1}}

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).WriteScan(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{"# osintnexus Workflow Report", "## Steps", "Mailbox Breakdown", "[!TIP]"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q:\n%s", want, output)
			}
		}
	})

	t.Run("export", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).WriteExport(createTestExport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{"# Project: acme", "red team", "## Connections", "resolves_to", "Entity Types"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q:\n%s", want, output)
			}
		}
	})
}

// failingWriter is a Writer that always fails.
type failingWriter struct{ calls int }

func (f *failingWriter) WriteScan(*ScanReport) (int, error) {
	f.calls++
	return 0, errors.New("write failed")
}

func (f *failingWriter) WriteExport(*model.ProjectExport) (int, error) {
	f.calls++
	return 0, errors.New("write failed")
}

// TestMultiWriter tests writing to several writers.
func TestMultiWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes to all writers", func(t *testing.T) {
		t.Parallel()

		var a, b bytes.Buffer
		m := NewMultiWriter(NewSimpleWriter(&a), NewJSONWriter(&b))
		n, err := m.WriteScan(createTestReport())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != a.Len()+b.Len() {
			t.Errorf("expected %d bytes, got %d", a.Len()+b.Len(), n)
		}
	})

	t.Run("stops at first error", func(t *testing.T) {
		t.Parallel()

		first, second := &failingWriter{}, &failingWriter{}
		if _, err := NewMultiWriter(first, second).WriteExport(createTestExport()); err == nil {
			t.Fatal("expected error")
		}
		if first.calls != 1 || second.calls != 0 {
			t.Errorf("expected only the first writer to be called, got %d and %d", first.calls, second.calls)
		}
	})
}

func TestNew(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if _, ok := New(FormatJSON, &buf).(*JSONWriter); !ok {
		t.Error("expected JSONWriter")
	}
	if _, ok := New(FormatMarkdown, &buf).(*MarkdownWriter); !ok {
		t.Error("expected MarkdownWriter")
	}
	if _, ok := New("", &buf).(*SimpleWriter); !ok {
		t.Error("expected SimpleWriter")
	}
}

func TestTruncateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"abcdef", 3, "abc"},
	}
	for _, tt := range tests {
		if got := truncateString(tt.input, tt.maxLen); got != tt.want {
			t.Errorf("truncateString(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
		}
	}
}
