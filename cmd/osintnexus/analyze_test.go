package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/nao1215/osintnexus/internal/analytics"
	"github.com/nao1215/osintnexus/internal/model"
)

func TestGraphName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "identifier kept", in: "acme", want: "acme"},
		{name: "underscore kept", in: "red_team2", want: "red_team2"},
		{name: "dash quoted", in: "red-team", want: `"red-team"`},
		{name: "space quoted", in: "red team", want: `"red team"`},
		{name: "leading digit quoted", in: "2024", want: `"2024"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := graphName(tt.in); got != tt.want {
				t.Errorf("graphName(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestProjectAnalytics(t *testing.T) {
	t.Parallel()

	env := testEnv(t, "")
	run := func(t *testing.T, args ...string) string {
		t.Helper()
		stdout, _, err := execute(t, append(args, env...)...)
		if err != nil {
			t.Fatalf("%v: unexpected error: %v", args, err)
		}
		return stdout
	}
	run(t, "scan", "-q", "--project", "acme", "--email", "carol@example.net", "--modules", "Email Split")

	var export model.ProjectExport
	if err := json.Unmarshal([]byte(run(t, "project", "export", "acme")), &export); err != nil {
		t.Fatalf("invalid export JSON: %v", err)
	}
	ids := make(map[string]string)
	for _, e := range export.Entities {
		ids[e.Type] = strconv.FormatInt(e.ID, 10)
	}

	t.Run("analyze prints statistics and rankings", func(t *testing.T) {
		out := run(t, "project", "analyze", "acme")
		for _, want := range []string{"Entities:     3", "Connections:  2", "Top entities by pagerank", "Communities", "carol@example.net"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected analyze output to contain %q:\n%s", want, out)
			}
		}
	})

	t.Run("analyze as JSON", func(t *testing.T) {
		var report analytics.Report
		if err := json.Unmarshal([]byte(run(t, "project", "analyze", "acme", "--json", "--metric", "degree", "--top", "1")), &report); err != nil {
			t.Fatalf("invalid analyze JSON: %v", err)
		}
		if report.Statistics.Entities != 3 || report.Statistics.Connections != 2 {
			t.Errorf("unexpected statistics: %+v", report.Statistics)
		}
		if len(report.Top) != 1 || report.Top[0].Entity.Type != model.EntityEmail {
			t.Errorf("expected the email to rank first by degree, got %+v", report.Top)
		}
	})

	t.Run("analyze rejects unknown metric", func(t *testing.T) {
		if _, _, err := execute(t, append([]string{"project", "analyze", "acme", "--metric", "eigenvector"}, env...)...); err == nil {
			t.Error("expected an error for an unknown metric")
		}
	})

	t.Run("path through the email", func(t *testing.T) {
		out := run(t, "project", "path", "acme", ids[model.EntityUsername], ids[model.EntityDomain])
		for _, want := range []string{"1. (2 hops)", "username:carol", "email:carol@example.net", "domain:example.net"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected path output to contain %q:\n%s", want, out)
			}
		}
	})

	t.Run("path to unknown entity", func(t *testing.T) {
		_, _, err := execute(t, append([]string{"project", "path", "acme", ids[model.EntityEmail], "999999"}, env...)...)
		if !errors.Is(err, analytics.ErrUnknownEntity) {
			t.Errorf("expected ErrUnknownEntity, got %v", err)
		}
	})

	t.Run("path rejects malformed id", func(t *testing.T) {
		if _, _, err := execute(t, append([]string{"project", "path", "acme", "x", "1"}, env...)...); err == nil {
			t.Error("expected an error for a malformed entity id")
		}
	})

	t.Run("graph exports", func(t *testing.T) {
		dir := t.TempDir()
		tests := []struct {
			format string
			want   []string
		}{
			{format: formatGraphML, want: []string{"<graphml", `edgedefault="directed"`, "carol@example.net"}},
			{format: formatDOT, want: []string{"digraph acme {", "carol@example.net", "->"}},
		}
		for _, tt := range tests {
			path := filepath.Join(dir, "acme."+tt.format)
			run(t, "project", "export", "acme", "--format", tt.format, "-o", path)
			b, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("failed to read %s export: %v", tt.format, err)
			}
			for _, want := range tt.want {
				if !strings.Contains(string(b), want) {
					t.Errorf("expected %s export to contain %q:\n%s", tt.format, want, b)
				}
			}
		}
	})
}
