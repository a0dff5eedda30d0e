package main

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/osintnexus/internal/config"
	"github.com/nao1215/osintnexus/internal/machine"
	"github.com/nao1215/osintnexus/internal/model"
	"github.com/nao1215/osintnexus/internal/module"
	"github.com/nao1215/osintnexus/internal/probe"
	"github.com/nao1215/osintnexus/internal/report"
)

// parsedScanCmd returns the scan subcommand of a root command after
// parsing args.
func parsedScanCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()

	root := NewRootCmd()
	cmd, rest, err := root.Find(append([]string{"scan"}, args...))
	if err != nil {
		t.Fatalf("failed to find scan command: %v", err)
	}
	if err := cmd.ParseFlags(rest); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}
	return cmd
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	t.Run("file values apply", func(t *testing.T) {
		t.Parallel()

		env := testEnv(t, "scan:\n  max_concurrency: 3\n  module_timeout: 5s\n  project: acme\napi_keys:\n  shodan: from-file\n")
		cfg, err := loadConfig(parsedScanCmd(t, env...))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.MaxConcurrency != 3 {
			t.Errorf("expected concurrency 3, got %d", cfg.MaxConcurrency)
		}
		if cfg.ModuleTimeout != 5*time.Second {
			t.Errorf("expected timeout 5s, got %s", cfg.ModuleTimeout)
		}
		if cfg.ProjectName != "acme" {
			t.Errorf("expected project acme, got %q", cfg.ProjectName)
		}
		if cfg.DBDir != env[3] {
			t.Errorf("expected db dir %q, got %q", env[3], cfg.DBDir)
		}
	})

	t.Run("explicit flags win over the file", func(t *testing.T) {
		t.Parallel()

		env := testEnv(t, "scan:\n  max_concurrency: 3\n  project: acme\n")
		cfg, err := loadConfig(parsedScanCmd(t, append(env, "--concurrency", "5", "--project", "other", "--json")...))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.MaxConcurrency != 5 {
			t.Errorf("expected concurrency 5, got %d", cfg.MaxConcurrency)
		}
		if cfg.ProjectName != "other" {
			t.Errorf("expected project other, got %q", cfg.ProjectName)
		}
		if !cfg.JSONReport {
			t.Error("expected JSON report")
		}
	})

	t.Run("conflicting report formats", func(t *testing.T) {
		t.Parallel()

		env := testEnv(t, "")
		_, err := loadConfig(parsedScanCmd(t, append(env, "--json", "--markdown")...))
		if !errors.Is(err, config.ErrConflictingReportFormats) {
			t.Errorf("expected ErrConflictingReportFormats, got %v", err)
		}
	})

	t.Run("missing explicit config file", func(t *testing.T) {
		t.Parallel()

		missing := filepath.Join(t.TempDir(), "missing.yaml")
		_, err := loadConfig(parsedScanCmd(t, "--config", missing))
		if !errors.Is(err, config.ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})
}

func testModules(t *testing.T) *module.Registry {
	t.Helper()

	r, err := module.NewRegistry(probe.Builtins(probe.Options{})...)
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}
	return r
}

func TestNewMachineRegistry(t *testing.T) {
	t.Parallel()

	t.Run("defaults without a file", func(t *testing.T) {
		t.Parallel()

		r, err := newMachineRegistry(nil, testModules(t))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := r.Get(machine.FootprintDomainL1); err != nil {
			t.Errorf("expected default machine: %v", err)
		}
	})

	t.Run("config machine replaces default", func(t *testing.T) {
		t.Parallel()

		file := &config.File{Machines: []config.MachineConfig{
			{
				Name: machine.EmailPivot,
				Steps: []config.StepConfig{
					{Description: "Split", Modules: []string{probe.NameEmailSplit}, EntityTypes: []string{model.EntityEmail}},
				},
			},
			{
				Name: "Offline Pivot",
				Steps: []config.StepConfig{
					{Modules: []string{probe.NameEmailSplit}},
					{Modules: []string{probe.NameProfileURLs}, EntityTypes: []string{model.EntityUsername}},
				},
			},
		}}

		r, err := newMachineRegistry(file, testModules(t))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		pivot, err := r.Get(machine.EmailPivot)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if pivot.Len() != 1 {
			t.Errorf("expected the config machine with 1 step, got %d", pivot.Len())
		}
		if _, err := r.Get("Offline Pivot"); err != nil {
			t.Errorf("expected config machine: %v", err)
		}
	})

	t.Run("unknown module", func(t *testing.T) {
		t.Parallel()

		file := &config.File{Machines: []config.MachineConfig{
			{Name: "Broken", Steps: []config.StepConfig{{Modules: []string{"No Such Module"}}}},
		}}
		_, err := newMachineRegistry(file, testModules(t))
		if !errors.Is(err, machine.ErrInvalidMachine) {
			t.Fatalf("expected ErrInvalidMachine, got %v", err)
		}
		if !strings.Contains(err.Error(), "No Such Module") {
			t.Errorf("expected the module name in %v", err)
		}
	})

	t.Run("machine without steps", func(t *testing.T) {
		t.Parallel()

		file := &config.File{Machines: []config.MachineConfig{{Name: "Empty"}}}
		if _, err := newMachineRegistry(file, testModules(t)); !errors.Is(err, machine.ErrInvalidMachine) {
			t.Errorf("expected ErrInvalidMachine, got %v", err)
		}
	})
}

func TestReportFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  config.Config
		want report.Format
	}{
		{"default", config.Config{}, report.FormatSimple},
		{"json", config.Config{JSONReport: true}, report.FormatJSON},
		{"markdown", config.Config{MarkdownReport: true}, report.FormatMarkdown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := reportFormat(&tt.cfg); got != tt.want {
				t.Errorf("reportFormat() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWriteReportToFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "report.txt")
	err := writeReport(&cobra.Command{}, path, report.FormatSimple, func(w report.Writer) error {
		_, err := w.WriteScan(&report.ScanReport{Target: model.Target{Domain: "example.com"}})
		return err
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read report: %v", err)
	}
	if !strings.Contains(string(content), "example.com") {
		t.Errorf("expected the target in the report, got %q", content)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("failed to stat report: %v", err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm() != 0600 {
		t.Errorf("expected permissions 0600, got %o", info.Mode().Perm())
	}
}
