package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/osintnexus/internal/config"
	"github.com/nao1215/osintnexus/internal/engine"
	"github.com/nao1215/osintnexus/internal/metrics"
	"github.com/nao1215/osintnexus/internal/model"
	"github.com/nao1215/osintnexus/internal/report"
)

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run collection modules against a target",
		Long: `Scan runs every module that applies to the given target, or only the
modules named with --modules, and stores what they discover in a project.

A module applies when the target carries one of its input fields. Modules
run concurrently; a failing module never stops the others.

Examples:
  # Everything that applies to a domain
  osintnexus scan --domain example.com

  # Selected modules only, into the "acme" project
  osintnexus scan --domain example.com --modules "DNS Resolver,Web Footprint" --project acme

  # Phone number in national format
  osintnexus scan --phone "030 1234567" --option region=DE

  # Markdown report written to a file
  osintnexus scan --email alice@example.com --markdown -o report.md`,
		Args: cobra.NoArgs,
		RunE: runScanCmd,
	}

	addTargetFlags(cmd)
	cmd.Flags().StringSliceP("modules", "M", nil,
		"Run only these modules (comma separated, see 'osintnexus modules')")
	cmd.Flags().StringToString("option", nil,
		"Module option as key=value (repeatable)")
	addRunFlags(cmd)

	return cmd
}

// addTargetFlags registers the target identity flags.
func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("username", "u", "", "Username to investigate")
	cmd.Flags().StringP("email", "e", "", "Email address to investigate")
	cmd.Flags().String("phone", "", "Phone number to investigate")
	cmd.Flags().StringP("domain", "d", "", "Domain to investigate")
	cmd.Flags().String("ip", "", "IP address to investigate")
	cmd.Flags().String("platform", "", "Restrict profile lookups to one platform")
}

// addRunFlags registers the flags shared by scan and machine run.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("project", "p", config.DefaultProjectName,
		"Project the results are stored in")
	cmd.Flags().IntP("concurrency", "n", config.DefaultMaxConcurrency,
		"Maximum number of modules running at once")
	cmd.Flags().DurationP("timeout", "t", config.DefaultModuleTimeout,
		"Network timeout of each probe request")
	cmd.Flags().Int("depth", config.DefaultScanDepth,
		"Recursion depth hint handed to modules")
	cmd.Flags().Int("limit", config.DefaultResultLimit,
		"Maximum number of items a module collects per list")
	cmd.Flags().String("proxy", "",
		"SOCKS5 proxy for probe traffic (host:port or socks5://host:port)")
	cmd.Flags().BoolP("quiet", "q", false,
		"Do not print per-module progress")

	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().String("metrics-file", "",
		"Write Prometheus metrics of the run to this file")
}

// targetFromFlags builds the scan target from the target flags.
func targetFromFlags(cmd *cobra.Command, cfg *config.Config) (model.Target, error) {
	t := model.Target{Depth: cfg.Depth, Limit: cfg.Limit}

	fields := []struct {
		flag string
		dst  *string
	}{
		{"username", &t.Username},
		{"email", &t.Email},
		{"phone", &t.Phone},
		{"domain", &t.Domain},
		{"ip", &t.IP},
		{"platform", &t.Platform},
	}
	for _, f := range fields {
		v, err := cmd.Flags().GetString(f.flag)
		if err != nil {
			return model.Target{}, err
		}
		*f.dst = strings.TrimSpace(v)
	}

	if cmd.Flags().Lookup("option") != nil {
		opts, err := cmd.Flags().GetStringToString("option")
		if err != nil {
			return model.Target{}, err
		}
		if len(opts) > 0 {
			t.Options = opts
		}
	}

	if t.IsEmpty() {
		return model.Target{}, errNoTarget
	}
	return t, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// runScanCmd executes the scan command.
func runScanCmd(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	target, err := targetFromFlags(cmd, a.cfg)
	if err != nil {
		return err
	}
	// Without --modules every applicable module runs; the flag's empty
	// default would select none.
	var names []string
	if cmd.Flags().Changed("modules") {
		if names, err = cmd.Flags().GetStringSlice("modules"); err != nil {
			return err
		}
	}
	for _, name := range names {
		if _, err := a.modules.Get(name); err != nil {
			return err
		}
	}
	quiet, err := cmd.Flags().GetBool("quiet")
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	return runScan(ctx, cmd, a, target, names, quiet)
}

// runScan runs one scan, then writes its report and metrics.
func runScan(ctx context.Context, cmd *cobra.Command, a *app, target model.Target, names []string, quiet bool) error {
	projectID, err := a.ensureProject(ctx)
	if err != nil {
		return err
	}

	observers := []engine.Observer{newHistoryObserver(ctx, a.store, a.logger)}
	stderr := cmd.ErrOrStderr()
	if !quiet {
		observers = append(observers, newConsoleObserver(stderr, a.cfg.Verbose))
	}
	var mo *metrics.Observer
	if a.cfg.MetricsFile != "" {
		mo = metrics.NewObserver()
		observers = append(observers, mo)
	}

	scheduler := a.schedulerFactory(observers...)()
	req := engine.Request{Target: target, Modules: names, ProjectID: projectID}
	if names == nil && len(scheduler.ApplicableModules(target)) == 0 {
		a.logger.Warn("no module applies to the target", "target", target.Describe())
	}

	if !quiet {
		fmt.Fprintf(stderr, "Scanning %s (project %s)...\n", target.Describe(), a.cfg.ProjectName)
	}
	started := time.Now()
	scan, ok := scheduler.StartScan(ctx, req)
	if !ok {
		return engine.ErrScanInProgress
	}
	<-scan.Done()
	elapsed := time.Since(started)

	results := scan.Results()
	if !quiet {
		printSummary(stderr, results, elapsed)
	}

	rep := &report.ScanReport{
		Project:   a.cfg.ProjectName,
		ScanID:    scan.ID,
		Target:    target,
		StartedAt: started,
		Elapsed:   elapsed,
		Results:   results,
	}
	if err := writeReport(cmd, a.cfg.ReportFile, reportFormat(a.cfg), func(w report.Writer) error {
		_, err := w.WriteScan(rep)
		return err
	}); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if mo != nil {
		if err := mo.WriteToTextfile(a.cfg.MetricsFile); err != nil {
			return err
		}
	}
	return ctx.Err()
}
