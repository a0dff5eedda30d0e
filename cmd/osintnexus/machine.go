package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/osintnexus/internal/engine"
	"github.com/nao1215/osintnexus/internal/machine"
	"github.com/nao1215/osintnexus/internal/metrics"
	"github.com/nao1215/osintnexus/internal/model"
	"github.com/nao1215/osintnexus/internal/report"
)

// NewMachineCmd creates the machine command group.
func NewMachineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "machine",
		Short: "List and run multi-step workflows",
		Long: `Machines chain modules into ordered steps. Each step runs its modules
against the entities discovered by the previous step whose type passes the
step's filter; the first step starts from the target.

Built-in machines can be replaced and new ones added in the configuration
file (see 'osintnexus init').`,
	}

	cmd.AddCommand(newMachineListCmd())
	cmd.AddCommand(newMachineRunCmd())
	return cmd
}

func newMachineListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available machines",
		Long: `List shows every machine with its steps.

Examples:
  # All machines
  osintnexus machine list

  # Machines that can start from a domain
  osintnexus machine list --type domain`,
		Args: cobra.NoArgs,
		RunE: runMachineListCmd,
	}
	cmd.Flags().String("type", "", "Only machines whose first step accepts this entity type")
	return cmd
}

func runMachineListCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	modules, err := newModuleRegistry(cfg, newLogger(cfg))
	if err != nil {
		return err
	}
	registry, err := newMachineRegistry(cfg.File, modules)
	if err != nil {
		return err
	}

	entityType, err := cmd.Flags().GetString("type")
	if err != nil {
		return err
	}
	machines := registry.All()
	if entityType != "" {
		machines = registry.ForEntityType(entityType)
	}

	out := cmd.OutOrStdout()
	if len(machines) == 0 {
		fmt.Fprintln(out, "No machines found")
		return nil
	}
	for _, m := range machines {
		fmt.Fprintf(out, "%s\n", m.Name())
		if m.Description() != "" {
			fmt.Fprintf(out, "  %s\n", m.Description())
		}
		for i, s := range m.Steps() {
			accepts := "any"
			if len(s.EntityTypes) > 0 {
				accepts = strings.Join(s.EntityTypes, ", ")
			}
			fmt.Fprintf(out, "  %d. %s [%s] on %s\n", i+1, s.Description, strings.Join(s.Modules, ", "), accepts)
		}
		fmt.Fprintln(out)
	}
	return nil
}

func newMachineRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <machine>",
		Short: "Run a machine starting from a target",
		Long: `Run executes a machine. The target flags become the entities of the
first step; every later step works on what the step before it found.

Examples:
  osintnexus machine run "Footprint Domain L1" --domain example.com
  osintnexus machine run "Email Pivot" --email alice@example.com --json
  osintnexus machine run "Investigate Persona" --username alice --all`,
		Args: cobra.ExactArgs(1),
		RunE: runMachineRunCmd,
	}

	addTargetFlags(cmd)
	cmd.Flags().Bool("all", false,
		"Report the entities of every step instead of the last step only")
	addRunFlags(cmd)

	return cmd
}

// initialEntities turns the identity fields of t into workflow input.
func initialEntities(t model.Target) []model.Entity {
	var out []model.Entity
	for _, f := range []struct{ entityType, value string }{
		{model.EntityUsername, t.Username},
		{model.EntityEmail, t.Email},
		{model.EntityPhone, t.Phone},
		{model.EntityDomain, t.Domain},
		{model.EntityIP, t.IP},
	} {
		if f.value != "" {
			out = append(out, model.NewEntity(f.entityType, f.value))
		}
	}
	return out
}

func runMachineRunCmd(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	m, err := a.machines.Get(args[0])
	if err != nil {
		return err
	}
	target, err := targetFromFlags(cmd, a.cfg)
	if err != nil {
		return err
	}
	all, err := cmd.Flags().GetBool("all")
	if err != nil {
		return err
	}
	quiet, err := cmd.Flags().GetBool("quiet")
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	return runMachine(ctx, cmd, a, m, target, all, quiet)
}

// runMachine runs m and writes its report and metrics.
func runMachine(ctx context.Context, cmd *cobra.Command, a *app, m *machine.Machine, target model.Target, all, quiet bool) error {
	projectID, err := a.ensureProject(ctx)
	if err != nil {
		return err
	}

	recorder := engine.NewRecorder()
	observers := []engine.Observer{recorder, newHistoryObserver(ctx, a.store, a.logger)}
	stderr := cmd.ErrOrStderr()
	if !quiet {
		observers = append(observers, newConsoleObserver(stderr, a.cfg.Verbose))
	}
	var mo *metrics.Observer
	if a.cfg.MetricsFile != "" {
		mo = metrics.NewObserver()
		observers = append(observers, mo)
	}

	runner := machine.NewRunner(a.schedulerFactory(observers...),
		machine.WithLogger(a.logger),
		machine.WithObservers(observers...),
	)

	if !quiet {
		fmt.Fprintf(stderr, "Running %s on %s (project %s)...\n", m.Name(), target.Describe(), a.cfg.ProjectName)
	}
	started := time.Now()
	outcome, err := runner.Run(ctx, m, initialEntities(target), projectID)
	if err != nil {
		return err
	}
	elapsed := time.Since(started)

	results := completedResults(recorder)
	if !quiet {
		printSummary(stderr, results, elapsed)
	}

	entities := outcome.Final
	if all {
		entities = outcome.Collected
	}
	if entities == nil {
		entities = []model.Entity{}
	}

	rep := &report.ScanReport{
		Project:   a.cfg.ProjectName,
		Target:    target,
		StartedAt: started,
		Elapsed:   elapsed,
		Results:   results,
		Machine:   outcome.Machine,
		Cancelled: !outcome.Success,
		Steps:     outcome.Steps,
		Entities:  entities,
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
