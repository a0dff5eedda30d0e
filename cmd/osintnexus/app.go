package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/semaphore"

	"github.com/nao1215/osintnexus/internal/config"
	"github.com/nao1215/osintnexus/internal/database"
	"github.com/nao1215/osintnexus/internal/engine"
	"github.com/nao1215/osintnexus/internal/log"
	"github.com/nao1215/osintnexus/internal/machine"
	"github.com/nao1215/osintnexus/internal/module"
	"github.com/nao1215/osintnexus/internal/probe"
	"github.com/nao1215/osintnexus/internal/report"
)

// app bundles the collaborators a command needs.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *database.Store
	modules  *module.Registry
	machines *machine.Registry

	// sem bounds module runs across every scheduler the app creates.
	sem        *semaphore.Weighted
	aggregator *engine.Aggregator
}

// loadConfig builds the configuration from the config file, the
// environment and the flags of cmd, in increasing precedence.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.ConfigFilePath, err = persistentString(cmd, "config"); err != nil {
		return nil, err
	}
	file, path, err := config.Load(cfg.ConfigFilePath)
	if err != nil {
		return nil, err
	}
	cfg.ConfigFilePath = path
	cfg.ApplyFile(file)
	cfg.ApplyEnv()

	if cfg.DBDir, err = persistentString(cmd, "db-dir"); err != nil {
		return nil, err
	}
	cfg.Verbose = persistentBool(cmd, "verbose")
	cfg.LogJSON = persistentBool(cmd, "log-json")

	// Scan flags exist on scan and machine run only. A flag overrides the
	// file when it was set explicitly.
	if flags.Changed("concurrency") {
		if cfg.MaxConcurrency, err = flags.GetInt("concurrency"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("timeout") {
		if cfg.ModuleTimeout, err = flags.GetDuration("timeout"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("depth") {
		if cfg.Depth, err = flags.GetInt("depth"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("limit") {
		if cfg.Limit, err = flags.GetInt("limit"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("proxy") {
		if cfg.Proxy, err = flags.GetString("proxy"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("project") {
		if cfg.ProjectName, err = flags.GetString("project"); err != nil {
			return nil, err
		}
	}
	if flags.Lookup("json") != nil {
		if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
			return nil, err
		}
		if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
			return nil, err
		}
	}
	if flags.Lookup("output") != nil {
		if cfg.ReportFile, err = flags.GetString("output"); err != nil {
			return nil, err
		}
	}
	if flags.Lookup("metrics-file") != nil {
		if cfg.MetricsFile, err = flags.GetString("metrics-file"); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

// persistentString retrieves a root flag from the command or its root.
func persistentString(cmd *cobra.Command, name string) (string, error) {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		return cmd.Root().PersistentFlags().GetString(name)
	}
	return v, nil
}

// persistentBool retrieves a root bool flag, false when it is missing.
func persistentBool(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}

// newLogger creates the secret-redacting logger selected by cfg.
func newLogger(cfg *config.Config) *slog.Logger {
	if cfg.LogJSON {
		return log.NewSecureJSONLogger(os.Stderr, cfg.Verbose)
	}
	return log.NewSecureLogger(os.Stderr, cfg.Verbose)
}

// newApp loads the configuration, opens the store and builds the module
// and machine registries. Callers must call close.
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	modules, err := newModuleRegistry(cfg, logger)
	if err != nil {
		return nil, err
	}
	machines, err := newMachineRegistry(cfg.File, modules)
	if err != nil {
		return nil, err
	}

	store, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	logger.Debug("database opened", "dir", cfg.DBDir)

	return &app{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		modules:    modules,
		machines:   machines,
		sem:        semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		aggregator: engine.NewAggregator(store, engine.WithAggregatorLogger(logger)),
	}, nil
}

// close releases the store.
func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close database", "error", err)
	}
}

// newModuleRegistry registers the built-in probes configured from cfg.
func newModuleRegistry(cfg *config.Config, logger *slog.Logger) (*module.Registry, error) {
	client, err := probe.NewHTTPClient(probe.TransportConfig{
		Proxy:     cfg.Proxy,
		Timeout:   cfg.ModuleTimeout,
		UserAgent: cfg.UserAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	return module.NewRegistry(probe.Builtins(probe.Options{
		HTTPClient:   client,
		Logger:       logger,
		UserAgent:    cfg.UserAgent,
		Timeout:      cfg.ModuleTimeout,
		MaxBodySize:  cfg.MaxBodySize,
		MaxImages:    cfg.MaxImages,
		ShodanAPIKey: cfg.ShodanAPIKey,
	})...)
}

// newMachineRegistry returns the default machines plus those declared in
// file. A declared machine replaces a default one of the same name. Every
// module a machine names must be registered in modules.
func newMachineRegistry(file *config.File, modules *module.Registry) (*machine.Registry, error) {
	registry := machine.DefaultRegistry()
	if file == nil {
		return registry, nil
	}

	for _, mc := range file.Machines {
		steps := make([]machine.Step, len(mc.Steps))
		for i, sc := range mc.Steps {
			steps[i] = machine.Step{
				Description: sc.Description,
				Modules:     sc.Modules,
				EntityTypes: sc.EntityTypes,
			}
		}
		m, err := machine.New(mc.Name, mc.Description, steps...)
		if err != nil {
			return nil, fmt.Errorf("invalid machine in config file: %w", err)
		}
		registry.Put(m)
	}

	known := func(name string) bool {
		_, err := modules.Get(name)
		return err == nil
	}
	for _, m := range registry.All() {
		if missing := m.UnknownModules(known); len(missing) > 0 {
			return nil, fmt.Errorf("%w: machine %q uses unknown modules %v",
				machine.ErrInvalidMachine, m.Name(), missing)
		}
	}
	return registry, nil
}

// schedulerFactory returns a factory of schedulers that share the app's
// concurrency bound, persist through the app's aggregator and notify
// observers.
func (a *app) schedulerFactory(observers ...engine.Observer) machine.SchedulerFactory {
	return func() *engine.Scheduler {
		return engine.New(a.modules,
			engine.WithLogger(a.logger),
			engine.WithSemaphore(a.sem),
			engine.WithAggregator(a.aggregator),
			engine.WithObservers(observers...),
		)
	}
}

// reportFormat returns the report format selected by cfg.
func reportFormat(cfg *config.Config) report.Format {
	switch {
	case cfg.JSONReport:
		return report.FormatJSON
	case cfg.MarkdownReport:
		return report.FormatMarkdown
	default:
		return report.FormatSimple
	}
}

// writeReport renders with a writer of format to path, or to stdout when
// path is empty.
func writeReport(cmd *cobra.Command, path string, format report.Format, render func(report.Writer) error) error {
	return writeOutput(cmd, path, func(w io.Writer) error {
		return render(report.New(format, w))
	})
}

// writeOutput calls write with path opened for writing, or with stdout
// when path is empty.
func writeOutput(cmd *cobra.Command, path string, write func(io.Writer) error) error {
	if path == "" {
		return write(cmd.OutOrStdout())
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Reports may contain sensitive information that should only be
	// readable by the owner.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := write(f); err != nil {
		_ = f.Close() //nolint:errcheck // the write error wins
		return err
	}
	return f.Close()
}

// ensureProject returns the project named by cfg, creating it on first use.
func (a *app) ensureProject(ctx context.Context) (int64, error) {
	p, err := a.store.EnsureProject(ctx, a.cfg.ProjectName)
	if err != nil {
		return 0, fmt.Errorf("failed to open project %q: %w", a.cfg.ProjectName, err)
	}
	return p.ID, nil
}

// errNoTarget is returned when a scan has no identity field to work on.
var errNoTarget = errors.New("no target given (use --username, --email, --phone, --domain or --ip)")
