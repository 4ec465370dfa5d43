package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	serveradapter "github.com/hylla/fieldwork/internal/adapters/server"
	"github.com/hylla/fieldwork/internal/adapters/storage/postgres"
	"github.com/hylla/fieldwork/internal/adapters/storage/sqlite"
	"github.com/hylla/fieldwork/internal/app"
	"github.com/hylla/fieldwork/internal/config"
	"github.com/hylla/fieldwork/internal/observability"
	"github.com/hylla/fieldwork/internal/platform"
)

// version stores a package-level helper value.
var version = "dev"

// program represents program data used by this package.
type program interface {
	Run() (tea.Model, error)
}

// programFactory stores a package-level helper value.
var programFactory = func(m tea.Model) program {
	return tea.NewProgram(m)
}

// serveCommandRunner starts the HTTP+MCP serve flow.
var serveCommandRunner = func(ctx context.Context, cfg serveradapter.Config, deps serveradapter.Dependencies) error {
	return serveradapter.Run(ctx, cfg, deps)
}

// main handles main.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// run runs the requested command flow.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return fang.Execute(ctx, root, fang.WithVersion(version), fang.WithoutManpage())
}

// rootOptions holds the global flags shared by every subcommand.
type rootOptions struct {
	configPath string
	dbPath     string
	appName    string
	devMode    bool
	stdout     io.Writer
	stderr     io.Writer
}

// store is the persistence surface every driver provides.
type store interface {
	app.Repository
	Ping(context.Context) error
	Close() error
}

// runtimeEnv bundles everything one command needs after configuration is resolved.
type runtimeEnv struct {
	cfg        config.Config
	configPath string
	paths      platform.Paths
	logger     *runtimeLogger
	store      store
	svc        *app.Service
	registry   *prometheus.Registry
	actor      app.Actor
}

// newRootCommand builds the command tree.
func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{stdout: stdout, stderr: stderr}

	defaultDevMode := version == "dev"
	if envDev, ok := parseBoolEnv("FIELDWORK_DEV_MODE"); ok {
		defaultDevMode = envDev
	}
	defaultApp := platform.DefaultAppName
	if envApp := strings.TrimSpace(os.Getenv("FIELDWORK_APP_NAME")); envApp != "" {
		defaultApp = envApp
	}

	root := &cobra.Command{
		Use:   "fieldwork",
		Short: "Track field-work stage progress and worker honoraria",
		Long: "fieldwork keeps per-worker stage counters for survey activities, derives each\n" +
			"activity's status and warnings, and checks monthly honorarium ceilings.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd.Context(), opts)
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config TOML")
	flags.StringVar(&opts.dbPath, "db", "", "path to sqlite database")
	flags.StringVar(&opts.appName, "app", defaultApp, "application name for config/data path resolution")
	flags.BoolVar(&opts.devMode, "dev", defaultDevMode, "use dev mode paths (<app>-dev)")

	root.AddCommand(
		newTUICommand(opts),
		newServeCommand(opts),
		newStatusCommand(opts),
		newWarningsCommand(opts),
		newStageCommand(opts),
		newHonorCommand(opts),
		newLimitCommand(opts),
		newRecapCommand(opts),
		newImportCommand(opts),
		newExportCommand(opts),
		newPathsCommand(opts),
		newVersionCommand(opts),
	)
	return root
}

// resolvePaths returns the per-OS paths for the configured app name.
func (o *rootOptions) resolvePaths() (platform.Paths, error) {
	return platform.DefaultPathsWithOptions(platform.Options{
		AppName: o.appName,
		DevMode: o.devMode,
	})
}

// openRuntime loads env files and config, configures logging, and opens the store.
func openRuntime(ctx context.Context, opts *rootOptions, command string) (*runtimeEnv, error) {
	paths, err := opts.resolvePaths()
	if err != nil {
		return nil, err
	}
	if err := loadEnvFiles(paths.EnvPath, ".env"); err != nil {
		return nil, err
	}

	configPath := opts.configPath
	if configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv("FIELDWORK_CONFIG")); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}
	dbPath := opts.dbPath
	dbOverridden := strings.TrimSpace(dbPath) != ""
	if !dbOverridden {
		if envPath := strings.TrimSpace(os.Getenv("FIELDWORK_DB_PATH")); envPath != "" {
			dbPath = envPath
			dbOverridden = true
		} else {
			dbPath = paths.DBPath
		}
	}

	cfg, err := config.Load(configPath, config.Default(dbPath))
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbOverridden {
		cfg.Database.Path = dbPath
	}
	if url := strings.TrimSpace(os.Getenv("FIELDWORK_DATABASE_URL")); url != "" {
		cfg.Database.Driver = config.DriverPostgres
		cfg.Database.URL = url
	}
	staleAfter, err := cfg.StaleAfter()
	if err != nil {
		return nil, err
	}

	logger, err := newRuntimeLogger(opts.stderr, opts.appName, opts.devMode, cfg.Logging, time.Now)
	if err != nil {
		return nil, fmt.Errorf("configure runtime logger: %w", err)
	}
	if command == "tui" {
		// Keep TUI rendering clean: runtime logs stay in the dev-file sink while the editor is active.
		logger.SetConsoleEnabled(false)
	}
	logger.Info("startup configuration resolved", "app", opts.appName, "dev_mode", opts.devMode, "command", command)
	logger.Debug("runtime paths resolved", "config_path", configPath, "data_dir", paths.DataDir, "db_path", dbPath)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Info("dev file logging enabled", "path", devPath)
	}

	repo, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	svc := app.NewService(repo, uuid.NewString, nil, app.ServiceConfig{
		DefaultHonorLimit: cfg.Honor.DefaultLimit,
		StaleAfter:        staleAfter,
		Observer:          observability.NewMetrics(registry),
	})
	logger.Debug("application service initialized", "default_honor_limit", cfg.Honor.DefaultLimit, "stale_after", staleAfter)

	return &runtimeEnv{
		cfg:        cfg,
		configPath: configPath,
		paths:      paths,
		logger:     logger,
		store:      repo,
		svc:        svc,
		registry:   registry,
		actor: app.Actor{
			ID:   cfg.Identity.ActorID,
			Role: app.ParseActorRole(cfg.Identity.Role),
		},
	}, nil
}

// openStore opens the configured persistence driver.
func openStore(ctx context.Context, db config.DatabaseConfig, logger *runtimeLogger) (store, error) {
	switch db.Driver {
	case config.DriverPostgres:
		logger.Info("opening postgres repository")
		repo, err := postgres.Open(ctx, db.URL)
		if err != nil {
			logger.Error("postgres open failed", "err", err)
			return nil, fmt.Errorf("open postgres repository: %w", err)
		}
		logger.Info("postgres repository ready", "migrations", "ensured")
		return repo, nil
	default:
		logger.Info("opening sqlite repository", "db_path", db.Path)
		repo, err := sqlite.Open(db.Path)
		if err != nil {
			logger.Error("sqlite open failed", "db_path", db.Path, "err", err)
			return nil, fmt.Errorf("open sqlite repository: %w", err)
		}
		logger.Info("sqlite repository ready", "db_path", db.Path, "migrations", "ensured")
		return repo, nil
	}
}

// context attaches the configured identity to ctx.
func (e *runtimeEnv) context(ctx context.Context) context.Context {
	return app.WithActor(ctx, e.actor)
}

// Close releases the store and the dev log file.
func (e *runtimeEnv) Close(stderr io.Writer) {
	if e == nil {
		return
	}
	if err := e.store.Close(); err != nil {
		e.logger.Warn("store close failed", "err", err)
	}
	if err := e.logger.Close(); err != nil && e.logger.shouldLogToSink(e.logger.consoleSink) {
		_, _ = fmt.Fprintf(stderr, "warning: close runtime log sink: %v\n", err)
	}
}

// withRuntime opens the runtime for one command flow and logs its start and end.
func withRuntime(ctx context.Context, opts *rootOptions, command string, fn func(context.Context, *runtimeEnv) error) error {
	env, err := openRuntime(ctx, opts, command)
	if err != nil {
		return err
	}
	defer env.Close(opts.stderr)

	env.logger.Info("command flow start", "command", command)
	if err := fn(env.context(ctx), env); err != nil {
		env.logger.Error("command flow failed", "command", command, "err", err)
		return fmt.Errorf("run %s command: %w", command, err)
	}
	env.logger.Info("command flow complete", "command", command)
	return nil
}

// loadEnvFiles loads KEY=value files in order, skipping missing ones. Existing
// environment variables always win.
func loadEnvFiles(paths ...string) error {
	for _, path := range paths {
		if strings.TrimSpace(path) == "" {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load env file %q: %w", path, err)
		}
	}
	return nil
}

// parseBoolEnv parses input into a normalized form.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
