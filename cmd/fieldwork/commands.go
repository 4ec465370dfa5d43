package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	serveradapter "github.com/hylla/fieldwork/internal/adapters/server"
	servercommon "github.com/hylla/fieldwork/internal/adapters/server/common"
	"github.com/hylla/fieldwork/internal/adapters/export/xlsx"
	"github.com/hylla/fieldwork/internal/app"
	"github.com/hylla/fieldwork/internal/config"
	"github.com/hylla/fieldwork/internal/domain"
	"github.com/hylla/fieldwork/internal/tui"
)

// errLimitExceeded is returned by `limit check --strict` when the projection is over the ceiling.
var errLimitExceeded = errors.New("projected honor exceeds the monthly limit")

func newTUICommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive stage progress editor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd.Context(), opts)
		},
	}
}

// runTUI runs the progress editor until the user quits.
func runTUI(ctx context.Context, opts *rootOptions) error {
	return withRuntime(ctx, opts, "tui", func(_ context.Context, env *runtimeEnv) error {
		m := tui.NewModel(
			env.svc,
			tui.WithActor(env.actor),
			tui.WithCurrency(env.cfg.Honor.Currency),
		)
		env.logger.Info("starting tui program loop")
		if _, err := programFactory(m).Run(); err != nil {
			env.logger.Error("tui program terminated with error", "err", err)
			return fmt.Errorf("run tui program: %w", err)
		}
		return nil
	})
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	var (
		httpBind    string
		apiEndpoint string
		mcpEndpoint string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API, MCP tools, and metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd.Context(), opts, "serve", func(ctx context.Context, env *runtimeEnv) error {
				cfg := serveradapter.Config{
					HTTPBind:      firstNonEmpty(httpBind, env.cfg.Server.HTTPBind),
					APIEndpoint:   firstNonEmpty(apiEndpoint, env.cfg.Server.APIEndpoint),
					MCPEndpoint:   firstNonEmpty(mcpEndpoint, env.cfg.Server.MCPEndpoint),
					ServerName:    opts.appName,
					ServerVersion: version,
				}
				return serveCommandRunner(ctx, cfg, serveradapter.Dependencies{
					Service:  servercommon.NewAppServiceAdapter(env.svc, env.actor),
					Gatherer: env.registry,
					Ready:    env.store.Ping,
					Logger:   env.logger,
				})
			})
		},
	}
	cmd.Flags().StringVar(&httpBind, "http", "", "HTTP listen address (default from config)")
	cmd.Flags().StringVar(&apiEndpoint, "api-endpoint", "", "HTTP API base endpoint (default from config)")
	cmd.Flags().StringVar(&mcpEndpoint, "mcp-endpoint", "", "MCP streamable HTTP endpoint (default from config)")
	return cmd
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <activity-id>",
		Short: "Print an activity's derived status, progress, and warnings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), opts, "status", func(ctx context.Context, env *runtimeEnv) error {
				overview, err := env.svc.Overview(ctx, args[0])
				if err != nil {
					return err
				}
				w := opts.stdout
				_, _ = fmt.Fprintf(w, "activity: %s (%s)\n", overview.Activity.Name, overview.Activity.ID)
				_, _ = fmt.Fprintf(w, "status: %s\n", overview.Status.Label())
				for _, totals := range overview.Progress {
					pipeline, err := domain.PipelineForPhase(totals.Phase)
					if err != nil {
						continue
					}
					_, _ = fmt.Fprintf(w, "progress %s: %d/%d %s (%.1f%%)\n",
						totals.Phase, totals.Values[domain.StageCount-1], totals.Total, pipeline.Terminal(), totals.CompletionRatio()*100)
				}
				writeWarnings(w, overview.Warnings)
				return nil
			})
		},
	}
}

func newWarningsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "warnings <activity-id>",
		Short: "Print advisory warnings for an activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), opts, "warnings", func(ctx context.Context, env *runtimeEnv) error {
				warnings, err := env.svc.ActivityWarnings(ctx, args[0])
				if err != nil {
					return err
				}
				if len(warnings) == 0 {
					_, _ = fmt.Fprintln(opts.stdout, "no warnings")
					return nil
				}
				writeWarnings(opts.stdout, warnings)
				return nil
			})
		},
	}
}

// writeWarnings prints one line per warning.
func writeWarnings(w io.Writer, warnings []domain.Warning) {
	for _, warning := range warnings {
		_, _ = fmt.Fprintf(w, "warning %s %s: %s\n", warning.Kind, warning.Phase, warning.Message)
	}
}

func newStageCommand(opts *rootOptions) *cobra.Command {
	stage := &cobra.Command{
		Use:   "stage",
		Short: "Edit assignment stage counters",
	}
	stage.AddCommand(&cobra.Command{
		Use:   "set <activity-id> <assignment-id> <stage> <value>",
		Short: "Set how many units sit in one stage; units move only from the stage before it",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := domain.ParseStageValue(args[3])
			if err != nil {
				return fmt.Errorf("stage value %q: %w", args[3], err)
			}
			return withRuntime(cmd.Context(), opts, "stage set", func(ctx context.Context, env *runtimeEnv) error {
				assignment, err := env.svc.SetStageValue(ctx, app.SetStageValueInput{
					ActivityID:   args[0],
					AssignmentID: args[1],
					Stage:        domain.Stage(strings.TrimSpace(strings.ToLower(args[2]))),
					Value:        value,
				})
				if err != nil {
					return err
				}
				pipeline := assignment.Counters.Pipeline()
				parts := make([]string, 0, domain.StageCount)
				for i, s := range pipeline {
					parts = append(parts, fmt.Sprintf("%s=%d", s, assignment.Counters.Values[i]))
				}
				_, _ = fmt.Fprintf(opts.stdout, "%s (%s): %s\n", assignment.WorkerName, assignment.ID, strings.Join(parts, " "))
				return nil
			})
		},
	})
	return stage
}

func newHonorCommand(opts *rootOptions) *cobra.Command {
	var (
		units      int64
		price      int64
		activityID string
		taskType   string
	)
	honor := &cobra.Command{
		Use:   "honor",
		Short: "Honorarium calculations",
	}
	compute := &cobra.Command{
		Use:   "compute",
		Short: "Price a unit count directly or from an activity's task type setting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if activityID == "" {
				honor, err := domain.ComputeHonor(units, price)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(opts.stdout, "honor: %d\n", honor)
				return nil
			}
			return withRuntime(cmd.Context(), opts, "honor compute", func(ctx context.Context, env *runtimeEnv) error {
				t, err := domain.ParseTaskType(taskType)
				if err != nil {
					return err
				}
				activity, err := env.svc.GetActivity(ctx, activityID)
				if err != nil {
					return err
				}
				unitPrice := activity.UnitPrice(t)
				honor, err := domain.ComputeHonor(units, unitPrice)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(opts.stdout, "honor: %d (%d x %d %s)\n", honor, units, unitPrice, env.cfg.Honor.Currency)
				return nil
			})
		},
	}
	compute.Flags().Int64Var(&units, "units", 0, "unit count")
	compute.Flags().Int64Var(&price, "price", 0, "unit price when no activity is given")
	compute.Flags().StringVar(&activityID, "activity", "", "activity whose price list to use")
	compute.Flags().StringVar(&taskType, "task-type", "", "task type to price (listing, enumeration, processing)")
	honor.AddCommand(compute)
	return honor
}

func newLimitCommand(opts *rootOptions) *cobra.Command {
	limit := &cobra.Command{
		Use:   "limit",
		Short: "Read, change, or check the monthly honor ceiling",
	}

	limit.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the effective monthly honor ceiling",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd.Context(), opts, "limit get", func(ctx context.Context, env *runtimeEnv) error {
				value, err := env.svc.HonorLimit(ctx)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(opts.stdout, "limit: %d %s\n", value, env.cfg.Honor.Currency)
				return nil
			})
		},
	})

	var persistDefault bool
	set := &cobra.Command{
		Use:   "set <amount>",
		Short: "Store the monthly honor ceiling (requires an admin identity)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := domain.ParseStageValue(args[0])
			if err != nil {
				return fmt.Errorf("limit %q: %w", args[0], err)
			}
			return withRuntime(cmd.Context(), opts, "limit set", func(ctx context.Context, env *runtimeEnv) error {
				if err := env.svc.SetHonorLimit(ctx, amount); err != nil {
					return err
				}
				if persistDefault {
					if err := config.SetHonorDefaultLimit(env.configPath, amount); err != nil {
						return fmt.Errorf("persist honor default limit: %w", err)
					}
				}
				_, _ = fmt.Fprintf(opts.stdout, "limit: %d %s\n", amount, env.cfg.Honor.Currency)
				return nil
			})
		},
	}
	set.Flags().BoolVar(&persistDefault, "persist-default", false, "also write honor.default_limit to the config file")
	limit.AddCommand(set)

	var (
		period     string
		proposed   int64
		activityID string
		strict     bool
	)
	check := &cobra.Command{
		Use:   "check <worker-id>",
		Short: "Project a worker's monthly honor total against the ceiling",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if period == "" && activityID == "" {
				return errors.New("one of --period or --activity is required")
			}
			return withRuntime(cmd.Context(), opts, "limit check", func(ctx context.Context, env *runtimeEnv) error {
				var (
					result app.LimitResult
					err    error
				)
				if period == "" {
					result, err = env.svc.ValidateActivityHonorLimit(ctx, activityID, args[0])
				} else {
					p, parseErr := domain.ParsePeriod(period)
					if parseErr != nil {
						return parseErr
					}
					result, err = env.svc.ValidateHonorLimit(ctx, app.LimitCheck{
						WorkerID:          args[0],
						Period:            p,
						ProposedHonor:     proposed,
						ExcludeActivityID: activityID,
					})
				}
				if err != nil {
					return err
				}
				w := opts.stdout
				_, _ = fmt.Fprintf(w, "worker: %s\nperiod: %s\n", result.WorkerID, result.Period)
				_, _ = fmt.Fprintf(w, "existing: %d\nproposed: %d\nprojected: %d\nlimit: %d\n",
					result.ExistingTotal, result.ProposedHonor, result.ProjectedTotal, result.Limit)
				if result.IsOverLimit {
					_, _ = fmt.Fprintln(w, "over limit: yes")
					if strict {
						return errLimitExceeded
					}
					return nil
				}
				_, _ = fmt.Fprintf(w, "over limit: no\nheadroom: %d\n", result.Headroom())
				return nil
			})
		},
	}
	check.Flags().StringVar(&period, "period", "", "payment month as YYYY-MM")
	check.Flags().Int64Var(&proposed, "proposed", 0, "honor to add on top of existing payments")
	check.Flags().StringVar(&activityID, "activity", "", "activity being edited; excluded from the existing total")
	check.Flags().BoolVar(&strict, "strict", false, "exit with an error when the projection is over the limit")
	limit.AddCommand(check)
	return limit
}

func newRecapCommand(opts *rootOptions) *cobra.Command {
	var (
		period  string
		month   int
		year    int
		outPath string
		asXLSX  bool
	)
	cmd := &cobra.Command{
		Use:   "recap",
		Short: "Total every worker's honor for activities paid in one month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := recapPeriod(period, month, year)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), opts, "recap", func(ctx context.Context, env *runtimeEnv) error {
				recap, err := env.svc.MonthlyRecap(ctx, p)
				if err != nil {
					return err
				}
				if asXLSX && outPath == "" {
					if err := env.paths.EnsureDirs(); err != nil {
						return err
					}
					outPath = filepath.Join(env.paths.ExportDir, xlsx.FileName(recap))
				}
				if outPath != "" {
					if err := xlsx.SaveRecap(outPath, recap, env.cfg.Honor.Currency); err != nil {
						return err
					}
					env.logger.Info("recap workbook written", "path", outPath, "workers", len(recap.Rows))
					_, _ = fmt.Fprintf(opts.stdout, "wrote %s\n", outPath)
					return nil
				}
				writeRecap(opts.stdout, recap, env.cfg.Honor.Currency)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&period, "period", "", "payment month as YYYY-MM")
	cmd.Flags().IntVar(&month, "month", 0, "payment month (1-12), used with --year")
	cmd.Flags().IntVar(&year, "year", 0, "payment year, used with --month")
	cmd.Flags().StringVar(&outPath, "out", "", "write an .xlsx workbook to this path")
	cmd.Flags().BoolVar(&asXLSX, "xlsx", false, "write an .xlsx workbook to the export directory")
	return cmd
}

// recapPeriod resolves the recap month from either --period or --month/--year.
func recapPeriod(period string, month, year int) (domain.Period, error) {
	if strings.TrimSpace(period) != "" {
		return domain.ParsePeriod(period)
	}
	if month == 0 && year == 0 {
		return domain.Period{}, errors.New("--period or --month and --year are required")
	}
	return domain.NewPeriod(month, year)
}

// writeRecap prints the recap as aligned text.
func writeRecap(w io.Writer, recap app.Recap, currency string) {
	_, _ = fmt.Fprintf(w, "period: %s\nlimit: %d %s\n", recap.Period, recap.Limit, currency)
	for _, row := range recap.Rows {
		flag := ""
		if row.OverLimit {
			flag = "  OVER LIMIT"
		}
		_, _ = fmt.Fprintf(w, "%-12s %-24s %3d activities %12d%s\n", row.WorkerID, row.WorkerName, row.ActivityCount, row.Honor, flag)
	}
	_, _ = fmt.Fprintf(w, "total: %d %s\n", recap.Total(), currency)
	for _, id := range recap.Skipped {
		_, _ = fmt.Fprintf(w, "skipped %s: payment month unresolved\n", id)
	}
}

func newExportCommand(opts *rootOptions) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a JSON snapshot of activities, documents, and the stored limit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd.Context(), opts, "export", func(ctx context.Context, env *runtimeEnv) error {
				snap, err := env.svc.ExportSnapshot(ctx)
				if err != nil {
					return fmt.Errorf("export snapshot: %w", err)
				}
				encoded, err := json.MarshalIndent(snap, "", "  ")
				if err != nil {
					return fmt.Errorf("encode snapshot json: %w", err)
				}
				encoded = append(encoded, '\n')

				if outPath == "-" {
					if _, err := opts.stdout.Write(encoded); err != nil {
						return fmt.Errorf("write snapshot to stdout: %w", err)
					}
					return nil
				}
				if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
					return fmt.Errorf("create export output dir: %w", err)
				}
				if err := os.WriteFile(outPath, encoded, 0o644); err != nil {
					return fmt.Errorf("write export file: %w", err)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "-", "output file path ('-' for stdout)")
	return cmd
}

func newImportCommand(opts *rootOptions) *cobra.Command {
	var inPath string
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Upsert activities and documents from a JSON snapshot",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				inPath = args[0]
			}
			if inPath == "" {
				return errors.New("a snapshot file is required")
			}
			content, err := os.ReadFile(inPath)
			if err != nil {
				return fmt.Errorf("read import file: %w", err)
			}
			var snap app.Snapshot
			if err := json.Unmarshal(content, &snap); err != nil {
				return fmt.Errorf("decode snapshot json: %w", err)
			}
			return withRuntime(cmd.Context(), opts, "import", func(ctx context.Context, env *runtimeEnv) error {
				if err := env.svc.ImportSnapshot(ctx, snap); err != nil {
					return fmt.Errorf("import snapshot: %w", err)
				}
				_, _ = fmt.Fprintf(opts.stdout, "imported %d activities, %d documents\n", len(snap.Activities), len(snap.Documents))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "", "input snapshot JSON file")
	return cmd
}

func newPathsCommand(opts *rootOptions) *cobra.Command {
	var create bool
	cmd := &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config, data, and export locations",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			paths, err := opts.resolvePaths()
			if err != nil {
				return err
			}
			if create {
				if err := paths.EnsureDirs(); err != nil {
					return err
				}
			}
			w := opts.stdout
			_, _ = fmt.Fprintf(w, "app: %s\n", opts.appName)
			_, _ = fmt.Fprintf(w, "dev_mode: %t\n", opts.devMode)
			_, _ = fmt.Fprintf(w, "config: %s\n", paths.ConfigPath)
			_, _ = fmt.Fprintf(w, "env: %s\n", paths.EnvPath)
			_, _ = fmt.Fprintf(w, "data_dir: %s\n", paths.DataDir)
			_, _ = fmt.Fprintf(w, "db: %s\n", paths.DBPath)
			_, _ = fmt.Fprintf(w, "exports: %s\n", paths.ExportDir)
			return nil
		},
	}
	cmd.Flags().BoolVar(&create, "create", false, "create the config, data, and export directories")
	return cmd
}

func newVersionCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			_, _ = fmt.Fprintf(opts.stdout, "fieldwork %s\n", version)
			return nil
		},
	}
}

// firstNonEmpty returns the first value that is not blank.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
