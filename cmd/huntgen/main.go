// Package main is the entry point for the huntgen binary.
// It generates synthetic hunting datasets from scenario files.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/polisai/huntgen/pkg/config"
	"github.com/polisai/huntgen/pkg/domain"
	"github.com/polisai/huntgen/pkg/engine"
	"github.com/polisai/huntgen/pkg/format"
	"github.com/polisai/huntgen/pkg/logging"
	"github.com/polisai/huntgen/pkg/runner"
	"github.com/polisai/huntgen/pkg/techniques"
	"github.com/polisai/huntgen/pkg/telemetry"
)

const shutdownTimeout = 5 * time.Second

// app carries state shared by the subcommands once flags are parsed.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *engine.Registry
	mode     format.Mode
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command for huntgen
func newRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "huntgen",
		Short: "Synthetic threat hunting telemetry generator",
		Long: `huntgen builds Defender XDR style datasets: a benign employee population
with a configurable attack chain woven into it, plus question/answer pairs.

Example:
  huntgen run configs/
  huntgen validate configs/phishing.yaml
  huntgen variants`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Path to application configuration file (YAML)")
	flags.StringP("output", "o", "", "Output directory (overrides config)")
	flags.StringP("log-level", "l", "", "Log level (debug, info, warn, error)")
	flags.Bool("pretty", false, "Human readable log output")
	flags.IntP("parallelism", "p", 0, "Scenarios to run concurrently")
	flags.String("format", "ascii", "Table format for command output (ascii, markdown)")

	rootCmd.AddCommand(newRunCmd(a), newValidateCmd(a), newVariantsCmd(a))
	return rootCmd
}

// setup loads the application config and applies flag overrides.
func (a *app) setup(cmd *cobra.Command) error {
	flags := cmd.Flags()
	path, err := flags.GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	if flags.Changed("output") {
		cfg.OutputDir, _ = flags.GetString("output")
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("pretty") {
		cfg.Logging.Pretty, _ = flags.GetBool("pretty")
	}
	if flags.Changed("parallelism") {
		cfg.Parallelism, _ = flags.GetInt("parallelism")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	name, err := flags.GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}
	if a.mode, err = format.ParseMode(name); err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logging.SetupLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: cfg.Logging.Pretty,
		Output: cmd.ErrOrStderr(),
	})
	a.registry = techniques.DefaultRegistry()
	return nil
}

// discover resolves CLI arguments into scenario files. With no arguments the
// configured directory is tried first, then the default search directories.
func (a *app) discover(args []string) ([]string, error) {
	if len(args) == 0 {
		dirs := append([]string{a.cfg.ConfigDir}, config.DefaultSearchDirs...)
		return config.AutoDiscover(dirs...)
	}
	var files []string
	for _, arg := range args {
		found, err := config.Discover(arg)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	return files, nil
}

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [paths...]",
		Short: "Generate datasets for scenario files or directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			watch, err := cmd.Flags().GetBool("watch")
			if err != nil {
				return fmt.Errorf("failed to get watch flag: %w", err)
			}
			if watch && len(args) > 1 {
				return errors.New("--watch takes at most one path")
			}
			return a.run(cmd, args, watch)
		},
	}
	cmd.Flags().BoolP("watch", "w", false, "Re-run scenarios when their files change")
	return cmd
}

func (a *app) run(cmd *cobra.Command, args []string, watch bool) error {
	files, err := a.discover(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName: "huntgen",
		Endpoint:    a.cfg.Telemetry.OTLPEndpoint,
		Insecure:    a.cfg.Telemetry.Insecure,
	})
	if err != nil {
		a.logger.Warn("telemetry disabled", "error", err)
	} else {
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				a.logger.Warn("telemetry shutdown failed", "error", err)
			}
		}()
	}

	r := runner.New(runner.Config{
		OutputDir:   a.cfg.OutputDir,
		Parallelism: a.cfg.Parallelism,
		Registry:    a.registry,
		Logger:      a.logger,
	})

	a.logger.Info("Starting huntgen", "scenarios", len(files), "output_dir", a.cfg.OutputDir, "parallelism", a.cfg.Parallelism)
	reports := r.RunAll(ctx, files)
	printSummary(cmd.OutOrStdout(), a.mode, reports)

	if !watch {
		return nil
	}
	root := a.cfg.ConfigDir
	if len(args) == 1 {
		root = args[0]
	}
	return a.watch(ctx, r, root)
}

// watch re-runs each changed scenario file until ctx is canceled.
func (a *app) watch(ctx context.Context, r *runner.Runner, root string) error {
	var mu sync.Mutex
	w, err := config.NewWatcher(config.WatcherConfig{
		Root:   root,
		Logger: a.logger,
		OnChange: func(path string) {
			mu.Lock()
			defer mu.Unlock()
			if ctx.Err() != nil {
				return
			}
			report := r.RunFile(ctx, path)
			if report.Err == nil {
				a.logger.Info("scenario re-run", "scenario", report.Scenario, "duration_ms", report.Duration.Milliseconds())
			}
		},
	})
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	a.logger.Info("Watching for scenario changes", "root", root)
	<-ctx.Done()
	return w.Stop()
}

func printSummary(out io.Writer, mode format.Mode, reports []runner.Report) {
	tb := format.NewTable(mode)
	tb.Header("Scenario", "Status", "Stages", "QA", "Dir")
	for _, rep := range reports {
		name := rep.Scenario
		if name == "" {
			name = rep.Path
		}
		status := "ok"
		if rep.Failed() {
			status = "error: " + rep.Err.Error()
		}
		tb.Row(name, status, stageCounts(rep), rep.QA, rep.Dir)
	}
	tb.Columns(format.ColumnConfig{Number: 2, MaxWidth: 60}, format.ColumnConfig{Number: 4, Align: format.AlignRight})
	fmt.Fprintln(out, tb.String())

	s := runner.Summarize(reports)
	fmt.Fprintf(out, "\n%d scenario(s): %d succeeded, %d failed, %d failed stage(s)\n",
		s.Total, s.Succeeded, s.Failed, s.StageFailures)
}

func stageCounts(rep runner.Report) string {
	counts := map[string]int{}
	for _, res := range rep.Results {
		counts[string(res.Outcome)]++
	}
	if len(counts) == 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%d/%d", counts["completed"], counts["skipped"], counts["failed"])
}

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [paths...]",
		Short: "Check scenario files and print the resolved attack chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := a.discover(args)
			if err != nil {
				return err
			}
			invalid := 0
			for _, path := range files {
				if !a.validate(cmd.OutOrStdout(), path) {
					invalid++
				}
			}
			if invalid > 0 {
				return fmt.Errorf("%d of %d scenario(s) invalid: %w", invalid, len(files), domain.ErrConfigInvalid)
			}
			return nil
		},
	}
}

func (a *app) validate(out io.Writer, path string) bool {
	sc, err := config.LoadScenario(path, a.logger)
	if err != nil {
		fmt.Fprintf(out, "%s: %v\n\n", path, err)
		return false
	}
	steps, err := engine.Plan(a.registry, sc.StageConfigs())

	fmt.Fprintf(out, "%s (%s, seed %d)\n", sc.Name, path, sc.Seed)
	tb := format.NewTable(a.mode)
	tb.Header("Stage", "Variant", "Status")
	for _, step := range steps {
		variant, note := "-", "not configured"
		if step.Configured {
			variant = string(step.Variant)
			note = "ok"
			if step.Defaulted {
				note = "default"
			}
			if step.Err != nil {
				note = step.Err.Error()
			}
		}
		tb.Row(step.Stage, variant, note)
	}
	fmt.Fprintln(out, tb.String())
	if len(sc.Ignored) > 0 {
		fmt.Fprintf(out, "  ignored: %s\n", strings.Join(sc.Ignored, ", "))
	}
	fmt.Fprintln(out)
	return err == nil
}

func newVariantsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "variants",
		Short: "List the attack variants available for each stage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			printVariants(cmd.OutOrStdout(), a.mode, a.registry)
			return nil
		},
	}
}

func printVariants(out io.Writer, mode format.Mode, registry *engine.Registry) {
	tb := format.NewTable(mode)
	tb.Header("Stage", "Variant", "Aliases", "Description")
	for _, desc := range registry.Stages() {
		if desc == nil {
			continue
		}
		for _, variant := range registry.Variants(desc.Name) {
			name := string(variant)
			if variant == desc.Default {
				name += " (default)"
			}
			about := ""
			if t, ok := techniques.Lookup(desc.Name, variant); ok {
				about = t.Description
			}
			tb.Row(desc.Name, name, strings.Join(registry.Aliases(desc.Name, variant), ","), about)
		}
	}
	tb.Columns(format.ColumnConfig{Number: 4, MaxWidth: 70})
	fmt.Fprintln(out, tb.String())
}
