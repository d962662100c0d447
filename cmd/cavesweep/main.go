// Command cavesweep runs CaveCalc parameter sweeps and compares the results
// with measured speleothem records.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/banshee-data/cavesweep/internal/batch"
	"github.com/banshee-data/cavesweep/internal/config"
	"github.com/banshee-data/cavesweep/internal/monitoring"
	"github.com/banshee-data/cavesweep/internal/settings"
	"github.com/banshee-data/cavesweep/internal/solver"
	"github.com/banshee-data/cavesweep/internal/version"
)

// errNoSolver is returned by run when neither a command nor an address is set.
var errNoSolver = errors.New("no solver configured: set solver.command or solver.address")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cavesweep",
		Short:         "Parameter sweeps for the CaveCalc speleothem model",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newExpandCmd(), newVersionCmd())
	return root
}

type runFlags struct {
	configPath string
	output     string
	measured   string
	solverCmd  string
	solverArgs []string
	solverAddr string
	reuse      bool
	metrics    string
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every configuration of a batch file through the solver",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f.configPath)
			if err != nil {
				return err
			}
			applyRunFlags(cmd, cfg, f)
			if err := cfg.Validate(); err != nil {
				return err
			}

			adapter, closeAdapter, err := newAdapter(cfg.Solver)
			if err != nil {
				return err
			}
			defer closeAdapter()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			engine := batch.NewEngine(adapter)
			sum, err := engine.Run(ctx, batch.Request{
				Spec:          cfg.Settings,
				OutputDir:     cfg.GetOutputDir(),
				MeasuredPath:  cfg.GetMeasuredData(),
				Tolerances:    cfg.Tolerances,
				ReusePrevious: cfg.GetReusePrevious(),
				MetricsFile:   cfg.GetMetricsFile(),
			})
			printSummary(cmd.OutOrStdout(), sum)
			if errors.Is(err, context.Canceled) {
				monitoring.Logf("[batch] Interrupted; completed runs were saved to %s", sum.OutputDir)
			}
			return err
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "batch file (.json, .yaml or .yml)")
	fl.StringVarP(&f.output, "output", "o", "", "output directory (default \""+config.DefaultOutputDir+"\")")
	fl.StringVar(&f.measured, "measured", "", "measured proxy record (.csv) to compare against")
	fl.StringVar(&f.solverCmd, "solver-cmd", "", "solver command run once per configuration")
	fl.StringSliceVar(&f.solverArgs, "solver-arg", nil, "argument passed to the solver command (repeatable)")
	fl.StringVar(&f.solverAddr, "solver-addr", "", "gRPC solver address host:port")
	fl.BoolVar(&f.reuse, "reuse", false, "skip configurations that completed in an earlier batch")
	fl.StringVar(&f.metrics, "metrics-file", "", "write Prometheus metrics to this file")
	return cmd
}

func loadConfig(path string) (*config.BatchConfig, error) {
	if path == "" {
		return &config.BatchConfig{}, nil
	}
	return config.LoadBatchConfig(path)
}

// applyRunFlags lets explicitly set flags override the batch file.
func applyRunFlags(cmd *cobra.Command, cfg *config.BatchConfig, f runFlags) {
	fl := cmd.Flags()
	if fl.Changed("output") {
		cfg.SetOutputDir(f.output)
	}
	if fl.Changed("measured") {
		cfg.SetMeasuredData(f.measured)
	}
	if fl.Changed("reuse") {
		cfg.SetReusePrevious(f.reuse)
	}
	if fl.Changed("metrics-file") {
		cfg.SetMetricsFile(f.metrics)
	}
	if fl.Changed("solver-cmd") {
		cfg.Solver.Command, cfg.Solver.Address = f.solverCmd, ""
	}
	if fl.Changed("solver-arg") {
		cfg.Solver.Args = f.solverArgs
	}
	if fl.Changed("solver-addr") {
		cfg.Solver.Address, cfg.Solver.Command = f.solverAddr, ""
	}
}

func newAdapter(sc config.SolverConfig) (solver.Adapter, func(), error) {
	catalog := solver.Catalog(sc.Databases)
	switch {
	case sc.Address != "":
		a, conn, err := solver.DialGRPC(sc.Address, catalog)
		if err != nil {
			return nil, nil, err
		}
		return a, func() { conn.Close() }, nil
	case sc.Command != "":
		a := solver.NewExecAdapter(sc.Command, sc.Args...)
		a.Catalog = catalog
		return a, func() {}, nil
	}
	return nil, nil, errNoSolver
}

func printSummary(w io.Writer, sum batch.Summary) {
	if sum.BatchID == "" {
		return
	}
	fmt.Fprintf(w, "batch %s: %d/%d succeeded, %d failed, %d skipped\n",
		sum.BatchID, sum.Succeeded, sum.Total, sum.Failed, sum.Skipped)
	for _, f := range sum.Failures {
		fmt.Fprintf(w, "  run %d: %s\n", f.Index, f.Err)
	}
	if sum.ResultsPath != "" {
		fmt.Fprintf(w, "results: %s\n", sum.ResultsPath)
	}
	if sum.Pairs > 0 {
		fmt.Fprintf(w, "matches: %d of %d pairs\n", sum.Matches, sum.Pairs)
	}
}

func newExpandCmd() *cobra.Command {
	var (
		configPath string
		ranges     bool
	)
	cmd := &cobra.Command{
		Use:   "expand",
		Short: "Print the configurations a batch file expands to",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			defaults := settings.CaveDefaults()
			out := cmd.OutOrStdout()
			if ranges {
				rs, err := settings.SweptRanges(cfg.Settings, defaults)
				if err != nil {
					return err
				}
				for _, r := range rs {
					fmt.Fprintf(out, "%s\t%s\n", r.Name, r.Describe())
				}
				return nil
			}

			configs, err := settings.Expand(cfg.Settings, defaults)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(out)
			for _, c := range configs {
				if err := enc.Encode(struct {
					Fingerprint string                 `json:"fingerprint"`
					Settings    map[string]interface{} `json:"settings"`
				}{c.Fingerprint(), c.Map()}); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "batch file (.json, .yaml or .yml)")
	cmd.Flags().BoolVar(&ranges, "ranges", false, "print only the swept parameters")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "cavesweep "+version.String())
		},
	}
}
