package main

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/linkage/internal/config"
	"github.com/san-kum/linkage/internal/logging"
	"github.com/san-kum/linkage/internal/storage"
	"github.com/san-kum/linkage/internal/viz"
)

var (
	dataDir       string
	verbose       bool
	configFile    string
	mechanismFile string
	preset        string

	dt         float64
	duration   float64
	seed       int64
	integrator string
	controller string
	drive      string
	rate       float64
	kp         float64
	ki         float64
	kd         float64
	project    bool
	adaptive   bool
	tolerance  float64

	coordName string
	pointName string
	outPath   string
	format    string
	theme     string
	runID     string
	tuneSpecs []string
	metric    string
	perturb   float64

	logger *zap.SugaredLogger
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "linkage",
		Short:         "planar mechanism kinematics and dynamics lab",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logger = logging.NewDebugLogger("linkage")
			} else {
				logger = logging.NewLogger("linkage")
			}
			logging.ReplaceGlobal(logger)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return viz.RunInteractive(logger)
		},
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".linkage", "data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	runCmd := &cobra.Command{
		Use:   "run [mechanism]",
		Short: "integrate the dynamics and store the run",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulation,
	}
	addRunFlags(runCmd)

	sweepCmd := &cobra.Command{
		Use:   "sweep [mechanism]",
		Short: "kinematic sweep driving the independent coordinates at constant rate",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSweep,
	}
	addRunFlags(sweepCmd)

	solveCmd := &cobra.Command{
		Use:   "solve [mechanism]",
		Short: "solve accelerations, multipliers and reactions at the initial state",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSolve,
	}
	addRunFlags(solveCmd)

	estimateCmd := &cobra.Command{
		Use:   "estimate [mechanism]",
		Short: "smooth a trajectory with the factor graph estimator",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runEstimate,
	}
	addRunFlags(estimateCmd)

	checkCmd := &cobra.Command{
		Use:   "check [mechanism]",
		Short: "compare analytic jacobians with finite differences",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runCheck,
	}
	addRunFlags(checkCmd)

	tuneCmd := &cobra.Command{
		Use:   "tune [mechanism]",
		Short: "grid search run settings against a metric",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runTune,
	}
	addRunFlags(tuneCmd)
	tuneCmd.Flags().StringArrayVar(&tuneSpecs, "param", nil, "name=v1,v2,... (repeatable)")
	tuneCmd.Flags().StringVar(&metric, "metric", "constraint_violation", "metric to minimise")

	lyapunovCmd := &cobra.Command{
		Use:   "lyapunov [mechanism]",
		Short: "estimate the largest Lyapunov exponent",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLyapunov,
	}
	addRunFlags(lyapunovCmd)
	lyapunovCmd.Flags().StringVar(&coordName, "coord", "", "perturbed coordinate (default: first independent)")
	lyapunovCmd.Flags().Float64Var(&perturb, "perturb", 1e-8, "initial separation")

	liveCmd := &cobra.Command{
		Use:   "live [mechanism]",
		Short: "watch a simulation, or replay a stored run with --run",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	addRunFlags(liveCmd)
	liveCmd.Flags().StringVar(&runID, "run", "", "replay a stored run (or \"latest\")")
	liveCmd.Flags().StringVar(&pointName, "trace", "", "point whose path is drawn")
	liveCmd.Flags().StringVar(&theme, "theme", "", "color theme")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot coordinates of a run, or a point path with --point",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&coordName, "coord", "", "plot only this coordinate")
	plotCmd.Flags().StringVar(&pointName, "point", "", "draw the path of this point")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "period, swing, closure and phase portrait of a coordinate",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}
	analyzeCmd.Flags().StringVar(&coordName, "coord", "", "coordinate name (default: last)")
	analyzeCmd.Flags().StringVar(&outPath, "svg", "", "also write the phase portrait as svg")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run the steps of a yaml scenario",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a run as json, text matrices or an svg drawing",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVar(&format, "format", "json", "json, txt or svg")
	exportCmd.Flags().StringVar(&pointName, "point", "", "traced point for svg (default: last moving point)")
	exportCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (json) or directory (txt); stdout when empty")

	presetsCmd := &cobra.Command{
		Use:   "presets [mechanism]",
		Short: "list presets of a mechanism",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := config.ListPresets(args[0])
			if len(presets) == 0 {
				fmt.Printf("no presets for mechanism: %s\n", args[0])
				return nil
			}
			fmt.Printf("presets for %s:\n", args[0])
			for _, p := range presets {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	mechanismsCmd := &cobra.Command{
		Use:   "mechanisms",
		Short: "list built-in mechanisms, integrators and controllers",
		RunE:  listMechanisms,
	}

	rootCmd.AddCommand(runCmd, sweepCmd, solveCmd, estimateCmd, checkCmd, tuneCmd, lyapunovCmd,
		liveCmd, listCmd, plotCmd, analyzeCmd, exportCmd, scenarioCmd, presetsCmd, mechanismsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&configFile, "config", "", "config file path (yaml)")
	f.StringVar(&mechanismFile, "mechanism-file", "", "mechanism description (yaml)")
	f.StringVar(&preset, "preset", "", "use preset configuration")
	f.Float64Var(&dt, "dt", config.DefaultDt, "timestep")
	f.Float64Var(&duration, "time", config.DefaultDuration, "duration")
	f.Int64Var(&seed, "seed", time.Now().UnixNano(), "random seed")
	f.StringVar(&integrator, "integrator", "rk4", "integrator")
	f.StringVar(&controller, "controller", "none", "controller")
	f.StringVar(&drive, "drive", "", "driven coordinate")
	f.Float64Var(&rate, "rate", 1, "drive rate")
	f.Float64Var(&kp, "kp", config.DefaultKp, "pid kp")
	f.Float64Var(&ki, "ki", config.DefaultKi, "pid ki")
	f.Float64Var(&kd, "kd", config.DefaultKd, "pid kd")
	f.BoolVar(&project, "project", true, "project states back onto the constraints")
	f.BoolVar(&adaptive, "adaptive", false, "adaptive step size (rk45)")
	f.Float64Var(&tolerance, "tol", 1e-6, "adaptive step tolerance")
}

// loadConfig layers defaults, config file, preset, the positional
// mechanism and finally any flag set on the command line.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, errors.Wrap(err, "load config")
		}
		cfg = loaded
	}
	if len(args) > 0 {
		cfg.Mechanism = args[0]
	}
	if preset != "" {
		p := config.GetPreset(cfg.Mechanism, preset)
		if p == nil {
			return nil, errors.Errorf("unknown preset %q for %s (available: %v)", preset, cfg.Mechanism, config.ListPresets(cfg.Mechanism))
		}
		cfg = p
	}

	fl := cmd.Flags()
	if fl.Changed("mechanism-file") {
		cfg.MechanismFile = mechanismFile
	}
	if fl.Changed("dt") {
		cfg.Dt = dt
	}
	if fl.Changed("time") {
		cfg.Duration = duration
	}
	if fl.Changed("seed") || cfg.Seed == 0 {
		cfg.Seed = seed
	}
	if fl.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if fl.Changed("controller") {
		cfg.Controller = controller
	}
	if fl.Changed("drive") {
		cfg.Drive.Coordinate = drive
	}
	if fl.Changed("rate") {
		cfg.Drive.Rate = rate
	}
	if fl.Changed("kp") {
		cfg.Drive.Kp = kp
	}
	if fl.Changed("ki") {
		cfg.Drive.Ki = ki
	}
	if fl.Changed("kd") {
		cfg.Drive.Kd = kd
	}
	if fl.Changed("project") {
		cfg.Kinematics.Project = project
	}
	if fl.Changed("adaptive") {
		cfg.Adaptive = adaptive
	}
	if fl.Changed("tol") {
		cfg.Tolerance = tolerance
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openStore() (*storage.Store, error) {
	st := storage.New(dataDir)
	return st, st.Init()
}

// resolveRun maps "latest" to the newest stored run.
func resolveRun(st *storage.Store, id string) (string, error) {
	if id == "latest" {
		return st.Latest()
	}
	return id, nil
}
