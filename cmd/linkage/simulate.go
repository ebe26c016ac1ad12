package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/san-kum/linkage/internal/analysis"
	"github.com/san-kum/linkage/internal/automation"
	"github.com/san-kum/linkage/internal/config"
	"github.com/san-kum/linkage/internal/dynamo"
	"github.com/san-kum/linkage/internal/experiment"
	"github.com/san-kum/linkage/internal/mbs"
	"github.com/san-kum/linkage/internal/storage"
	"github.com/san-kum/linkage/internal/viz"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func newExperiment(cmd *cobra.Command, args []string) (*experiment.Experiment, error) {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return nil, err
	}
	return experiment.New(cfg, experiment.WithLogger(logger))
}

func metadata(exp *experiment.Experiment, kind string) storage.RunMetadata {
	cfg := exp.Config()
	meta := storage.RunMetadata{
		Kind:        kind,
		Mechanism:   exp.Mechanism().Name,
		Seed:        cfg.Seed,
		Dt:          cfg.Dt,
		Duration:    cfg.Duration,
		Coordinates: exp.Model().CoordinateNames(),
	}
	if kind == "dynamics" {
		meta.Integrator, meta.Controller = cfg.Integrator, cfg.Controller
	}
	return meta
}

func printMetrics(m map[string]float64) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Println("\nmetrics:")
	for _, name := range names {
		fmt.Printf("  %-22s %.6g\n", name, m[name])
	}
}

func runSimulation(cmd *cobra.Command, args []string) error {
	exp, err := newExperiment(cmd, args)
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("running %s...\n", exp.Mechanism().Name)
	start := time.Now()
	result, err := exp.Run(ctx)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	id, err := st.Save(metadata(exp, "dynamics"), result)
	if err != nil {
		return err
	}
	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", id)
	fmt.Printf("steps: %d\n", result.StepsTaken)
	if len(result.Errors) > 0 {
		fmt.Printf("step errors: %d (first: %v)\n", len(result.Errors), result.Errors[0])
	}
	printMetrics(result.Metrics)
	return nil
}

// pointCoords returns the indices of point coordinates (named "P.x" or
// "P.y"). Angles are left out since they grow without bound.
func pointCoords(names []string) []int {
	var out []int
	for i, n := range names {
		if strings.HasSuffix(n, ".x") || strings.HasSuffix(n, ".y") {
			out = append(out, i)
		}
	}
	return out
}

func runSweep(cmd *cobra.Command, args []string) error {
	exp, err := newExperiment(cmd, args)
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	sw, err := exp.Sweep(ctx)
	if err != nil {
		return err
	}
	result := sw.AsResult()
	id, err := st.Save(metadata(exp, "sweep"), result)
	if err != nil {
		return err
	}

	fmt.Printf("run id: %s\n", id)
	fmt.Printf("steps: %d, failures: %d\n", len(sw.Q)-1, sw.Failures)
	var worst float64
	for _, d := range sw.Diagnostics {
		worst = math.Max(worst, d.PosFinalPhi)
	}
	fmt.Printf("worst position residual: %.3g\n", worst)
	c := analysis.Closure(sw.Q, pointCoords(exp.Model().CoordinateNames()))
	fmt.Printf("closure gap: %.3g, largest step: %.3g at %d\n", c.Gap, c.MaxStep, c.MaxStepAt)
	return nil
}

func runSolve(cmd *cobra.Command, args []string) error {
	exp, err := newExperiment(cmd, args)
	if err != nil {
		return err
	}
	x := exp.InitialState()
	ddq, lambda, reactions, err := exp.SolveAt(x)
	if err != nil {
		return err
	}
	q, dq := x.Split()
	names := exp.Model().CoordinateNames()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COORD\tQ\tDQ\tDDQ\tREACTION")
	for i, name := range names {
		fmt.Fprintf(w, "%s\t%.6g\t%.6g\t%.6g\t%.6g\n", name, q[i], dq[i], ddq[i], reactions[i])
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Println("\nmultipliers:")
	for i, l := range lambda {
		fmt.Printf("  λ[%d] = %.6g\n", i, l)
	}
	return nil
}

func runEstimate(cmd *cobra.Command, args []string) error {
	exp, err := newExperiment(cmd, args)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	res, err := exp.Estimate(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tINITIAL\tFINAL\tRMSE\tITERS")
	for _, r := range res.Runs {
		fmt.Fprintf(w, "%d\t%.4g\t%.4g\t%.4g\t%d\n", r.Step, r.InitialError, r.FinalError, r.RMSE, r.Iterations)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if len(res.Q) > 0 {
		fmt.Printf("\nfinal q: %s\n", formatVec(res.Q[len(res.Q)-1]))
	}
	return nil
}

func formatVec(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(x, 'g', 6, 64)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func runCheck(cmd *cobra.Command, args []string) error {
	exp, err := newExperiment(cmd, args)
	if err != nil {
		return err
	}
	// A mid-sweep state has non-zero velocities, which the rest state lacks.
	x := exp.InitialState()
	ctx, cancel := signalContext()
	defer cancel()
	if sw, err := exp.Sweep(ctx); err == nil && len(sw.Q) > 2 {
		k := len(sw.Q) / 2
		x = dynamo.Stack(sw.Q[k], sw.DQ[k])
	} else if err != nil {
		logger.Warnw("sweep failed, checking at the initial state", "err", err)
	}

	c, err := experiment.CheckJacobians(exp.Model(), x)
	if err != nil {
		return err
	}
	fmt.Printf("state: %s\n\n", formatVec(x))
	fmt.Printf("  Φ_q          %.3e\n", c.PhiQ)
	fmt.Printf("  Φ̇_q          %.3e\n", c.DotPhiQ)
	fmt.Printf("  ∂(Φ_q q̇)/∂q  %.3e\n", c.DPhiqdq)
	fmt.Printf("  Φ̇ - Φ_q q̇    %.3e\n", c.Velocity)
	if c.Max() > 1e-5 {
		return errors.Errorf("jacobian mismatch %.3e", c.Max())
	}
	fmt.Println("\nok")
	return nil
}

// parseTuneSpec reads "name=v1,v2,...".
func parseTuneSpec(spec string) (string, []float64, error) {
	name, list, ok := strings.Cut(spec, "=")
	if !ok || name == "" || list == "" {
		return "", nil, errors.Errorf("bad --param %q, want name=v1,v2,...", spec)
	}
	var vals []float64
	for _, s := range strings.Split(list, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return "", nil, errors.Wrapf(err, "--param %s", name)
		}
		vals = append(vals, v)
	}
	return name, vals, nil
}

func runTune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	if len(tuneSpecs) == 0 {
		return errors.New("at least one --param is required")
	}
	var names []string
	var ranges [][]float64
	for _, spec := range tuneSpecs {
		name, vals, err := parseTuneSpec(spec)
		if err != nil {
			return err
		}
		names = append(names, name)
		ranges = append(ranges, vals)
	}
	ctx, cancel := signalContext()
	defer cancel()

	res, err := experiment.Tune(ctx, cfg, names, ranges, metric, experiment.WithLogger(logger.Named("tune")))
	if err != nil {
		return err
	}
	fmt.Printf("evaluated %d points, %d failed\n", res.Evaluated, res.Failed)
	fmt.Printf("best %s = %.6g\n", metric, res.Value)
	for _, name := range names {
		fmt.Printf("  %s = %g\n", name, res.Best[name])
	}
	return nil
}

func runLyapunov(cmd *cobra.Command, args []string) error {
	exp, err := newExperiment(cmd, args)
	if err != nil {
		return err
	}
	integ, _, proj, err := exp.Components()
	if err != nil {
		return err
	}
	coord := 0
	if indep := exp.Independent(); len(indep) > 0 {
		coord = indep[0]
	}
	if coordName != "" {
		idx, err := config.ResolveCoordinates(exp.Model(), []string{coordName})
		if err != nil {
			return err
		}
		coord = idx[0]
	}
	lc := analysis.LyapunovConfig{
		Dt:           exp.Config().Dt,
		Duration:     exp.Config().Duration,
		Perturbation: perturb,
		Coord:        coord,
	}
	if proj != nil {
		lc.Project = proj.Project
	}
	l, err := analysis.LyapunovExponent(exp.System(), integ, exp.InitialState(), lc)
	if err != nil {
		return err
	}
	fmt.Printf("largest lyapunov exponent: %.4f 1/s\n", l)
	if l > 0.05 {
		fmt.Println("nearby motions diverge: chaotic")
	}
	return nil
}

func findPoint(arm *mbs.AssembledModel, name string) (int, error) {
	for i := 0; i < arm.NumPoints(); i++ {
		if arm.PointName(i) == name {
			return i, nil
		}
	}
	return -1, errors.Errorf("no point named %q", name)
}

func runLive(cmd *cobra.Command, args []string) error {
	if theme != "" && !viz.SetTheme(theme) {
		return errors.Errorf("unknown theme %q (available: %v)", theme, viz.ThemeNames())
	}
	var opts []viz.Option
	traceOpt := func(arm *mbs.AssembledModel) error {
		if pointName == "" {
			return nil
		}
		i, err := findPoint(arm, pointName)
		if err != nil {
			return err
		}
		opts = append(opts, viz.WithTrace(i))
		return nil
	}

	if runID != "" {
		st, err := openStore()
		if err != nil {
			return err
		}
		id, err := resolveRun(st, runID)
		if err != nil {
			return err
		}
		meta, err := st.Load(id)
		if err != nil {
			return err
		}
		res, err := st.LoadTrajectory(id)
		if err != nil {
			return err
		}
		arm, err := runModel(meta)
		if err != nil {
			return err
		}
		if err := traceOpt(arm); err != nil {
			return err
		}
		m, err := viz.Replay(meta.ID, arm, res.Times, res.Positions(), res.Velocities(), opts...)
		if err != nil {
			return err
		}
		return viz.Run(m)
	}

	exp, err := newExperiment(cmd, args)
	if err != nil {
		return err
	}
	if err := traceOpt(exp.Model()); err != nil {
		return err
	}
	m, err := viz.FromExperiment(exp, opts...)
	if err != nil {
		return err
	}
	return viz.Run(m)
}

func runScenario(cmd *cobra.Command, args []string) error {
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("scenario %s: %d steps\n", sc.Name, len(sc.Steps))
	if sc.Description != "" {
		fmt.Printf("  %s\n", sc.Description)
	}
	r := &automation.Runner{Store: st, Logger: logger.Named("scenario")}
	start := time.Now()
	results, err := r.Run(ctx, sc)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nSTEP\tKIND\tSAMPLES\tRUN")
	for _, sr := range results {
		id := sr.RunID
		if id == "" {
			id = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", sr.Name, sr.Kind, len(sr.Result.States), id)
	}
	if ferr := w.Flush(); ferr != nil && err == nil {
		err = ferr
	}
	if err != nil {
		return err
	}
	fmt.Printf("completed in %v\n", time.Since(start))
	return nil
}
