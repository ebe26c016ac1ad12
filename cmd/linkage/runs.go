package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/san-kum/linkage/internal/analysis"
	"github.com/san-kum/linkage/internal/config"
	"github.com/san-kum/linkage/internal/dynamo"
	"github.com/san-kum/linkage/internal/experiment"
	"github.com/san-kum/linkage/internal/export"
	"github.com/san-kum/linkage/internal/mbs"
	"github.com/san-kum/linkage/internal/storage"
	"github.com/san-kum/linkage/internal/store"
	"github.com/san-kum/linkage/internal/viz"
)

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tMECHANISM\tTIME\tSTEPS\tDT\tINTEG\tCTRL")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%.4fs\t%s\t%s\n",
			run.ID,
			run.Kind,
			run.Mechanism,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Steps,
			run.Dt,
			run.Integrator,
			run.Controller,
		)
	}
	return w.Flush()
}

func loadRun(id string) (*storage.RunMetadata, *dynamo.Result, error) {
	st := storage.New(dataDir)
	id, err := resolveRun(st, id)
	if err != nil {
		return nil, nil, err
	}
	meta, err := st.Load(id)
	if err != nil {
		return nil, nil, err
	}
	res, err := st.LoadTrajectory(id)
	if err != nil {
		return nil, nil, err
	}
	if len(res.States) == 0 {
		return nil, nil, errors.Errorf("run %s has no samples", id)
	}
	return meta, res, nil
}

func coordIndex(meta *storage.RunMetadata, name string) (int, error) {
	for i, c := range meta.Coordinates {
		if c == name {
			return i, nil
		}
	}
	return -1, errors.Errorf("run %s has no coordinate %q (have %v)", meta.ID, name, meta.Coordinates)
}

func plotRun(cmd *cobra.Command, args []string) error {
	meta, res, err := loadRun(args[0])
	if err != nil {
		return err
	}
	q := res.Positions()
	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("mechanism: %s\n", meta.Mechanism)
	fmt.Printf("samples: %d\n\n", len(q))

	if pointName != "" {
		ix, err := coordIndex(meta, pointName+".x")
		if err != nil {
			return err
		}
		curve, err := analysis.PointTrace(q, ix, pointName)
		if err != nil {
			return err
		}
		minX, maxX, minY, maxY := curve.Bounds()
		fmt.Printf("path of %s, length %.4g, x [%.4g, %.4g], y [%.4g, %.4g]\n\n", pointName, curve.Length(), minX, maxX, minY, maxY)
		fmt.Print(curve.ASCII(80, 24))
		return nil
	}

	coords := make([]int, len(meta.Coordinates))
	for i := range coords {
		coords[i] = i
	}
	if coordName != "" {
		i, err := coordIndex(meta, coordName)
		if err != nil {
			return err
		}
		coords = []int{i}
	}
	for _, i := range coords {
		graph := asciigraph.Plot(analysis.Series(q, i),
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(meta.Coordinates[i]+" vs time"),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	meta, res, err := loadRun(args[0])
	if err != nil {
		return err
	}
	idx := len(meta.Coordinates) - 1
	if coordName != "" {
		if idx, err = coordIndex(meta, coordName); err != nil {
			return err
		}
	}
	name := meta.Coordinates[idx]
	q := res.Positions()
	signal := analysis.Series(q, idx)
	dt := meta.Dt
	if len(res.Times) > 1 {
		dt = res.Times[1] - res.Times[0]
	}

	fmt.Printf("run: %s, coordinate: %s, samples: %d\n\n", meta.ID, name, len(signal))
	fmt.Printf("  swing            %.6g\n", analysis.Range(signal))
	if p, err := analysis.DominantPeriod(signal, dt); err == nil {
		fmt.Printf("  spectral period  %.6g s\n", p)
	} else {
		fmt.Printf("  spectral period  n/a (%v)\n", err)
	}
	if mean, std, err := analysis.CrossingPeriod(res.Times, signal); err == nil {
		fmt.Printf("  crossing period  %.6g s ± %.2g\n", mean, std)
	} else {
		fmt.Printf("  crossing period  n/a (%v)\n", err)
	}
	c := analysis.Closure(q, pointCoords(meta.Coordinates))
	fmt.Printf("  closure gap      %.3g (largest step %.3g at %d)\n", c.Gap, c.MaxStep, c.MaxStepAt)

	portrait, err := analysis.PhasePortrait(res, idx, name)
	if err != nil {
		return err
	}
	fmt.Printf("\nphase portrait %s vs %s\n\n", portrait.XLabel, portrait.YLabel)
	fmt.Print(portrait.ASCII(60, 20))
	if outPath == "" {
		return nil
	}
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := export.CurveSVG(f, portrait, 600, 600, "#00d7ff"); err != nil {
		return err
	}
	fmt.Printf("\nphase portrait written to %s\n", outPath)
	return nil
}

func rows(states []dynamo.State) [][]float64 {
	out := make([][]float64, len(states))
	for i, s := range states {
		out[i] = s
	}
	return out
}

func exportRun(cmd *cobra.Command, args []string) error {
	meta, res, err := loadRun(args[0])
	if err != nil {
		return err
	}
	info := store.RunInfo{
		Mechanism:   meta.Mechanism,
		Integrator:  meta.Integrator,
		Controller:  meta.Controller,
		Dt:          meta.Dt,
		Duration:    meta.Duration,
		Coordinates: meta.Coordinates,
	}

	switch format {
	case "json":
		if outPath == "" {
			return store.ExportJSONStdout(info, res)
		}
		if err := store.ExportJSON(outPath, info, res); err != nil {
			return err
		}
	case "txt":
		if outPath == "" {
			return store.WriteMatrix(os.Stdout, rows(res.Positions()))
		}
		if err := os.MkdirAll(outPath, 0755); err != nil {
			return err
		}
		files := map[string][][]float64{
			"q.txt":  rows(res.Positions()),
			"dq.txt": rows(res.Velocities()),
			"t.txt":  store.Column(res.Times),
		}
		if len(res.Accelerations) > 0 {
			files["ddq.txt"] = rows(res.Accelerations)
		}
		for name, m := range files {
			if err := store.SaveMatrix(filepath.Join(outPath, name), m); err != nil {
				return err
			}
		}
	case "svg":
		w := os.Stdout
		if outPath != "" {
			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		if err := exportSVG(w, meta, res); err != nil {
			return err
		}
		if outPath == "" {
			return nil
		}
	default:
		return errors.Errorf("unknown format %q (json, txt, svg)", format)
	}
	fmt.Printf("exported %s to %s\n", meta.ID, outPath)
	return nil
}

// runModel assembles the mechanism a stored run was produced with. The
// --mechanism-file flag overrides the built-in lookup.
func runModel(meta *storage.RunMetadata) (*mbs.AssembledModel, error) {
	var (
		mech *config.Mechanism
		err  error
	)
	if mechanismFile != "" {
		mech, err = config.LoadMechanism(mechanismFile)
	} else {
		mech, err = config.GetMechanism(meta.Mechanism)
	}
	if err != nil {
		return nil, err
	}
	arm, _, err := mech.Assemble()
	return arm, err
}

// exportSVG draws the final pose of a run over the path of --point, or of
// the last moving point when the flag is empty.
func exportSVG(w io.Writer, meta *storage.RunMetadata, res *dynamo.Result) error {
	arm, err := runModel(meta)
	if err != nil {
		return err
	}
	opts := export.SVGOptions{Trace: -1}
	if pointName != "" {
		if opts.Trace, err = findPoint(arm, pointName); err != nil {
			return err
		}
	} else {
		for i := arm.NumPoints() - 1; i >= 0; i-- {
			if !arm.IsFixed(i) {
				opts.Trace = i
				break
			}
		}
	}

	q, dq := res.Positions(), res.Velocities()
	frames := make([]mbs.Snapshot, 0, len(q))
	for k := range q {
		snap, err := viz.SnapshotAt(arm, q[k], dq[k])
		if err != nil {
			return errors.Wrapf(err, "sample %d", k)
		}
		frames = append(frames, snap)
	}
	return export.MechanismSVG(w, frames, opts)
}

func listMechanisms(cmd *cobra.Command, args []string) error {
	reg := experiment.NewRegistry()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MECHANISM\tPRESETS\tDESCRIPTION")
	for _, name := range reg.ListMechanisms() {
		m, err := config.GetMechanism(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, strings.Join(config.ListPresets(name), ","), m.Description)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nintegrators: %s\n", strings.Join(reg.ListIntegrators(), ", "))
	fmt.Printf("controllers: %s\n", strings.Join(reg.ListControllers(), ", "))
	return nil
}
