// Package automation runs scripted sequences of experiments described in
// YAML.
//
//	name: fourbar study
//	steps:
//	  - name: sweep
//	    kind: sweep
//	    preset: sweep
//	    mechanism: fourbar
//	    save: true
//	  - name: free fall
//	    mechanism: pendulum
//	    duration: 2
package automation

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/linkage/internal/config"
	"github.com/san-kum/linkage/internal/dynamo"
	"github.com/san-kum/linkage/internal/experiment"
	"github.com/san-kum/linkage/internal/logging"
	"github.com/san-kum/linkage/internal/storage"
)

var ErrUnknownKind = errors.New("automation: unknown step kind")

const (
	KindRun      = "run"
	KindSweep    = "sweep"
	KindEstimate = "estimate"
)

// Scenario is a named sequence of steps.
type Scenario struct {
	Name        string
	Description string
	Steps       []Step
}

// Step is one experiment. Its Config starts from the preset (or the
// defaults) with the step's own keys laid over it.
type Step struct {
	Name   string
	Kind   string
	Save   bool
	Config *config.Config
}

type stepHeader struct {
	Name      string `yaml:"name"`
	Kind      string `yaml:"kind"`
	Preset    string `yaml:"preset"`
	Mechanism string `yaml:"mechanism"`
	Save      bool   `yaml:"save"`
}

type rawScenario struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Steps       []yaml.Node `yaml:"steps"`
}

// ParseScenario decodes a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var raw rawScenario
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parse scenario")
	}
	sc := &Scenario{Name: raw.Name, Description: raw.Description}
	for i := range raw.Steps {
		node := &raw.Steps[i]
		var h stepHeader
		if err := node.Decode(&h); err != nil {
			return nil, errors.Wrapf(err, "step %d", i+1)
		}
		if h.Kind == "" {
			h.Kind = KindRun
		}
		switch h.Kind {
		case KindRun, KindSweep, KindEstimate:
		default:
			return nil, errors.Wrapf(ErrUnknownKind, "step %d: %q", i+1, h.Kind)
		}

		cfg := config.DefaultConfig()
		if h.Preset != "" {
			mech := h.Mechanism
			if mech == "" {
				mech = cfg.Mechanism
			}
			if cfg = config.GetPreset(mech, h.Preset); cfg == nil {
				return nil, errors.Errorf("step %d: unknown preset %s/%s", i+1, mech, h.Preset)
			}
		}
		if err := node.Decode(cfg); err != nil {
			return nil, errors.Wrapf(err, "step %d config", i+1)
		}
		if err := cfg.Validate(); err != nil {
			return nil, errors.Wrapf(err, "step %d", i+1)
		}
		if h.Name == "" {
			h.Name = cfg.Mechanism + "-" + h.Kind
		}
		sc.Steps = append(sc.Steps, Step{Name: h.Name, Kind: h.Kind, Save: h.Save, Config: cfg})
	}
	return sc, nil
}

// LoadScenario reads a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read scenario")
	}
	return ParseScenario(data)
}

// StepResult is what one step produced. RunID is set for saved steps.
type StepResult struct {
	Name   string
	Kind   string
	RunID  string
	Result *dynamo.Result
}

// Runner executes scenarios. Store may be nil, then nothing is saved.
type Runner struct {
	Store  *storage.Store
	Logger *zap.SugaredLogger
}

// Run executes every step in order and stops at the first failure,
// returning the results gathered so far.
func (r *Runner) Run(ctx context.Context, sc *Scenario) ([]StepResult, error) {
	logger := r.Logger
	if logger == nil {
		logger = logging.Global().Named("automation")
	}
	results := make([]StepResult, 0, len(sc.Steps))
	for i, step := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return results, errors.Wrap(dynamo.ErrContextCanceled, err.Error())
		}
		logger.Infow("step", "index", i+1, "of", len(sc.Steps), "name", step.Name, "kind", step.Kind)

		exp, err := experiment.New(step.Config, experiment.WithLogger(logger.Named(step.Name)))
		if err != nil {
			return results, errors.Wrapf(err, "step %q", step.Name)
		}
		res, err := execute(ctx, exp, step.Kind)
		if err != nil {
			return results, errors.Wrapf(err, "step %q", step.Name)
		}

		sr := StepResult{Name: step.Name, Kind: step.Kind, Result: res}
		if step.Save && r.Store != nil {
			meta := storage.RunMetadata{
				Kind:        storedKind(step.Kind),
				Mechanism:   exp.Mechanism().Name,
				Seed:        step.Config.Seed,
				Dt:          step.Config.Dt,
				Duration:    step.Config.Duration,
				Coordinates: exp.Model().CoordinateNames(),
			}
			if step.Kind == KindRun {
				meta.Integrator, meta.Controller = step.Config.Integrator, step.Config.Controller
			}
			if sr.RunID, err = r.Store.Save(meta, res); err != nil {
				return results, errors.Wrapf(err, "save step %q", step.Name)
			}
		}
		results = append(results, sr)
	}
	return results, nil
}

func execute(ctx context.Context, exp *experiment.Experiment, kind string) (*dynamo.Result, error) {
	switch kind {
	case KindSweep:
		sw, err := exp.Sweep(ctx)
		if err != nil {
			return nil, err
		}
		return sw.AsResult(), nil
	case KindEstimate:
		est, err := exp.Estimate(ctx)
		if err != nil {
			return nil, err
		}
		res := &dynamo.Result{Accelerations: est.A, Metrics: map[string]float64{}}
		for k := range est.Q {
			res.States = append(res.States, dynamo.Stack(est.Q[k], est.V[k]))
			res.Times = append(res.Times, float64(k)*exp.Config().Dt)
		}
		if n := len(est.Runs); n > 0 {
			res.Metrics["rmse"] = est.Runs[n-1].RMSE
			res.Metrics["final_error"] = est.Runs[n-1].FinalError
		}
		res.StepsTaken = max(len(res.States)-1, 0)
		return res, nil
	default:
		return exp.Run(ctx)
	}
}

// storedKind maps a step kind to the kind recorded by the run store.
func storedKind(kind string) string {
	if kind == KindRun {
		return "dynamics"
	}
	return kind
}
