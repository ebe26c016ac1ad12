package viz

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/san-kum/linkage/internal/config"
	"github.com/san-kum/linkage/internal/dynamo"
	"github.com/san-kum/linkage/internal/experiment"
	"github.com/san-kum/linkage/internal/mbs"
)

// FromExperiment builds a live viewer that integrates e with its configured
// integrator, controller and projector. The last variable point is traced
// unless opts say otherwise.
func FromExperiment(e *experiment.Experiment, opts ...Option) (Model, error) {
	integ, ctrl, proj, err := e.Components()
	if err != nil {
		return Model{}, err
	}
	arm := e.Model()
	src := NewLiveSource(arm, e.System(), integ, ctrl, proj, e.InitialState(), e.Config().Dt)

	base := []Option{WithTrace(lastVariablePoint(arm))}
	if c, ok := ctrl.(dynamo.Configurable); ok {
		base = append(base, WithTunable(c))
	}
	return NewModel(e.Mechanism().Name, arm, src, nil, append(base, opts...)...)
}

// Replay builds a viewer over a recorded trajectory.
func Replay(name string, arm *mbs.AssembledModel, times []float64, q, dq []dynamo.State, opts ...Option) (Model, error) {
	src, err := NewReplaySource(arm, times, q, dq)
	if err != nil {
		return Model{}, err
	}
	fit, err := src.Frames()
	if err != nil {
		return Model{}, err
	}
	base := []Option{WithTrace(lastVariablePoint(arm))}
	return NewModel(name, arm, src, fit, append(base, opts...)...)
}

func lastVariablePoint(arm *mbs.AssembledModel) int {
	for i := arm.NumPoints() - 1; i >= 0; i-- {
		if !arm.IsFixed(i) {
			return i
		}
	}
	return -1
}

const (
	stateMenu = iota
	stateSim
)

type entry struct {
	mechanism, preset, desc string
}

// App is the interactive launcher: pick a mechanism preset, watch it run,
// press esc to come back.
type App struct {
	state   int
	cursor  int
	entries []entry
	live    Model
	err     error
	logger  *zap.SugaredLogger
}

func NewApp(logger *zap.SugaredLogger) *App {
	a := &App{logger: logger}
	for _, name := range config.ListMechanisms() {
		desc := ""
		if m, err := config.GetMechanism(name); err == nil {
			desc = m.Description
		}
		for _, p := range config.ListPresets(name) {
			a.entries = append(a.entries, entry{mechanism: name, preset: p, desc: desc})
		}
	}
	return a
}

func (a *App) Init() tea.Cmd { return nil }

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if a.state == stateSim {
		if k, ok := msg.(tea.KeyMsg); ok && k.String() == "esc" {
			a.state = stateMenu
			return a, nil
		}
		next, cmd := a.live.Update(msg)
		a.live = next.(Model)
		return a, cmd
	}
	k, ok := msg.(tea.KeyMsg)
	if !ok {
		return a, nil
	}
	switch k.String() {
	case "q", "ctrl+c":
		return a, tea.Quit
	case "up", "k":
		if a.cursor > 0 {
			a.cursor--
		}
	case "down", "j":
		if a.cursor < len(a.entries)-1 {
			a.cursor++
		}
	case "enter", " ":
		if len(a.entries) == 0 {
			return a, nil
		}
		return a, a.start(a.entries[a.cursor])
	}
	return a, nil
}

func (a *App) start(e entry) tea.Cmd {
	cfg := config.GetPreset(e.mechanism, e.preset)
	if cfg == nil {
		a.err = errors.Errorf("unknown preset %s/%s", e.mechanism, e.preset)
		return nil
	}
	exp, err := experiment.New(cfg, experiment.WithLogger(a.logger))
	if err != nil {
		a.err = err
		return nil
	}
	live, err := FromExperiment(exp)
	if err != nil {
		a.err = err
		return nil
	}
	a.live, a.err, a.state = live, nil, stateSim
	return a.live.Init()
}

func (a *App) View() string {
	if a.state == stateSim {
		return a.live.View() + "\n" + Subtle.Render("esc: back to menu")
	}
	var b strings.Builder
	b.WriteString("\n\n    " + GradientText("LINKAGE", CurrentTheme.Secondary, CurrentTheme.Primary) + "\n")
	b.WriteString("    " + Subtle.Render("planar mechanism simulator") + "\n    " + Separator(26) + "\n\n")

	sel := lipgloss.NewStyle().Foreground(CurrentTheme.Accent).Bold(true)
	for i, e := range a.entries {
		label := fmt.Sprintf("%-16s %-10s", e.mechanism, e.preset)
		desc := e.desc
		if len(desc) > 36 {
			desc = desc[:33] + "..."
		}
		if i == a.cursor {
			b.WriteString("    " + sel.Render("▸ "+label) + "  " + lipgloss.NewStyle().Foreground(CurrentTheme.Secondary).Render(desc) + "\n")
		} else {
			b.WriteString("      " + Subtle.Render(label) + "  " + Subtle.Render(desc) + "\n")
		}
	}
	if a.err != nil {
		b.WriteString("\n    " + lipgloss.NewStyle().Foreground(CurrentTheme.Error).Render(a.err.Error()) + "\n")
	}
	b.WriteString("\n    " + KeyHint.Render("j/k") + Subtle.Render(" navigate  ") + KeyHint.Render("enter") + Subtle.Render(" run  ") + KeyHint.Render("q") + Subtle.Render(" quit") + "\n")
	return b.String()
}

// RunInteractive starts the launcher.
func RunInteractive(logger *zap.SugaredLogger) error {
	_, err := tea.NewProgram(NewApp(logger), tea.WithAltScreen()).Run()
	return err
}
