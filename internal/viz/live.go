package viz

import (
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/pkg/errors"

	"github.com/san-kum/linkage/internal/dynamo"
	"github.com/san-kum/linkage/internal/mbs"
)

const (
	width           = 80
	height          = 24
	historyCapacity = 600
)

var (
	canvasStyle      = lipgloss.NewStyle().Padding(1, 2)
	statsStyle       = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, false, true).BorderForeground(lipgloss.Color("240")).Padding(1, 2).Width(45)
	headerStyle      = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	labelStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
	valueStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	activeParamStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	graphStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 0)
	helpStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(2)
)

type TickMsg time.Time

// Model is the bubbletea viewer for a mechanism. It pulls frames from a
// Source, keeps a bounded history for scrubbing and can record a GIF.
type Model struct {
	name     string
	source   Source
	canvas   *Canvas
	renderer *Renderer

	current   Frame
	history   []Frame
	playHead  int
	running   bool
	finished  bool
	err       error
	status    string
	showHelp  bool
	recording bool
	frames    []*image.Paletted
	gifPath   string

	tunable       dynamo.Configurable
	params        map[string]float64
	initialParams map[string]float64
	paramKeys     []string
	selected      int
}

// Option configures a Model.
type Option func(*Model)

// WithTrace draws the path of point i.
func WithTrace(i int) Option {
	return func(m *Model) { m.renderer.Trace = i }
}

// WithGIFPath sets where the G key writes its recording.
func WithGIFPath(path string) Option {
	return func(m *Model) { m.gifPath = path }
}

// WithTunable exposes the parameters of c to the arrow keys.
func WithTunable(c dynamo.Configurable) Option {
	return func(m *Model) {
		m.tunable = c
		m.params = c.GetParams()
		m.initialParams = make(map[string]float64, len(m.params))
		m.paramKeys = m.paramKeys[:0]
		for k, v := range m.params {
			m.paramKeys = append(m.paramKeys, k)
			m.initialParams[k] = v
		}
		sort.Strings(m.paramKeys)
	}
}

// NewModel builds a viewer over src. fit lists the snapshots the view must
// contain; when empty the view is fitted around the first frame.
func NewModel(name string, arm *mbs.AssembledModel, src Source, fit []mbs.Snapshot, opts ...Option) (Model, error) {
	first, err := src.First()
	if err != nil {
		return Model{}, errors.Wrap(err, "first frame")
	}
	c := NewCanvas(width, height)
	if len(fit) == 0 {
		fit = []mbs.Snapshot{first.Snapshot}
	}
	m := Model{
		name:     name,
		source:   src,
		canvas:   c,
		renderer: NewRenderer(c, arm, fit...),
		current:  first,
		history:  make([]Frame, 0, historyCapacity),
		playHead: -1,
		running:  true,
		gifPath:  "linkage.gif",
	}
	for _, o := range opts {
		o(&m)
	}
	m.history = append(m.history, first)
	return m, nil
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(time.Second/60, func(t time.Time) tea.Msg { return TickMsg(t) })
}

// Update handles input events and steps the source.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "r":
			m.reset()
		case "[":
			m.scrub(-1)
		case "]":
			m.scrub(1)
		case "tab":
			if len(m.paramKeys) > 0 {
				m.selected = (m.selected + 1) % len(m.paramKeys)
			}
		case "up", "k":
			m.adjustParam(1.05)
		case "down", "j":
			m.adjustParam(0.95)
		case "c":
			m.renderer.ResetTrail()
		case "g":
			m.toggleRecording()
		case "?":
			m.showHelp = !m.showHelp
		case "t":
			names := ThemeNames()
			for i, name := range names {
				if name == CurrentTheme.Name {
					SetTheme(names[(i+1)%len(names)])
					break
				}
			}
		}
	case tea.WindowSizeMsg:
		return m, nil
	case TickMsg:
		if m.running {
			if m.playHead == -1 {
				m.step()
			} else {
				m.playHead++
				if m.playHead >= len(m.history) {
					m.playHead = -1
				}
			}
		}
		m.renderer.Draw(m.canvas, m.shown().Snapshot)
		if m.recording {
			m.captureFrame()
		}
		return m, tick()
	}
	return m, nil
}

func (m *Model) shown() Frame {
	if m.playHead >= 0 && m.playHead < len(m.history) {
		return m.history[m.playHead]
	}
	return m.current
}

func (m *Model) adjustParam(factor float64) {
	if len(m.paramKeys) == 0 || m.tunable == nil {
		return
	}
	key := m.paramKeys[m.selected]
	val := m.params[key] * factor
	if val == 0 {
		val = 1e-3 * factor
	}
	if err := m.tunable.SetParam(key, val); err != nil {
		m.status = err.Error()
		return
	}
	m.params[key] = val
}

func (m *Model) step() {
	if m.finished || m.err != nil {
		return
	}
	f, ok, err := m.source.Next()
	if err != nil {
		m.err, m.running = err, false
		return
	}
	if !ok {
		m.finished = true
		return
	}
	m.current = f
	m.history = append(m.history, f)
	if len(m.history) > historyCapacity {
		m.history = m.history[1:]
	}
}

// scrub changes the playback position in history.
func (m *Model) scrub(dir int) {
	if m.playHead == -1 {
		if len(m.history) == 0 {
			return
		}
		m.playHead = len(m.history) - 1
		m.running = false
	}
	m.playHead += dir
	if m.playHead < 0 {
		m.playHead = 0
	}
	if m.playHead >= len(m.history) {
		m.playHead = -1
	}
}

// reset restores the initial frame and parameters.
func (m *Model) reset() {
	first, err := m.source.First()
	if err != nil {
		m.err = err
		return
	}
	m.current = first
	m.history = append(m.history[:0], first)
	m.playHead, m.finished, m.err, m.status = -1, false, nil, ""
	m.renderer.ResetTrail()
	for k, v := range m.initialParams {
		m.params[k] = v
		if m.tunable != nil {
			_ = m.tunable.SetParam(k, v)
		}
	}
}

func series(h []Frame, get func(Frame) float64) []float64 {
	out := make([]float64, len(h))
	for i, f := range h {
		out[i] = get(f)
	}
	return out
}

// View renders the canvas and the side panel.
func (m Model) View() string {
	f := m.shown()
	m.renderer.Draw(m.canvas, f.Snapshot)
	canvasView := canvasStyle.Foreground(CurrentTheme.Primary).Render(m.canvas.String())

	var s strings.Builder
	s.WriteString(headerStyle.Foreground(CurrentTheme.Secondary).Render(strings.ToUpper(m.name)) + "\n")
	status := "RUNNING"
	switch {
	case m.err != nil:
		status = lipgloss.NewStyle().Foreground(CurrentTheme.Error).Render("FAILED " + m.err.Error())
	case m.finished:
		status = "DONE"
	case m.playHead != -1:
		status = fmt.Sprintf("REPLAY (%.2fs)", f.Time-m.current.Time)
	case !m.running:
		status = "PAUSED"
	}
	if m.recording {
		status += "  " + StatusRecording.Render("● REC")
	}
	s.WriteString(status + "\n\n")

	if len(m.history) > 1 {
		energy := series(m.history, func(f Frame) float64 { return f.Energy })
		chart := asciigraph.Plot(energy, asciigraph.Height(4), asciigraph.Width(30), asciigraph.Caption("Energy"))
		s.WriteString(graphStyle.Render(chart) + "\n")
		viol := series(m.history, func(f Frame) float64 { return math.Log10(f.Violation + 1e-16) })
		chart = asciigraph.Plot(viol, asciigraph.Height(3), asciigraph.Width(30), asciigraph.Caption("log10 |Φ|"))
		s.WriteString(graphStyle.Render(chart) + "\n")
	}
	s.WriteString(labelStyle.Render("Time") + valueStyle.Render(fmt.Sprintf("%.2fs", f.Time)) + "\n")
	s.WriteString(labelStyle.Render("Energy") + valueStyle.Render(fmt.Sprintf("%.4f", f.Energy)) + "\n")
	s.WriteString(labelStyle.Render("|Φ|") + valueStyle.Render(fmt.Sprintf("%.2e", f.Violation)) + "\n")
	if m.status != "" {
		s.WriteString(Subtle.Render(m.status) + "\n")
	}

	if len(m.paramKeys) > 0 {
		s.WriteString("\nPARAMETERS\n")
		for i, k := range m.paramKeys {
			val, initial := m.params[k], m.initialParams[k]
			ratio := 0.5
			if initial != 0 {
				ratio = val / (2 * initial)
			}
			line := fmt.Sprintf("%-8s %s %.3g", k, ProgressBar(ratio, 10), val)
			if i == m.selected {
				s.WriteString(activeParamStyle.Render("> ") + line + "\n")
			} else {
				s.WriteString("  " + line + "\n")
			}
		}
	}
	s.WriteString(helpStyle.Render("\n─────────────────────\nSP:Pause R:Reset Q:Quit\nT:Theme  G:Record ?:Help\n[ ]:Scrub ↑↓:Tune C:Clear"))
	mainView := lipgloss.JoinHorizontal(lipgloss.Top, canvasView, statsStyle.Render(s.String()))
	if m.showHelp {
		return `
╔══════════════════════════════════════╗
║           KEYBOARD SHORTCUTS         ║
╠══════════════════════════════════════╣
║  Space    - Pause/Resume             ║
║  R        - Reset                    ║
║  Q        - Quit                     ║
║  Tab      - Cycle parameters         ║
║  Up/K     - Increase parameter (+5%) ║
║  Down/J   - Decrease parameter (-5%) ║
║  [ ]      - Scrub history            ║
║  C        - Clear traced path        ║
║  G        - Toggle GIF recording     ║
║  T        - Cycle themes             ║
║  ?        - Toggle this help         ║
╚══════════════════════════════════════╝
` + "\n\n" + mainView
	}
	return mainView
}

func (m *Model) toggleRecording() {
	if !m.recording {
		m.recording, m.frames = true, nil
		return
	}
	if err := m.saveGIF(); err != nil {
		m.status = err.Error()
	} else {
		m.status = fmt.Sprintf("saved %d frames to %s", len(m.frames), m.gifPath)
	}
	m.recording, m.frames = false, nil
}

// captureFrame rasterises the braille canvas, one block per dot.
func (m *Model) captureFrame() {
	const dot = 4
	pw, ph := m.canvas.PixelSize()
	img := image.NewPaletted(image.Rect(0, 0, pw*dot, ph*dot), color.Palette{color.Black, color.White})
	for y := 0; y < ph; y++ {
		for x := 0; x < pw; x++ {
			if !m.canvas.IsSet(x, y) {
				continue
			}
			for dy := 0; dy < dot-1; dy++ {
				for dx := 0; dx < dot-1; dx++ {
					img.SetColorIndex(x*dot+dx, y*dot+dy, 1)
				}
			}
		}
	}
	m.frames = append(m.frames, img)
}

func (m *Model) saveGIF() error {
	if len(m.frames) == 0 {
		return errors.New("no frames recorded")
	}
	anim := gif.GIF{LoopCount: 0}
	for _, frame := range m.frames {
		anim.Image = append(anim.Image, frame)
		anim.Delay = append(anim.Delay, 2)
	}
	f, err := os.Create(m.gifPath)
	if err != nil {
		return errors.Wrap(err, "create gif")
	}
	defer f.Close()
	return errors.Wrap(gif.EncodeAll(f, &anim), "encode gif")
}

// Run starts the viewer in the alternate screen.
func Run(m Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
