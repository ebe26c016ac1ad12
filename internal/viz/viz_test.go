package viz

import (
	"math"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	"github.com/san-kum/linkage/internal/dynamo"
	"github.com/san-kum/linkage/internal/mbs"
)

func TestCanvasPixels(t *testing.T) {
	g := NewWithT(t)
	c := NewCanvas(4, 2)
	w, h := c.PixelSize()
	g.Expect([]int{w, h}).To(Equal([]int{8, 8}))

	c.Set(0, 0)
	c.Set(1, 3)
	g.Expect(c.Grid[0][0]).To(Equal(rune(0x2800 | 0x1 | 0x80)))
	g.Expect(c.IsSet(1, 3)).To(BeTrue())
	g.Expect(c.IsSet(1, 2)).To(BeFalse())

	// Out of range is ignored.
	c.Set(-1, 0)
	c.Set(100, 100)
	g.Expect(c.IsSet(100, 100)).To(BeFalse())

	c.Clear()
	blank := string(rune(0x2800))
	g.Expect(c.String()).To(Equal(strings.Repeat(strings.Repeat(blank, 4)+"\n", 2)))
}

func TestCanvasShapes(t *testing.T) {
	g := NewWithT(t)
	c := NewCanvas(20, 10)

	c.DrawLine(0, 0, 39, 39)
	for i := 0; i < 40; i++ {
		g.Expect(c.IsSet(i, i)).To(BeTrue())
	}

	c.Clear()
	c.DrawCircle(20, 20, 5)
	g.Expect(c.IsSet(25, 20)).To(BeTrue())
	g.Expect(c.IsSet(20, 15)).To(BeTrue())
	g.Expect(c.IsSet(20, 20)).To(BeFalse())

	c.Clear()
	c.DrawDashed(0, 0, 11, 0, 3)
	on := 0
	for x := 0; x <= 11; x++ {
		if c.IsSet(x, 0) {
			on++
		}
	}
	g.Expect(on).To(Equal(6))
	g.Expect(c.IsSet(3, 0)).To(BeFalse())
}

func TestViewportFit(t *testing.T) {
	g := NewWithT(t)
	c := NewCanvas(40, 10)
	v := Fit(c, -1, 1, -1, 1, 0)
	w, h := c.PixelSize()

	// The box is limited by height, so it spans the full pixel height.
	_, top := v.Map(mbs.Vec2{X: 0, Y: 1})
	_, bottom := v.Map(mbs.Vec2{X: 0, Y: -1})
	g.Expect(top).To(Equal(0))
	g.Expect(bottom).To(Equal(h - 1))

	cx, cy := v.Map(mbs.Vec2{})
	g.Expect(cx).To(BeNumerically("~", (w-1)/2, 1))
	g.Expect(cy).To(BeNumerically("~", (h-1)/2, 1))

	// Uniform scale keeps a unit step the same length on both axes.
	x1, _ := v.Map(mbs.Vec2{X: 1})
	g.Expect(x1 - cx).To(BeNumerically("~", bottom-cy, 1))
}

func pendulum(t *testing.T) *mbs.AssembledModel {
	t.Helper()
	d := mbs.NewModelDefinition()
	o := d.AddFixedPoint("O", 0, 0)
	p := d.AddPoint("P", 1, 0)
	d.AddConstantDistance(o, p)
	d.AddBar("bar", o, p, 1)
	arm, err := d.Assemble()
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	return arm
}

func swing(n int) (times []float64, q []dynamo.State) {
	for k := 0; k < n; k++ {
		a := -math.Pi / 2 * float64(k) / float64(n-1)
		times = append(times, 0.01*float64(k))
		q = append(q, dynamo.State{math.Cos(a), math.Sin(a)})
	}
	return times, q
}

func TestRendererDrawsBodiesAndTrail(t *testing.T) {
	g := NewWithT(t)
	arm := pendulum(t)
	c := NewCanvas(30, 15)

	snap, err := SnapshotAt(arm, dynamo.State{1, 0}, nil)
	g.Expect(err).NotTo(HaveOccurred())
	r := NewRenderer(c, arm, snap)
	r.Trace = 1

	r.Draw(c, snap)
	x0, y0 := r.View.Map(mbs.Vec2{})
	x1, y1 := r.View.Map(mbs.Vec2{X: 1})
	g.Expect(c.IsSet(x0, y0)).To(BeTrue())
	g.Expect(c.IsSet(x1, y1)).To(BeTrue())
	g.Expect(c.IsSet((x0+x1)/2, y0)).To(BeTrue())

	snap, err = SnapshotAt(arm, dynamo.State{0, -1}, nil)
	g.Expect(err).NotTo(HaveOccurred())
	r.Draw(c, snap)
	g.Expect(c.IsSet(x1, y1)).To(BeTrue(), "trail keeps the earlier tip")

	r.ResetTrail()
	r.Draw(c, snap)
	g.Expect(c.IsSet(x1, y1)).To(BeFalse())

	_, err = SnapshotAt(arm, dynamo.State{1}, nil)
	g.Expect(errors.Is(err, dynamo.ErrDimensionMismatch)).To(BeTrue())
}

func TestFixedSliderGuide(t *testing.T) {
	g := NewWithT(t)
	d := mbs.NewModelDefinition()
	p := d.AddPoint("S", 0, 0)
	d.AddFixedSlider(p, mbs.Vec2{X: -1}, mbs.Vec2{X: 1})
	arm, err := d.Assemble()
	g.Expect(err).NotTo(HaveOccurred())

	c := NewCanvas(20, 10)
	snap := arm.Snapshot()
	r := NewRenderer(c, arm, snap)
	r.Draw(c, snap)
	w, _ := c.PixelSize()
	_, y := r.View.Map(mbs.Vec2{})
	on := 0
	for x := 0; x < w; x++ {
		if c.IsSet(x, y) {
			on++
		}
	}
	g.Expect(on).To(BeNumerically(">", w/3), "guide runs across the canvas")
}

func TestReplaySource(t *testing.T) {
	g := NewWithT(t)
	arm := pendulum(t)
	times, q := swing(5)

	_, err := NewReplaySource(arm, times[:2], q, nil)
	g.Expect(errors.Is(err, dynamo.ErrDimensionMismatch)).To(BeTrue())
	_, err = NewReplaySource(arm, nil, nil, nil)
	g.Expect(errors.Is(err, dynamo.ErrEmptyState)).To(BeTrue())

	src, err := NewReplaySource(arm, times, q, nil)
	g.Expect(err).NotTo(HaveOccurred())
	n := 0
	for {
		f, ok, err := src.Next()
		g.Expect(err).NotTo(HaveOccurred())
		if !ok {
			break
		}
		g.Expect(f.Violation).To(BeNumerically("<", 1e-12))
		g.Expect(f.Time).To(Equal(times[n]))
		n++
	}
	g.Expect(n).To(Equal(5))

	f, err := src.First()
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(f.Snapshot.Points[1].Position()).To(Equal(mbs.Vec2{X: 1, Y: 0}))
}

func key(s string) tea.KeyMsg {
	if s == " " {
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune(" ")}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModelPlaybackAndScrub(t *testing.T) {
	g := NewWithT(t)
	arm := pendulum(t)
	times, q := swing(4)

	m, err := Replay("pendulum", arm, times, q, nil)
	g.Expect(err).NotTo(HaveOccurred())

	advance := func(m Model, n int) Model {
		for i := 0; i < n; i++ {
			next, _ := m.Update(TickMsg{})
			m = next.(Model)
		}
		return m
	}
	m = advance(m, 10)
	g.Expect(m.finished).To(BeTrue())
	g.Expect(m.history).To(HaveLen(4))
	g.Expect(m.View()).To(ContainSubstring("DONE"))

	next, _ := m.Update(key("["))
	m = next.(Model)
	g.Expect(m.running).To(BeFalse())
	g.Expect(m.shown().Time).To(Equal(times[2]))

	next, _ = m.Update(key("r"))
	m = next.(Model)
	g.Expect(m.history).To(HaveLen(1))
	g.Expect(m.finished).To(BeFalse())

	next, _ = m.Update(key(" "))
	m = next.(Model)
	g.Expect(m.running).To(BeTrue())

	_, cmd := m.Update(key("q"))
	g.Expect(cmd).NotTo(BeNil())
}

type gains struct{ p map[string]float64 }

func (g *gains) GetParams() map[string]float64 {
	out := map[string]float64{}
	for k, v := range g.p {
		out[k] = v
	}
	return out
}

func (g *gains) SetParam(name string, v float64) error {
	if v < 0 {
		return dynamo.ErrParameterBounds
	}
	g.p[name] = v
	return nil
}

func TestModelTuning(t *testing.T) {
	g := NewWithT(t)
	arm := pendulum(t)
	times, q := swing(3)
	tun := &gains{p: map[string]float64{"kd": 2, "kp": 10}}

	m, err := Replay("pendulum", arm, times, q, nil, WithTunable(tun))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(m.paramKeys).To(Equal([]string{"kd", "kp"}))

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(Model)
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m = next.(Model)
	g.Expect(tun.p["kp"]).To(BeNumerically("~", 10.5, 1e-12))

	next, _ = m.Update(key("r"))
	m = next.(Model)
	g.Expect(tun.p["kp"]).To(Equal(10.0))
	g.Expect(m.View()).To(ContainSubstring("PARAMETERS"))
}

func TestStyles(t *testing.T) {
	g := NewWithT(t)
	r, gr, b := parseHex("#0a10ff")
	g.Expect([]int{r, gr, b}).To(Equal([]int{10, 16, 255}))
	r, _, _ = parseHex("nope")
	g.Expect(r).To(Equal(255))

	g.Expect([]rune(Sparkline([]float64{0, 1, 2, 3, 4, 5, 6, 7}, 8))).To(Equal([]rune("▁▂▃▄▅▆▇█")))
	g.Expect(Sparkline(nil, 3)).To(Equal("───"))
	g.Expect(GradientText("", "#000000", "#ffffff")).To(BeEmpty())
}

func TestThemes(t *testing.T) {
	g := NewWithT(t)
	defer func() { CurrentTheme = ThemeBlueprint }()

	g.Expect(ThemeNames()).To(ContainElements("blueprint", "ocean"))
	g.Expect(SetTheme("ocean")).To(BeTrue())
	g.Expect(CurrentTheme.Name).To(Equal("ocean"))
	g.Expect(SetTheme("missing")).To(BeFalse())
	g.Expect(CurrentTheme.Name).To(Equal("ocean"))
}
