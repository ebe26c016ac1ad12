package viz

import (
	"math"

	"github.com/san-kum/linkage/internal/dynamo"
	"github.com/san-kum/linkage/internal/mbs"
)

// Renderer draws mechanism snapshots on a Canvas.
type Renderer struct {
	View Viewport
	// Trace is the point whose path is drawn, -1 for none.
	Trace    int
	MaxTrail int

	guides [][2]mbs.Vec2
	trail  []mbs.Vec2
}

// NewRenderer fits the view around the given snapshots. Each snapshot box
// grows by the longest body so a swinging link stays on screen.
func NewRenderer(c *Canvas, arm *mbs.AssembledModel, frames ...mbs.Snapshot) *Renderer {
	r := &Renderer{Trace: -1, MaxTrail: 400}
	for _, con := range arm.Constraints() {
		if s, ok := con.(*mbs.FixedSlider); ok {
			r.guides = append(r.guides, [2]mbs.Vec2{s.A, s.B})
		}
	}

	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	grow := func(p mbs.Vec2) {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	var reach float64
	for _, b := range arm.Bodies() {
		reach = math.Max(reach, b.Length())
	}
	for _, f := range frames {
		for _, p := range f.Points {
			grow(p.Position())
		}
	}
	if len(frames) == 1 {
		minX, maxX, minY, maxY = minX-reach, maxX+reach, minY-reach, maxY+reach
	}
	if math.IsInf(minX, 0) {
		minX, maxX, minY, maxY = -1, 1, -1, 1
	}
	r.View = Fit(c, minX, maxX, minY, maxY, 0.05)
	return r
}

// ResetTrail forgets the traced path.
func (r *Renderer) ResetTrail() { r.trail = r.trail[:0] }

// Draw renders one frame: slider guides, the trail, bodies and grounds.
func (r *Renderer) Draw(c *Canvas, s mbs.Snapshot) {
	c.Clear()
	w, h := c.PixelSize()
	for _, g := range r.guides {
		d := g[1].Sub(g[0])
		l := math.Hypot(d.X, d.Y)
		if l == 0 {
			continue
		}
		// Guides run across the whole canvas.
		d = d.Scale(float64(w+h) / (r.View.Scale * l))
		x0, y0 := r.View.Map(g[0].Sub(d))
		x1, y1 := r.View.Map(g[0].Add(d))
		c.DrawDashed(x0, y0, x1, y1, 3)
	}

	if r.Trace >= 0 && r.Trace < len(s.Points) {
		r.trail = append(r.trail, s.Points[r.Trace].Position())
		if len(r.trail) > r.MaxTrail {
			r.trail = r.trail[len(r.trail)-r.MaxTrail:]
		}
		for _, p := range r.trail {
			c.Set(r.View.Map(p))
		}
	}

	for _, b := range s.Bodies {
		x0, y0 := r.View.Map(b.P0)
		x1, y1 := r.View.Map(b.P1)
		c.DrawLine(x0, y0, x1, y1)
		if b.Render.Style == mbs.RenderCylinder {
			rad := max(1, int(b.Render.CylDiameter*r.View.Scale/2))
			c.DrawCircle(x0, y0, rad)
			c.DrawCircle(x1, y1, rad)
		}
	}

	for _, p := range s.Points {
		if !p.Fixed {
			continue
		}
		x, y := r.View.Map(p.Position())
		c.DrawLine(x, y, x-3, y+4)
		c.DrawLine(x, y, x+3, y+4)
		c.DrawLine(x-4, y+4, x+4, y+4)
	}
}

// SnapshotAt loads q and dq into arm and returns its snapshot. dq may be
// nil.
func SnapshotAt(arm *mbs.AssembledModel, q, dq dynamo.State) (mbs.Snapshot, error) {
	if err := arm.SetQ(q); err != nil {
		return mbs.Snapshot{}, err
	}
	if dq != nil {
		if err := arm.SetDotQ(dq); err != nil {
			return mbs.Snapshot{}, err
		}
	}
	return arm.Snapshot(), nil
}
