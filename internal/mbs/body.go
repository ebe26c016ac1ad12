package mbs

// Mat2 is a row-major 2×2 block.
type Mat2 [2][2]float64

// Transpose returns mᵀ.
func (m Mat2) Transpose() Mat2 {
	return Mat2{{m[0][0], m[1][0]}, {m[0][1], m[1][1]}}
}

func (m Mat2) MulVec(v Vec2) Vec2 {
	return Vec2{m[0][0]*v.X + m[0][1]*v.Y, m[1][0]*v.X + m[1][1]*v.Y}
}

// RenderStyle selects how a renderer draws a body.
type RenderStyle uint8

const (
	RenderLine RenderStyle = iota
	RenderCylinder
)

func (r RenderStyle) String() string {
	if r == RenderLine {
		return "line"
	}
	return "cylinder"
}

// RenderParams carries drawing hints for reporting layers. They never affect
// the mechanics.
type RenderParams struct {
	Style       RenderStyle
	ShowGrounds bool
	ZLayer      float64
	LineAlpha   uint8
	LineWidth   float32
	CylDiameter float64
}

func DefaultRenderParams() RenderParams {
	return RenderParams{
		Style:       RenderCylinder,
		ShowGrounds: true,
		LineAlpha:   0x8f,
		LineWidth:   1.0,
		CylDiameter: 0.05,
	}
}

// Body is a planar rigid element spanned by two points. Its local frame has
// the origin at Points[0] and +x towards Points[1].
//
// The 4×4 natural-coordinate mass matrix
//
//	    [ M00   | M01 ]
//	M = [ ------+---- ]
//	    [ M01ᵀ  | M11 ]
//
// is cached. Every setter invalidates the cache and the next read of a
// block recomputes it, so writes must go through the setters.
type Body struct {
	Name   string
	Points [2]int
	Render RenderParams

	mass   float64
	cog    Vec2
	length float64
	i0     float64

	m00, m11, m01 Mat2
	cached        bool
}

// NewBody creates a body with explicit inertial parameters; i0 is the moment
// of inertia about Points[0].
func NewBody(name string, p0, p1 int, mass float64, cog Vec2, length, i0 float64) *Body {
	return &Body{
		Name:   name,
		Points: [2]int{p0, p1},
		Render: DefaultRenderParams(),
		mass:   mass,
		cog:    cog,
		length: length,
		i0:     i0,
	}
}

// NewBar creates a slender uniform bar: cog at mid-length, I0 = mL²/3.
func NewBar(name string, p0, p1 int, mass, length float64) *Body {
	return NewBody(name, p0, p1, mass, Vec2{X: length / 2}, length, mass*length*length/3)
}

func (b *Body) Mass() float64 { return b.mass }

func (b *Body) SetMass(v float64) {
	b.mass = v
	b.cached = false
}

func (b *Body) COG() Vec2 { return b.cog }

func (b *Body) SetCOG(v Vec2) {
	b.cog = v
	b.cached = false
}

func (b *Body) Length() float64 { return b.length }

func (b *Body) SetLength(v float64) {
	b.length = v
	b.cached = false
}

// I0 returns the moment of inertia about Points[0].
func (b *Body) I0() float64 { return b.i0 }

func (b *Body) SetI0(v float64) {
	b.i0 = v
	b.cached = false
}

func (b *Body) clone() *Body {
	c := *b
	return &c
}

// EvaluateMassMatrix computes the three distinct blocks of the body mass
// matrix from mass, cog, length and I0 without touching the cache.
func (b *Body) EvaluateMassMatrix() (m00, m11, m01 Mat2) {
	L := b.length
	m := b.mass
	a, c := b.cog.X, b.cog.Y
	iL2 := b.i0 / (L * L)

	d00 := m - 2*m*a/L + iL2
	m00 = Mat2{{d00, 0}, {0, d00}}

	m11 = Mat2{{iL2, 0}, {0, iL2}}

	d01 := m*a/L - iL2
	s01 := m * c / L
	m01 = Mat2{{d01, -s01}, {s01, d01}}
	return m00, m11, m01
}

func (b *Body) ensureMassMatrices() {
	if b.cached {
		return
	}
	b.m00, b.m11, b.m01 = b.EvaluateMassMatrix()
	b.cached = true
}

func (b *Body) M00() Mat2 {
	b.ensureMassMatrices()
	return b.m00
}

func (b *Body) M11() Mat2 {
	b.ensureMassMatrices()
	return b.m11
}

func (b *Body) M01() Mat2 {
	b.ensureMassMatrices()
	return b.m01
}

// MassMatrix4 returns the full 4×4 matrix ordered (x0, y0, x1, y1).
func (b *Body) MassMatrix4() [4][4]float64 {
	m00, m11, m01 := b.M00(), b.M11(), b.M01()
	m10 := m01.Transpose()
	var out [4][4]float64
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			out[i][j] = m00[i][j]
			out[i][j+2] = m01[i][j]
			out[i+2][j] = m10[i][j]
			out[i+2][j+2] = m11[i][j]
		}
	}
	return out
}

// GravityForces returns the generalized gravity forces on both points.
func (b *Body) GravityForces(g Vec2) (f0, f1 Vec2) {
	L := b.length
	a, c := b.cog.X, b.cog.Y
	rg := g.Perp()
	f0 = g.Scale(b.mass * (1 - a/L)).Add(rg.Scale(b.mass * c / L))
	f1 = g.Scale(b.mass * a / L).Sub(rg.Scale(b.mass * c / L))
	return f0, f1
}

// GlobalCOG returns the absolute center of gravity for the given endpoints.
func (b *Body) GlobalCOG(p0, p1 Vec2) Vec2 {
	u := p1.Sub(p0).Scale(1 / b.length)
	return p0.Add(u.Scale(b.cog.X)).Add(u.Perp().Scale(b.cog.Y))
}
