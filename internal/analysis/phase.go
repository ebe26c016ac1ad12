package analysis

import (
	"math"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/linkage/internal/dynamo"
)

// Point is one sample of a planar curve.
type Point struct{ X, Y float64 }

// Curve is a sampled planar curve with axis labels.
type Curve struct {
	XLabel, YLabel string
	Points         []Point
}

// Bounds returns the bounding box of the curve.
func (c *Curve) Bounds() (minX, maxX, minY, maxY float64) {
	if len(c.Points) == 0 {
		return 0, 0, 0, 0
	}
	minX, maxX = math.Inf(1), math.Inf(-1)
	minY, maxY = math.Inf(1), math.Inf(-1)
	for _, p := range c.Points {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	return
}

// Length is the polyline length of the curve.
func (c *Curve) Length() float64 {
	var l float64
	for i := 1; i < len(c.Points); i++ {
		l += math.Hypot(c.Points[i].X-c.Points[i-1].X, c.Points[i].Y-c.Points[i-1].Y)
	}
	return l
}

// PhasePortrait pairs coordinate idx with its velocity over a run.
func PhasePortrait(res *dynamo.Result, idx int, label string) (*Curve, error) {
	if res == nil || len(res.States) == 0 {
		return nil, dynamo.ErrEmptyState
	}
	n := len(res.States[0]) / 2
	if idx < 0 || idx >= n {
		return nil, errors.Wrapf(dynamo.ErrDimensionMismatch, "coordinate %d of %d", idx, n)
	}
	c := &Curve{XLabel: label, YLabel: "d" + label + "/dt", Points: make([]Point, 0, len(res.States))}
	for _, x := range res.States {
		c.Points = append(c.Points, Point{X: x[idx], Y: x[n+idx]})
	}
	return c, nil
}

// PointTrace follows the point whose x coordinate lives at q[ix] and y at
// q[ix+1]. For a coupler point this is the coupler curve.
func PointTrace(q []dynamo.State, ix int, name string) (*Curve, error) {
	if len(q) == 0 {
		return nil, dynamo.ErrEmptyState
	}
	if ix < 0 || ix+1 >= len(q[0]) {
		return nil, errors.Wrapf(dynamo.ErrDimensionMismatch, "point index %d of %d", ix, len(q[0]))
	}
	c := &Curve{XLabel: name + ".x", YLabel: name + ".y", Points: make([]Point, 0, len(q))}
	for _, s := range q {
		c.Points = append(c.Points, Point{X: s[ix], Y: s[ix+1]})
	}
	return c, nil
}

// Range returns max-min of a series, the swing of a coordinate.
func Range(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	return floats.Max(series) - floats.Min(series)
}

// ASCII draws the curve on a width x height character grid with axes
// where they fall inside the box.
func (c *Curve) ASCII(width, height int) string {
	if len(c.Points) == 0 || width < 2 || height < 2 {
		return ""
	}
	minX, maxX, minY, maxY := c.Bounds()
	rangeX, rangeY := maxX-minX, maxY-minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.1
	maxX += rangeX * 0.1
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeX, rangeY = maxX-minX, maxY-minY

	grid := make([][]rune, height)
	for i := range grid {
		grid[i] = []rune(strings.Repeat(" ", width))
	}
	if minX <= 0 && maxX >= 0 {
		col := int(-minX / rangeX * float64(width-1))
		for row := range grid {
			grid[row][col] = '│'
		}
	}
	if minY <= 0 && maxY >= 0 {
		row := height - 1 - int(-minY/rangeY*float64(height-1))
		for col := range grid[row] {
			if grid[row][col] == '│' {
				grid[row][col] = '┼'
			} else {
				grid[row][col] = '─'
			}
		}
	}
	for _, p := range c.Points {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) {
			continue
		}
		col := int((p.X - minX) / rangeX * float64(width-1))
		row := height - 1 - int((p.Y-minY)/rangeY*float64(height-1))
		if row >= 0 && row < height && col >= 0 && col < width {
			grid[row][col] = '•'
		}
	}

	var sb strings.Builder
	for _, row := range grid {
		sb.WriteString(string(row))
		sb.WriteRune('\n')
	}
	return sb.String()
}
