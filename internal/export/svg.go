// Package export writes mechanism drawings and traced curves as SVG.
package export

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/pkg/errors"

	"github.com/san-kum/linkage/internal/analysis"
	"github.com/san-kum/linkage/internal/mbs"
)

// SVGOptions controls the drawing. Zero values take the defaults below.
type SVGOptions struct {
	Width, Height int
	Background    string
	Stroke        string
	TraceColor    string
	// Trace is the point whose path over all frames is drawn, -1 for none.
	Trace int
}

func (o *SVGOptions) defaults() {
	if o.Width <= 0 {
		o.Width = 800
	}
	if o.Height <= 0 {
		o.Height = 600
	}
	if o.Background == "" {
		o.Background = "#0a0a0a"
	}
	if o.Stroke == "" {
		o.Stroke = "#dbe9ff"
	}
	if o.TraceColor == "" {
		o.TraceColor = "#ff00ff"
	}
}

type frame struct {
	minX, minY, scale float64
	height            int
}

func fit(points []mbs.Vec2, w, h int) frame {
	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, p := range points {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	rx, ry := maxX-minX, maxY-minY
	if rx == 0 {
		rx = 1
	}
	if ry == 0 {
		ry = 1
	}
	minX -= rx * 0.1
	minY -= ry * 0.1
	rx *= 1.2
	ry *= 1.2
	scale := math.Min(float64(w)/rx, float64(h)/ry)
	// centre the box
	minX -= (float64(w)/scale - rx) / 2
	minY -= (float64(h)/scale - ry) / 2
	return frame{minX: minX, minY: minY, scale: scale, height: h}
}

func (f frame) xy(p mbs.Vec2) (float64, float64) {
	return (p.X - f.minX) * f.scale, float64(f.height) - (p.Y-f.minY)*f.scale
}

func header(sb *strings.Builder, w, h int, bg string) {
	fmt.Fprintf(sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="%s"/>
`, w, h, w, h, bg)
}

func polyline(sb *strings.Builder, f frame, pts []mbs.Vec2, color string) {
	if len(pts) < 2 {
		return
	}
	fmt.Fprintf(sb, `<path fill="none" stroke="%s" stroke-width="1.5" d="M`, color)
	for i, p := range pts {
		x, y := f.xy(p)
		if i == 0 {
			fmt.Fprintf(sb, "%.1f,%.1f", x, y)
		} else {
			fmt.Fprintf(sb, " L%.1f,%.1f", x, y)
		}
	}
	sb.WriteString("\"/>\n")
}

// MechanismSVG draws the last of frames with the traced path of opts.Trace
// across all of them. The view is fitted around every frame.
func MechanismSVG(w io.Writer, frames []mbs.Snapshot, opts SVGOptions) error {
	if len(frames) == 0 {
		return errors.New("export: no frames")
	}
	opts.defaults()
	var all, trace []mbs.Vec2
	for _, s := range frames {
		for i, p := range s.Points {
			all = append(all, p.Position())
			if i == opts.Trace {
				trace = append(trace, p.Position())
			}
		}
	}
	f := fit(all, opts.Width, opts.Height)

	var sb strings.Builder
	header(&sb, opts.Width, opts.Height, opts.Background)
	polyline(&sb, f, trace, opts.TraceColor)

	last := frames[len(frames)-1]
	for _, b := range last.Bodies {
		x0, y0 := f.xy(b.P0)
		x1, y1 := f.xy(b.P1)
		width := float64(b.Render.LineWidth)
		if b.Render.Style == mbs.RenderCylinder {
			width = math.Max(width, b.Render.CylDiameter*f.scale)
		}
		width = math.Max(width, 1)
		fmt.Fprintf(&sb, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="%s" stroke-opacity="%.2f" stroke-width="%.1f" stroke-linecap="round"><title>%s</title></line>
`, x0, y0, x1, y1, opts.Stroke, float64(b.Render.LineAlpha)/255, width, b.Name)
	}
	for _, p := range last.Points {
		x, y := f.xy(p.Position())
		if p.Fixed {
			fmt.Fprintf(&sb, `<path d="M%.1f,%.1f l-8,12 h16 z" fill="none" stroke="%s"/>
`, x, y, opts.Stroke)
			continue
		}
		fmt.Fprintf(&sb, `<circle cx="%.1f" cy="%.1f" r="3" fill="%s"/>
`, x, y, opts.Stroke)
	}
	sb.WriteString("</svg>\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

// CurveSVG draws a traced curve such as a coupler path or phase portrait.
func CurveSVG(w io.Writer, c *analysis.Curve, width, height int, stroke string) error {
	if c == nil || len(c.Points) < 2 {
		return errors.New("export: curve needs at least two points")
	}
	pts := make([]mbs.Vec2, len(c.Points))
	for i, p := range c.Points {
		pts[i] = mbs.Vec2{X: p.X, Y: p.Y}
	}
	f := fit(pts, width, height)

	var sb strings.Builder
	header(&sb, width, height, "#0a0a0a")
	polyline(&sb, f, pts, stroke)
	fmt.Fprintf(&sb, `<text x="8" y="%d" fill="#888899" font-family="monospace" font-size="12">%s vs %s</text>
`, height-8, c.YLabel, c.XLabel)
	sb.WriteString("</svg>\n")
	_, err := io.WriteString(w, sb.String())
	return err
}
