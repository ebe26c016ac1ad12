package export

import (
	"bytes"
	"strings"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/san-kum/linkage/internal/analysis"
	"github.com/san-kum/linkage/internal/mbs"
)

func pendulumFrames(t *testing.T) []mbs.Snapshot {
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
	var frames []mbs.Snapshot
	for _, q := range [][]float64{{1, 0}, {0.6, -0.8}, {0, -1}} {
		if err := arm.SetQ(q); err != nil {
			t.Fatal(err)
		}
		frames = append(frames, arm.Snapshot())
	}
	return frames
}

func TestMechanismSVG(t *testing.T) {
	g := NewWithT(t)
	var buf bytes.Buffer
	err := MechanismSVG(&buf, pendulumFrames(t), SVGOptions{Trace: 1, Width: 400, Height: 300})
	g.Expect(err).NotTo(HaveOccurred())

	out := buf.String()
	g.Expect(out).To(HavePrefix("<?xml"))
	g.Expect(out).To(ContainSubstring(`width="400" height="300"`))
	g.Expect(out).To(ContainSubstring("<title>bar</title>"))
	g.Expect(strings.Count(out, " L")).To(Equal(2), "trace through three frames")
	g.Expect(strings.Count(out, "<circle")).To(Equal(1))
	g.Expect(out).To(HaveSuffix("</svg>\n"))

	g.Expect(MechanismSVG(&buf, nil, SVGOptions{})).NotTo(Succeed())
}

func TestCurveSVG(t *testing.T) {
	g := NewWithT(t)
	c := &analysis.Curve{XLabel: "theta", YLabel: "dtheta/dt", Points: []analysis.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 0}}}
	var buf bytes.Buffer
	g.Expect(CurveSVG(&buf, c, 200, 100, "#00ff00")).To(Succeed())
	g.Expect(buf.String()).To(ContainSubstring(`stroke="#00ff00"`))
	g.Expect(buf.String()).To(ContainSubstring("dtheta/dt vs theta"))

	g.Expect(CurveSVG(&buf, &analysis.Curve{}, 200, 100, "#fff")).NotTo(Succeed())
}
