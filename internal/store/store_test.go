package store

import (
	"bytes"
	"encoding/json"
	"math"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/san-kum/linkage/internal/dynamo"
)

func TestMatrixRoundTrip(t *testing.T) {
	g := NewWithT(t)
	rows := [][]float64{
		{1, -0.1, math.Pi},
		{1e-300, 2.5e12, -0},
	}
	var buf bytes.Buffer
	g.Expect(WriteMatrix(&buf, rows)).To(Succeed())
	g.Expect(strings.Count(buf.String(), "\n")).To(Equal(2))

	back, err := ReadMatrix(&buf)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(back).To(Equal(rows))
}

func TestReadMatrixTolerantInput(t *testing.T) {
	g := NewWithT(t)
	in := "% header\n\n  1 2\t3\n# note\n4 5 6  \n"
	rows, err := ReadMatrix(strings.NewReader(in))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(rows).To(Equal([][]float64{{1, 2, 3}, {4, 5, 6}}))
}

func TestReadMatrixErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"ragged", "1 2\n3\n"},
		{"bad number", "1 2\n3 x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)
			_, err := ReadMatrix(strings.NewReader(tt.in))
			g.Expect(err).To(HaveOccurred())
			g.Expect(err.Error()).To(ContainSubstring("line 2"))
		})
	}
	g := NewWithT(t)
	_, err := ReadMatrix(strings.NewReader("1 2\n3\n"))
	g.Expect(err).To(MatchError(ErrRaggedMatrix))
}

func TestSaveLoadMatrix(t *testing.T) {
	g := NewWithT(t)
	path := filepath.Join(t.TempDir(), "q.txt")
	g.Expect(SaveMatrix(path, Column([]float64{0, 0.01, 0.02}))).To(Succeed())

	rows, err := LoadMatrix(path)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(rows).To(Equal([][]float64{{0}, {0.01}, {0.02}}))

	_, err = LoadMatrix(filepath.Join(t.TempDir(), "missing.txt"))
	g.Expect(err).To(HaveOccurred())
}

func TestWriteJSON(t *testing.T) {
	g := NewWithT(t)
	result := &dynamo.Result{
		States:        []dynamo.State{{1, 0, 0, 0}, {0.9, -0.1, -1, -1}},
		Accelerations: []dynamo.State{{0, -1}, {0, -1}},
		Controls:      []dynamo.Control{{0, 0}},
		Times:         []float64{0, 0.01},
		Metrics:       map[string]float64{"energy": 1.5},
	}
	info := RunInfo{Mechanism: "pendulum", Integrator: "rk4", Controller: "none", Dt: 0.01, Duration: 0.01,
		Coordinates: []string{"P.x", "P.y"}}

	var buf bytes.Buffer
	g.Expect(WriteJSON(&buf, info, result)).To(Succeed())

	var back ExportData
	g.Expect(json.Unmarshal(buf.Bytes(), &back)).To(Succeed())
	g.Expect(back.Mechanism).To(Equal("pendulum"))
	g.Expect(back.Steps).To(Equal(2))
	g.Expect(back.Q).To(Equal([][]float64{{1, 0}, {0.9, -0.1}}))
	g.Expect(back.DQ[1]).To(Equal([]float64{-1, -1}))
	g.Expect(back.DDQ).To(HaveLen(2))
	g.Expect(back.Metrics).To(HaveKeyWithValue("energy", 1.5))
}
