package mbs

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Four-bar linkage", func() {
	var (
		m      *AssembledModel
		params KinematicsParams
		theta  int
	)

	BeforeEach(func() {
		var err error
		m, err = fourBarDefinition().Assemble()
		Expect(err).NotTo(HaveOccurred())
		params = DefaultKinematicsParams()
		theta, err = m.CoordinateIndex("theta")
		Expect(err).NotTo(HaveOccurred())
	})

	It("converges from an approximate guess", func() {
		res, err := m.ComputeDependentPosVelAcc([]int{theta}, true, true, params)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.PosConverged).To(BeTrue())
		Expect(res.PosFinalPhi).To(BeNumerically("<", 1e-4))
		Expect(res.VelSolved).To(BeTrue())
		Expect(res.AccSolved).To(BeTrue())
		Expect(m.Stage()).To(Equal(AccelerationConsistent))
	})

	Context("driving the crank through a full revolution", func() {
		const steps = 360
		var (
			start []float64
			path  [][]float64
		)

		BeforeEach(func() {
			q := m.Q().Clone()
			q[theta] = 0
			Expect(m.SetQ(q)).To(Succeed())
			_, err := m.ComputeDependentPosVelAcc([]int{theta}, true, false, params)
			Expect(err).NotTo(HaveOccurred())
			start = m.Q().Clone()

			path = path[:0]
			for k := 1; k <= steps; k++ {
				q := m.Q().Clone()
				q[theta] = 2 * math.Pi * float64(k) / steps
				Expect(m.SetQ(q)).To(Succeed())
				res, err := m.ComputeDependentPosVelAcc([]int{theta}, true, true, params)
				Expect(err).NotTo(HaveOccurred())
				Expect(res.PosConverged).To(BeTrue(), "step %d", k)
				path = append(path, m.Q().Clone())
			}
		})

		It("returns to the starting configuration", func() {
			end := path[len(path)-1]
			for i := 0; i < 4; i++ {
				Expect(end[i]).To(BeNumerically("~", start[i], 1e-6))
			}
		})

		It("keeps every link at its length", func() {
			for _, q := range path {
				bc := math.Hypot(q[2]-q[0], q[3]-q[1])
				cd := math.Hypot(q[2]-4, q[3])
				Expect(bc).To(BeNumerically("~", 4, 1e-6))
				Expect(cd).To(BeNumerically("~", 3, 1e-6))
			}
		})

		It("stays on the upper assembly branch", func() {
			for _, q := range path {
				Expect(q[3]).To(BeNumerically(">", 0))
			}
		})
	})
})
