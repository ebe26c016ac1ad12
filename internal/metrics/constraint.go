package metrics

import (
	"math"

	"github.com/san-kum/linkage/internal/dynamo"
	"github.com/san-kum/linkage/internal/mbs"
)

// ConstraintViolation tracks the largest ‖Φ(q)‖ seen and how many samples
// exceeded the threshold. Observing writes q and q̇ into the model.
type ConstraintViolation struct {
	name       string
	arm        *mbs.AssembledModel
	threshold  float64
	worst      float64
	violations int
	samples    int
}

func NewConstraintViolation(arm *mbs.AssembledModel, threshold float64) *ConstraintViolation {
	return &ConstraintViolation{
		name:      "constraint_violation",
		arm:       arm,
		threshold: threshold,
	}
}

func (c *ConstraintViolation) Name() string {
	return c.name
}

func (c *ConstraintViolation) Observe(x dynamo.State, u dynamo.Control, t float64) {
	q, dq := x.Split()
	if c.arm.SetQ(q) != nil || c.arm.SetDotQ(dq) != nil {
		return
	}
	c.arm.UpdatePhiAndJacobians()
	norm := c.arm.PhiNorm()
	c.samples++
	if math.IsNaN(norm) || norm > c.threshold {
		c.violations++
	}
	if !math.IsNaN(norm) {
		c.worst = math.Max(c.worst, norm)
	}
}

func (c *ConstraintViolation) Value() float64 {
	return c.worst
}

// Rate returns the fraction of samples above the threshold.
func (c *ConstraintViolation) Rate() float64 {
	if c.samples == 0 {
		return 0
	}
	return float64(c.violations) / float64(c.samples)
}

func (c *ConstraintViolation) Reset() {
	c.worst = 0
	c.violations = 0
	c.samples = 0
}
