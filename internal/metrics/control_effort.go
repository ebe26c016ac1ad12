package metrics

import (
	"math"

	"github.com/san-kum/linkage/internal/dynamo"
)

// DriveEffort is the mean L1 norm of the generalized drive forces.
type DriveEffort struct {
	name    string
	sum     float64
	peak    float64
	samples int
}

func NewDriveEffort() *DriveEffort {
	return &DriveEffort{
		name: "drive_effort",
	}
}

func (c *DriveEffort) Name() string {
	return c.name
}

func (c *DriveEffort) Observe(x dynamo.State, u dynamo.Control, t float64) {
	var l1 float64
	for _, val := range u {
		l1 += math.Abs(val)
	}
	c.sum += l1
	c.peak = math.Max(c.peak, l1)
	c.samples++
}

func (c *DriveEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

// Peak returns the largest single-step effort.
func (c *DriveEffort) Peak() float64 { return c.peak }

func (c *DriveEffort) Reset() {
	c.sum = 0
	c.peak = 0
	c.samples = 0
}
