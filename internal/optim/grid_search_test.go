package optim

import (
	"context"
	"math"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	"github.com/san-kum/linkage/internal/dynamo"
)

func TestGridSearchFindsMinimum(t *testing.T) {
	g := NewWithT(t)
	gs, err := NewGridSearch([]string{"a", "b"}, [][]float64{{-1, 0, 1, 2}, {0, 5, 10}})
	g.Expect(err).NotTo(HaveOccurred())

	res, err := gs.Search(context.Background(), func(_ context.Context, p map[string]float64) (float64, error) {
		return math.Pow(p["a"]-1, 2) + math.Pow(p["b"]-5, 2), nil
	})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(res.Evaluated).To(Equal(12))
	g.Expect(res.Best).To(Equal(map[string]float64{"a": 1, "b": 5}))
	g.Expect(res.Value).To(BeZero())
}

func TestGridSearchSkipsFailures(t *testing.T) {
	g := NewWithT(t)
	gs, _ := NewGridSearch([]string{"x"}, [][]float64{{1, 2, 3}})

	res, err := gs.Search(context.Background(), func(_ context.Context, p map[string]float64) (float64, error) {
		switch p["x"] {
		case 1:
			return 0, errors.New("diverged")
		case 2:
			return math.NaN(), nil
		}
		return 7, nil
	})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(res.Failed).To(Equal(2))
	g.Expect(res.Best).To(HaveKeyWithValue("x", 3.0))

	_, err = gs.Search(context.Background(), func(context.Context, map[string]float64) (float64, error) {
		return 0, errors.New("always")
	})
	g.Expect(err).To(HaveOccurred())
}

func TestGridSearchValidation(t *testing.T) {
	g := NewWithT(t)
	_, err := NewGridSearch([]string{"a"}, nil)
	g.Expect(err).To(MatchError(dynamo.ErrDimensionMismatch))
	_, err = NewGridSearch([]string{"a"}, [][]float64{{}})
	g.Expect(err).To(MatchError(dynamo.ErrParameterBounds))
}

func TestGridSearchCanceled(t *testing.T) {
	g := NewWithT(t)
	gs, _ := NewGridSearch([]string{"a"}, [][]float64{{1, 2}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := gs.Search(ctx, func(context.Context, map[string]float64) (float64, error) { return 0, nil })
	g.Expect(err).To(MatchError(dynamo.ErrContextCanceled))
}
