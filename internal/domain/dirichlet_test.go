package domain

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDirichlet(t *testing.T) {
	d, err := NewDirichlet[float64](3)
	require.NoError(t, err)
	assert.Equal(t, 3, d.Dimension())
	assert.InDelta(t, 3.0, d.PriorWeight(), tol)
	assert.InDeltaSlice(t, []float64{1, 1, 1}, d.Alphas(), tol)
	assert.True(t, d.AsOpinion().IsVacuous())

	_, err = NewDirichlet[float64](1)
	assert.ErrorIs(t, err, ErrInvalidDimension)
}

func TestNewDirichletWithPrior_Validation(t *testing.T) {
	_, err := NewDirichletWithPrior([]float64{1, -1}, []float64{0.5, 0.5}, 2)
	assert.ErrorIs(t, err, ErrInvalidEvidence)

	_, err = NewDirichletWithPrior([]float64{1, 1}, []float64{0.5, 0.6}, 2)
	assert.ErrorIs(t, err, ErrInvalidBaseRate)

	_, err = NewDirichletWithPrior([]float64{1, 1}, []float64{0.5, 0.5}, 0)
	assert.ErrorIs(t, err, ErrInvalidPrior)

	_, err = NewDirichletWithPrior([]float64{1, math.Inf(1)}, []float64{0.5, 0.5}, 2)
	assert.ErrorIs(t, err, ErrNonFinite)

	_, err = NewDirichletWithPrior([]float64{1, 1}, []float64{1}, 2)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestNewDirichletFromAlphas(t *testing.T) {
	d, err := NewDirichletFromAlphas([]float64{2, 1})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 0}, d.Evidence(), tol)
	assert.InDeltaSlice(t, []float64{2, 1}, d.Alphas(), tol)

	_, err = NewDirichletFromAlphas([]float64{0.5, 1})
	assert.ErrorIs(t, err, ErrInvalidEvidence)
}

func TestDirichlet_MeanAndVariances(t *testing.T) {
	d, err := NewDirichletFromAlphas([]float64{4, 2, 2})
	require.NoError(t, err)

	a, total := []float64{4, 2, 2}, 8.0
	assert.InDelta(t, total, d.Strength(), tol)

	mean := d.Mean()
	vars := d.Variances()
	for i := range a {
		assert.InDelta(t, a[i]/total, mean[i], tol)
		assert.InDelta(t, a[i]*(total-a[i])/(total*total*(total+1)), vars[i], tol)
	}
}

func TestDirichlet_AsOpinion(t *testing.T) {
	d, err := NewDirichletWithPrior([]float64{6, 2}, []float64{0.25, 0.75}, 2)
	require.NoError(t, err)

	op := d.AsOpinion()
	assert.InDelta(t, 0.6, op.BeliefAt(0), tol)
	assert.InDelta(t, 0.2, op.BeliefAt(1), tol)
	assert.InDelta(t, 0.2, op.Uncertainty(), tol)
	assert.InDeltaSlice(t, []float64{0.25, 0.75}, op.BaseRate(), tol)

	// projection of the opinion equals the Dirichlet mean
	assert.InDeltaSlice(t, d.Mean(), op.Projection(), tol)
}

func TestDirichlet_AddEvidenceAndDecay(t *testing.T) {
	d, err := NewDirichlet[float64](2)
	require.NoError(t, err)

	require.NoError(t, d.AddEvidence([]float64{3, 1}))
	assert.InDeltaSlice(t, []float64{3, 1}, d.Evidence(), tol)

	assert.ErrorIs(t, d.AddEvidence([]float64{-1, 0}), ErrInvalidEvidence)
	assert.ErrorIs(t, d.AddEvidence([]float64{1}), ErrDimensionMismatch)

	require.NoError(t, d.Decay(0.5))
	assert.InDeltaSlice(t, []float64{1.5, 0.5}, d.Evidence(), tol)
	assert.Error(t, d.Decay(1.5))

	cp := d.Clone()
	require.NoError(t, cp.AddEvidence([]float64{1, 1}))
	assert.InDeltaSlice(t, []float64{1.5, 0.5}, d.Evidence(), tol)
}

func TestMomentMatchingUpdate_MatchesMixtureMean(t *testing.T) {
	d, err := NewDirichletFromAlphas([]float64{2, 1})
	require.NoError(t, err)

	updated, err := d.MomentMatchingUpdate([]float64{0.8, 0.2})
	require.NoError(t, err)

	// 0.8*mean([3,1]) + 0.2*mean([2,2])
	want := []float64{0.8*0.75 + 0.2*0.5, 0.8*0.25 + 0.2*0.5}
	assert.InDeltaSlice(t, want, updated.Mean(), 1e-6)

	for _, e := range updated.Evidence() {
		assert.GreaterOrEqual(t, e, 0.0)
	}
	// the receiver is left untouched
	assert.InDeltaSlice(t, []float64{2, 1}, d.Alphas(), tol)
}

func TestMomentMatchingUpdate_MatchesMixtureVariance(t *testing.T) {
	d, err := NewDirichletFromAlphas([]float64{4, 2})
	require.NoError(t, err)
	weights := []float64{0.7, 0.3}

	updated, err := d.MomentMatchingUpdate(weights)
	require.NoError(t, err)

	alphas, s := []float64{4, 2}, 6.0
	for i, a := range alphas {
		p := weights[i]
		m := (a + p) / (s + 1)
		e2 := (a + 1) * (a + 2*p) / ((s + 1) * (s + 2))
		assert.InDelta(t, m, updated.Mean()[i], 1e-9)
		assert.InDelta(t, e2-m*m, updated.Variances()[i], 1e-9)
	}
	assert.InDelta(t, 6.0423, updated.Strength(), 1e-3)
}

func TestMomentMatchingUpdate_HardObservation(t *testing.T) {
	d, err := NewDirichletFromAlphas([]float64{2, 3})
	require.NoError(t, err)

	updated, err := d.MomentMatchingUpdate([]float64{1, 0})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{3.0 / 6, 3.0 / 6}, updated.Mean(), 1e-9)
}

func TestMomentMatchingUpdate_InvalidWeights(t *testing.T) {
	d, err := NewDirichlet[float64](2)
	require.NoError(t, err)

	_, err = d.MomentMatchingUpdate([]float64{0.5, 0.6})
	assert.ErrorIs(t, err, ErrInvalidWeights)

	_, err = d.MomentMatchingUpdate([]float64{1.5, -0.5})
	assert.ErrorIs(t, err, ErrInvalidWeights)

	_, err = d.MomentMatchingUpdate([]float64{1})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	require.Error(t, d.MomentMatchingUpdateInPlace([]float64{0.2, 0.2}))
	assert.InDeltaSlice(t, []float64{0, 0}, d.Evidence(), tol)
}

func TestDirichlet_MeanConvergesToGeneratingDistribution(t *testing.T) {
	truth := []float64{0.2, 0.5, 0.3}
	rng := rand.New(rand.NewPCG(7, 11))

	d, err := NewDirichlet[float64](len(truth))
	require.NoError(t, err)

	draw := func() int {
		x := rng.Float64()
		for i, p := range truth {
			if x < p {
				return i
			}
			x -= p
		}
		return len(truth) - 1
	}

	for i := 0; i < 20000; i++ {
		inc := make([]float64, len(truth))
		inc[draw()] = 1
		require.NoError(t, d.AddEvidence(inc))
	}

	assert.InDeltaSlice(t, truth, d.Mean(), 0.02)
	assert.Less(t, d.AsOpinion().Uncertainty(), 0.001)
}

func TestMomentMatchingUpdate_SoftObservationsConverge(t *testing.T) {
	truth := []float64{0.7, 0.3}
	d, err := NewDirichlet[float64](2)
	require.NoError(t, err)

	for i := 0; i < 2000; i++ {
		require.NoError(t, d.MomentMatchingUpdateInPlace(truth))
	}
	assert.InDeltaSlice(t, truth, d.Mean(), 0.01)
}

func TestDirichlet_Evaluate(t *testing.T) {
	uniform, err := NewDirichlet[float64](2)
	require.NoError(t, err)

	p, err := uniform.Evaluate(0.3)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, p, 1e-9)

	d, err := NewDirichletFromAlphas([]float64{3, 2})
	require.NoError(t, err)
	// Beta(3,2) density is 12 x^2 (1-x)
	p, err = d.Evaluate(0.5)
	require.NoError(t, err)
	assert.InDelta(t, 12*0.25*0.5, p, 1e-9)

	_, err = d.Evaluate(1.5)
	assert.Error(t, err)

	tri, err := NewDirichlet[float64](3)
	require.NoError(t, err)
	_, err = tri.Evaluate(0.5)
	assert.ErrorIs(t, err, ErrNotBinomial)
}

func TestDirichlet_EvaluateAt(t *testing.T) {
	d, err := NewDirichletFromAlphas([]float64{3, 2})
	require.NoError(t, err)

	p, err := d.EvaluateAt([]float64{0.5, 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 12*0.25*0.5, p, 1e-9)

	// flat Dirichlet over three hypotheses has density Gamma(3) = 2
	flat, err := NewDirichlet[float64](3)
	require.NoError(t, err)
	p, err = flat.EvaluateAt([]float64{0.2, 0.3, 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, p, 1e-9)

	_, err = flat.EvaluateAt([]float64{0.2, 0.3, 0.6})
	assert.Error(t, err)
	_, err = flat.EvaluateAt([]float64{0.5, 0.5})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
