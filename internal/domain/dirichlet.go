package domain

import (
	"fmt"

	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"
)

// Dirichlet is the evidence-counting view of an opinion: alphas are
// baseRate*W + evidence, with W the non-informative prior weight.
type Dirichlet[F Float] struct {
	evidence []F
	baseRate []F
	w        F
}

// NewDirichlet returns an empty distribution over n hypotheses with a
// uniform base rate and prior weight n.
func NewDirichlet[F Float](n int) (*Dirichlet[F], error) {
	if n < 2 {
		return nil, ErrInvalidDimension
	}
	return &Dirichlet[F]{evidence: make([]F, n), baseRate: uniform[F](n), w: F(n)}, nil
}

// NewDirichletFromEvidence uses a uniform base rate and prior weight n.
func NewDirichletFromEvidence[F Float](evidence []F) (*Dirichlet[F], error) {
	return NewDirichletWithPrior(evidence, uniform[F](len(evidence)), F(len(evidence)))
}

func NewDirichletWithPrior[F Float](evidence, baseRate []F, w F) (*Dirichlet[F], error) {
	n := len(evidence)
	if n < 2 {
		return nil, ErrInvalidDimension
	}
	if len(baseRate) != n {
		return nil, ErrDimensionMismatch
	}
	if !(w > 0) || !isFinite(w) {
		return nil, ErrInvalidPrior
	}
	eps := Epsilon[F]()
	for i, e := range evidence {
		if !isFinite(e) {
			return nil, ErrNonFinite
		}
		if e < -eps {
			return nil, fmt.Errorf("evidence[%d] = %v: %w", i, e, ErrInvalidEvidence)
		}
		if baseRate[i] < -eps {
			return nil, ErrInvalidBaseRate
		}
	}
	if abs(sum(baseRate)-1) > eps*F(n) {
		return nil, ErrInvalidBaseRate
	}

	e := make([]F, n)
	for i, x := range evidence {
		if x > 0 {
			e[i] = x
		}
	}
	return &Dirichlet[F]{evidence: e, baseRate: normalizeDistribution(baseRate), w: w}, nil
}

// NewDirichletFromAlphas derives evidence from alphas under a uniform base
// rate and prior weight n. Every alpha must be at least 1.
func NewDirichletFromAlphas[F Float](alphas []F) (*Dirichlet[F], error) {
	n := len(alphas)
	if n < 2 {
		return nil, ErrInvalidDimension
	}
	e := make([]F, n)
	for i, a := range alphas {
		e[i] = a - 1
	}
	return NewDirichletFromEvidence(e)
}

func (d *Dirichlet[F]) Dimension() int {
	return len(d.evidence)
}

func (d *Dirichlet[F]) Evidence() []F {
	return clone(d.evidence)
}

func (d *Dirichlet[F]) BaseRate() []F {
	return clone(d.baseRate)
}

func (d *Dirichlet[F]) PriorWeight() F {
	return d.w
}

func (d *Dirichlet[F]) Alphas() []F {
	a := make([]F, len(d.evidence))
	for i := range a {
		a[i] = d.baseRate[i]*d.w + d.evidence[i]
	}
	return a
}

// Strength is the sum of the alphas.
func (d *Dirichlet[F]) Strength() F {
	return sum(d.evidence) + d.w
}

func (d *Dirichlet[F]) Mean() []F {
	a := d.Alphas()
	s := d.Strength()
	for i := range a {
		a[i] /= s
	}
	return a
}

func (d *Dirichlet[F]) Variances() []F {
	m := d.Mean()
	s := d.Strength()
	v := make([]F, len(m))
	for i := range m {
		v[i] = m[i] * (1 - m[i]) / (s + 1)
	}
	return v
}

// AsOpinion returns the opinion with belief e_i/(W+sum(e)) and the
// distribution's base rate.
func (d *Dirichlet[F]) AsOpinion() Opinion[F] {
	s := d.Strength()
	b := make([]F, len(d.evidence))
	for i := range b {
		b[i] = d.evidence[i] / s
	}
	return fromMasses(b, d.baseRate)
}

// AddEvidence adds a non-negative increment to each hypothesis.
func (d *Dirichlet[F]) AddEvidence(increments []F) error {
	if len(increments) != len(d.evidence) {
		return ErrDimensionMismatch
	}
	for i, x := range increments {
		if !isFinite(x) {
			return ErrNonFinite
		}
		if x < 0 {
			return fmt.Errorf("increment[%d] = %v: %w", i, x, ErrInvalidEvidence)
		}
	}
	for i, x := range increments {
		d.evidence[i] += x
	}
	return nil
}

// Decay scales all evidence by factor in [0, 1].
func (d *Dirichlet[F]) Decay(factor F) error {
	if !(factor >= 0 && factor <= 1) {
		return fmt.Errorf("decay factor %v outside [0, 1]", factor)
	}
	for i := range d.evidence {
		d.evidence[i] *= factor
	}
	return nil
}

func (d *Dirichlet[F]) Clone() *Dirichlet[F] {
	return &Dirichlet[F]{evidence: clone(d.evidence), baseRate: clone(d.baseRate), w: d.w}
}

// MomentMatchingUpdate folds one soft observation into the distribution.
// The posterior is the mixture over hypotheses j of the distribution with
// one unit of evidence added to j, weighted by weights[j]. The result
// matches the mixture mean exactly; its precision is the moment-matching
// estimate, raised when needed so that no evidence goes negative.
func (d *Dirichlet[F]) MomentMatchingUpdate(weights []F) (*Dirichlet[F], error) {
	n := len(d.evidence)
	if len(weights) != n {
		return nil, ErrDimensionMismatch
	}
	eps := Epsilon[F]()
	for _, p := range weights {
		if !isFinite(p) || p < 0 {
			return nil, ErrInvalidWeights
		}
	}
	if abs(sum(weights)-1) > eps*F(n)+eps {
		return nil, ErrInvalidWeights
	}

	alphas := d.Alphas()
	s := d.Strength()

	mean := make([]F, n)
	var nom, den F
	for i, a := range alphas {
		p := weights[i]
		m := (a + p) / (1 + s)
		e2 := (1 + a) * (a + 2*p) / ((1 + s) * (2 + s))
		tmp := m * (1 - m)
		nom += (m - e2) * tmp
		den += (e2 - m*m) * tmp
		mean[i] = m
	}

	precision := s + 1
	if den > eps {
		precision = nom / den
	}
	for i, m := range mean {
		if m < eps {
			continue
		}
		if lower := d.w * d.baseRate[i] / m; precision < lower {
			precision = lower
		}
	}

	evidence := make([]F, n)
	for i, m := range mean {
		evidence[i] = m*precision - d.w*d.baseRate[i]
		if evidence[i] < 0 {
			evidence[i] = 0
		}
	}
	return &Dirichlet[F]{evidence: evidence, baseRate: clone(d.baseRate), w: d.w}, nil
}

func (d *Dirichlet[F]) MomentMatchingUpdateInPlace(weights []F) error {
	updated, err := d.MomentMatchingUpdate(weights)
	if err != nil {
		return err
	}
	*d = *updated
	return nil
}

// Evaluate returns the Beta density of the first hypothesis at x for a
// binomial distribution.
func (d *Dirichlet[F]) Evaluate(x F) (F, error) {
	if d.Dimension() != 2 {
		return 0, ErrNotBinomial
	}
	if x < 0 || x > 1 {
		return 0, fmt.Errorf("x = %v outside [0, 1]", x)
	}
	a := d.Alphas()
	beta := distuv.Beta{Alpha: float64(a[0]), Beta: float64(a[1])}
	return F(beta.Prob(float64(x))), nil
}

// EvaluateAt returns the Dirichlet density at a point of the simplex.
func (d *Dirichlet[F]) EvaluateAt(point []F) (F, error) {
	if len(point) != d.Dimension() {
		return 0, ErrDimensionMismatch
	}
	alphas := make([]float64, d.Dimension())
	for i, a := range d.Alphas() {
		alphas[i] = float64(a)
	}
	x := make([]float64, len(point))
	for i, p := range point {
		if p < 0 || p > 1 {
			return 0, fmt.Errorf("point[%d] = %v outside [0, 1]", i, p)
		}
		x[i] = float64(p)
	}
	if abs(sum(point)-1) > Epsilon[F]()*F(len(point)) {
		return 0, fmt.Errorf("point does not lie on the simplex")
	}
	dist := distmv.NewDirichlet(alphas, nil)
	return F(dist.Prob(x)), nil
}
