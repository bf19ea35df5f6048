package domain

import "fmt"

func (o Opinion[F]) sameDimension(other Opinion[F]) error {
	if o.Dimension() != other.Dimension() {
		return fmt.Errorf("%d vs %d: %w", o.Dimension(), other.Dimension(), ErrDimensionMismatch)
	}
	return nil
}

func (o Opinion[F]) requireBinomial() error {
	if o.Dimension() != 2 {
		return fmt.Errorf("dimension %d: %w", o.Dimension(), ErrNotBinomial)
	}
	return nil
}

// TrustDiscount scales every belief mass by factor, moving the removed mass
// to uncertainty. Factors outside [0, 1] are accepted and the result is
// clamped back into a valid opinion.
func (o Opinion[F]) TrustDiscount(factor F) Opinion[F] {
	b := make([]F, len(o.belief))
	for i := range o.belief {
		b[i] = o.belief[i] * factor
	}
	return fromMasses(b, o.baseRate)
}

func (o *Opinion[F]) TrustDiscountInPlace(factor F) {
	*o = o.TrustDiscount(factor)
}

// DiscountBy discounts o by the projected probability of a binomial trust
// opinion.
func (o Opinion[F]) DiscountBy(trust Opinion[F]) (Opinion[F], error) {
	if err := trust.requireBinomial(); err != nil {
		return Opinion[F]{}, err
	}
	return o.TrustDiscount(trust.BinomialProjection()), nil
}

// LimitedTrustDiscount discounts like TrustDiscount but never lets the
// resulting uncertainty exceed limit. If o is already more uncertain than
// limit, o is returned unchanged.
func (o Opinion[F]) LimitedTrustDiscount(limit, factor F) Opinion[F] {
	u := o.Uncertainty()
	if 1-u < Epsilon[F]() {
		return o.TrustDiscount(1)
	}
	minFactor := (1 - limit) / (1 - u)
	if factor < minFactor {
		factor = minFactor
	}
	if factor > 1 {
		factor = 1
	}
	return o.TrustDiscount(factor)
}

func (o *Opinion[F]) LimitedTrustDiscountInPlace(limit, factor F) {
	*o = o.LimitedTrustDiscount(limit, factor)
}

// CumFuse applies cumulative belief fusion. Two dogmatic opinions fuse to
// the equal-weight average of their beliefs.
func (o Opinion[F]) CumFuse(other Opinion[F]) (Opinion[F], error) {
	if err := o.sameDimension(other); err != nil {
		return Opinion[F]{}, err
	}

	uA, uB := o.Uncertainty(), other.Uncertainty()
	kappa := uA + uB - uA*uB
	if kappa < Epsilon[F]() {
		return averageOpinion(o, other), nil
	}

	b := make([]F, o.Dimension())
	for i := range b {
		b[i] = (o.belief[i]*uB + other.belief[i]*uA) / kappa
	}
	return fromMasses(b, confidenceWeightedBaseRate(o, other)), nil
}

func (o *Opinion[F]) CumFuseInPlace(other Opinion[F]) error {
	fused, err := o.CumFuse(other)
	if err != nil {
		return err
	}
	*o = fused
	return nil
}

// CumUnfuse removes the contribution of other from o, so that
// a.CumFuse(b) followed by CumUnfuse(b) yields a again. It fails when other
// is dogmatic or when the result would not be a valid opinion.
func (o Opinion[F]) CumUnfuse(other Opinion[F]) (Opinion[F], error) {
	if err := o.sameDimension(other); err != nil {
		return Opinion[F]{}, err
	}

	eps := Epsilon[F]()
	uC, uB := o.Uncertainty(), other.Uncertainty()
	if uB < eps {
		return Opinion[F]{}, fmt.Errorf("unfusing a dogmatic opinion: %w", ErrDegenerateOperation)
	}
	denom := uB - uC + uC*uB
	if denom < eps {
		return Opinion[F]{}, fmt.Errorf("unfuse denominator %v: %w", denom, ErrDegenerateOperation)
	}

	b := make([]F, o.Dimension())
	for i := range b {
		b[i] = (o.belief[i]*uB - other.belief[i]*uC) / denom
		if b[i] < -eps {
			return Opinion[F]{}, fmt.Errorf("unfused belief[%d] = %v: %w", i, b[i], ErrDegenerateOperation)
		}
	}
	if sum(b) > 1+eps {
		return Opinion[F]{}, fmt.Errorf("unfused belief sum %v: %w", sum(b), ErrDegenerateOperation)
	}

	uA := uC * uB / denom
	base := o.BaseRate()
	if uA > eps && uC > eps {
		wA, wB, wC := (1-uA)/uA, (1-uB)/uB, (1-uC)/uC
		if wA > eps {
			for i := range base {
				base[i] = (o.baseRate[i]*wC - other.baseRate[i]*wB) / wA
			}
		}
	}
	return fromMasses(b, base), nil
}

func (o *Opinion[F]) CumUnfuseInPlace(other Opinion[F]) error {
	unfused, err := o.CumUnfuse(other)
	if err != nil {
		return err
	}
	*o = unfused
	return nil
}

// AverageFuse applies averaging belief fusion, suited to dependent sources.
func (o Opinion[F]) AverageFuse(other Opinion[F]) (Opinion[F], error) {
	if err := o.sameDimension(other); err != nil {
		return Opinion[F]{}, err
	}

	uA, uB := o.Uncertainty(), other.Uncertainty()
	denom := uA + uB
	if denom < Epsilon[F]() {
		return averageOpinion(o, other), nil
	}

	b := make([]F, o.Dimension())
	for i := range b {
		b[i] = (o.belief[i]*uB + other.belief[i]*uA) / denom
	}
	return fromMasses(b, averageVector(o.baseRate, other.baseRate)), nil
}

func (o *Opinion[F]) AverageFuseInPlace(other Opinion[F]) error {
	fused, err := o.AverageFuse(other)
	if err != nil {
		return err
	}
	*o = fused
	return nil
}

// WeightedFuse applies confidence-weighted belief fusion: each source is
// weighted by its own certainty 1-u.
func (o Opinion[F]) WeightedFuse(other Opinion[F]) (Opinion[F], error) {
	if err := o.sameDimension(other); err != nil {
		return Opinion[F]{}, err
	}

	eps := Epsilon[F]()
	uA, uB := o.Uncertainty(), other.Uncertainty()
	denom := uA + uB - 2*uA*uB
	if denom < eps {
		if uA > 0.5 {
			// both vacuous
			return fromMasses(make([]F, o.Dimension()), averageVector(o.baseRate, other.baseRate)), nil
		}
		return averageOpinion(o, other), nil
	}

	b := make([]F, o.Dimension())
	for i := range b {
		b[i] = (o.belief[i]*(1-uA)*uB + other.belief[i]*(1-uB)*uA) / denom
	}
	return fromMasses(b, certaintyWeightedBaseRate(o, other)), nil
}

func (o *Opinion[F]) WeightedFuseInPlace(other Opinion[F]) error {
	fused, err := o.WeightedFuse(other)
	if err != nil {
		return err
	}
	*o = fused
	return nil
}

// BeliefConstraintFuse keeps only the mass both opinions agree on and
// renormalises by the non-conflicting mass. Totally conflicting opinions
// cannot be fused.
func (o Opinion[F]) BeliefConstraintFuse(other Opinion[F]) (Opinion[F], error) {
	if err := o.sameDimension(other); err != nil {
		return Opinion[F]{}, err
	}

	uA, uB := o.Uncertainty(), other.Uncertainty()
	var conflict F
	for i := range o.belief {
		for j := range other.belief {
			if i != j {
				conflict += o.belief[i] * other.belief[j]
			}
		}
	}
	norm := 1 - conflict
	if norm < Epsilon[F]() {
		return Opinion[F]{}, fmt.Errorf("total conflict between opinions: %w", ErrDegenerateOperation)
	}

	b := make([]F, o.Dimension())
	for i := range b {
		harmony := o.belief[i]*uB + other.belief[i]*uA + o.belief[i]*other.belief[i]
		b[i] = harmony / norm
	}
	return fromMasses(b, certaintyWeightedBaseRate(o, other)), nil
}

func (o *Opinion[F]) BeliefConstraintFuseInPlace(other Opinion[F]) error {
	fused, err := o.BeliefConstraintFuse(other)
	if err != nil {
		return err
	}
	*o = fused
	return nil
}

// projectionDistance is half the L1 distance between projected probabilities.
func (o Opinion[F]) projectionDistance(other Opinion[F]) F {
	p, q := o.Projection(), other.Projection()
	var d F
	for i := range p {
		d += abs(p[i] - q[i])
	}
	return clamp(d/2, 0, 1)
}

// DegreeOfConflict is the projected distance weighted by the conjunctive
// certainty (1-uA)(1-uB). It is symmetric, lies in [0, 1] and is 0 for
// identical opinions and whenever either opinion is vacuous.
func (o Opinion[F]) DegreeOfConflict(other Opinion[F]) (F, error) {
	if err := o.sameDimension(other); err != nil {
		return 0, err
	}
	cc := (1 - o.Uncertainty()) * (1 - other.Uncertainty())
	return o.projectionDistance(other) * cc, nil
}

// DegreeOfHarmony is (1 - projected distance) weighted by the conjunctive
// certainty.
func (o Opinion[F]) DegreeOfHarmony(other Opinion[F]) (F, error) {
	if err := o.sameDimension(other); err != nil {
		return 0, err
	}
	cc := (1 - o.Uncertainty()) * (1 - other.Uncertainty())
	return (1 - o.projectionDistance(other)) * cc, nil
}

// BeliefDistance is half the L1 distance between the mass vectors
// [belief..., uncertainty] of both opinions. Unlike the projected distance
// it separates a confident opinion from an uncertain one with the same
// projection.
func (o Opinion[F]) BeliefDistance(other Opinion[F]) (F, error) {
	if err := o.sameDimension(other); err != nil {
		return 0, err
	}
	d := abs(o.Uncertainty() - other.Uncertainty())
	for i := range o.belief {
		d += abs(o.belief[i] - other.belief[i])
	}
	return clamp(d/2, 0, 1), nil
}

// Interpolate returns (1-t)*o + t*other over belief and base rate. t may lie
// outside [0, 1]; the result is clamped into a valid opinion.
func (o Opinion[F]) Interpolate(other Opinion[F], t F) (Opinion[F], error) {
	if err := o.sameDimension(other); err != nil {
		return Opinion[F]{}, err
	}
	b := make([]F, o.Dimension())
	a := make([]F, o.Dimension())
	for i := range b {
		b[i] = (1-t)*o.belief[i] + t*other.belief[i]
		a[i] = (1-t)*o.baseRate[i] + t*other.baseRate[i]
	}
	return fromMasses(b, a), nil
}

func (o *Opinion[F]) InterpolateInPlace(other Opinion[F], t F) error {
	res, err := o.Interpolate(other, t)
	if err != nil {
		return err
	}
	*o = res
	return nil
}

// ReviseTrust shifts a binomial trust opinion. A positive factor moves mass
// toward distrust (index 1), a negative one toward trust (index 0). The
// factor is clamped to [-1, 1]; uncertainty only ever shrinks.
func (o Opinion[F]) ReviseTrust(factor F) (Opinion[F], error) {
	if err := o.requireBinomial(); err != nil {
		return Opinion[F]{}, err
	}
	if !isFinite(factor) {
		return Opinion[F]{}, ErrNonFinite
	}

	f := clamp(factor, -1, 1)
	b, d := o.belief[0], o.belief[1]
	if f > 0 {
		b *= 1 - f
		d += (1 - d) * f
	} else if f < 0 {
		f = -f
		b += (1 - b) * f
		d *= 1 - f
	}
	return fromMasses([]F{b, d}, o.baseRate), nil
}

func (o *Opinion[F]) ReviseTrustInPlace(factor F) error {
	res, err := o.ReviseTrust(factor)
	if err != nil {
		return err
	}
	*o = res
	return nil
}

// UncertaintyDifferential is o's share of the combined uncertainty of o and
// other. Two dogmatic opinions share it equally.
func (o Opinion[F]) UncertaintyDifferential(other Opinion[F]) F {
	u := o.Uncertainty()
	denom := u + other.Uncertainty()
	if denom < Epsilon[F]() {
		return 0.5
	}
	return u / denom
}

// Complement swaps belief and disbelief of a binomial opinion.
func (o Opinion[F]) Complement() (Opinion[F], error) {
	if err := o.requireBinomial(); err != nil {
		return Opinion[F]{}, err
	}
	return Opinion[F]{
		belief:   []F{o.belief[1], o.belief[0]},
		baseRate: []F{o.baseRate[1], o.baseRate[0]},
	}, nil
}

// Dissonance measures how evenly belief is spread across competing
// hypotheses; it is 0 when all belief sits on one hypothesis.
func (o Opinion[F]) Dissonance() F {
	eps := Epsilon[F]()
	balance := func(x, y F) F {
		if x+y < eps {
			return 0
		}
		return 1 - abs(x-y)
	}

	total := sum(o.belief)
	var dissonance F
	for i, bi := range o.belief {
		denom := total - bi
		if denom < eps {
			continue
		}
		var balanced F
		for j, bj := range o.belief {
			if i != j {
				balanced += bj * balance(bi, bj)
			}
		}
		dissonance += bi * balanced / denom
	}
	return dissonance
}

// Evidence maps the opinion to Dirichlet evidence W*b/u with
// non-informative prior weight w.
func (o Opinion[F]) Evidence(w F) ([]F, error) {
	if w <= 0 {
		return nil, ErrInvalidPrior
	}
	u := o.Uncertainty()
	if u < Epsilon[F]() {
		return nil, fmt.Errorf("dogmatic opinion has infinite evidence: %w", ErrDegenerateOperation)
	}
	e := make([]F, o.Dimension())
	for i := range e {
		e[i] = w * o.belief[i] / u
	}
	return e, nil
}

// AsDirichlet returns the Dirichlet distribution equivalent to o under prior
// weight w.
func (o Opinion[F]) AsDirichlet(w F) (*Dirichlet[F], error) {
	e, err := o.Evidence(w)
	if err != nil {
		return nil, err
	}
	return NewDirichletWithPrior(e, o.baseRate, w)
}

func averageOpinion[F Float](a, b Opinion[F]) Opinion[F] {
	return fromMasses(averageVector(a.belief, b.belief), averageVector(a.baseRate, b.baseRate))
}

func averageVector[F Float](a, b []F) []F {
	out := make([]F, len(a))
	for i := range a {
		out[i] = (a[i] + b[i]) / 2
	}
	return out
}

// confidenceWeightedBaseRate weights each base rate by (1-u)/u, the weight
// under which cumulative fusion of base rates stays associative.
func confidenceWeightedBaseRate[F Float](a, b Opinion[F]) []F {
	uA, uB := a.Uncertainty(), b.Uncertainty()
	denom := uA + uB - 2*uA*uB
	if denom < Epsilon[F]() {
		return averageVector(a.baseRate, b.baseRate)
	}
	out := make([]F, a.Dimension())
	for i := range out {
		out[i] = (a.baseRate[i]*(1-uA)*uB + b.baseRate[i]*(1-uB)*uA) / denom
	}
	return out
}

func certaintyWeightedBaseRate[F Float](a, b Opinion[F]) []F {
	uA, uB := a.Uncertainty(), b.Uncertainty()
	denom := 2 - uA - uB
	if denom < Epsilon[F]() {
		return averageVector(a.baseRate, b.baseRate)
	}
	out := make([]F, a.Dimension())
	for i := range out {
		out[i] = (a.baseRate[i]*(1-uA) + b.baseRate[i]*(1-uB)) / denom
	}
	return out
}
