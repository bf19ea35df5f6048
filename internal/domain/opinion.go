package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Opinion is a subjective-logic opinion over a frame of n mutually
// exclusive hypotheses. The uncertainty mass is derived as 1 - sum(belief),
// so belief + uncertainty = 1 holds by construction.
//
// Opinions are values: accessors return copies and operations return new
// opinions. The zero value is not a valid opinion; use one of the
// constructors.
type Opinion[F Float] struct {
	belief   []F
	baseRate []F
}

// NewOpinion validates belief and base rate and returns the opinion they
// describe. Drift smaller than Epsilon is clamped; anything larger is an
// error.
func NewOpinion[F Float](belief, baseRate []F) (Opinion[F], error) {
	n := len(belief)
	if n < 2 {
		return Opinion[F]{}, ErrInvalidDimension
	}
	if len(baseRate) != n {
		return Opinion[F]{}, fmt.Errorf("base rate has %d entries, belief has %d: %w", len(baseRate), n, ErrDimensionMismatch)
	}

	eps := Epsilon[F]()
	for i, b := range belief {
		if !isFinite(b) || !isFinite(baseRate[i]) {
			return Opinion[F]{}, ErrNonFinite
		}
		if b < -eps {
			return Opinion[F]{}, fmt.Errorf("belief[%d] = %v: %w", i, b, ErrNegativeMass)
		}
		if baseRate[i] < -eps {
			return Opinion[F]{}, fmt.Errorf("base_rate[%d] = %v: %w", i, baseRate[i], ErrInvalidBaseRate)
		}
	}
	if s := sum(belief); s > 1+eps {
		return Opinion[F]{}, fmt.Errorf("belief sum %v: %w", s, ErrBeliefSumExceeded)
	}
	if s := sum(baseRate); abs(s-1) > eps*F(n) {
		return Opinion[F]{}, fmt.Errorf("base rate sum %v: %w", s, ErrInvalidBaseRate)
	}

	return fromMasses(belief, baseRate), nil
}

// NewOpinionNoBase returns an opinion with a uniform base rate.
func NewOpinionNoBase[F Float](belief ...F) (Opinion[F], error) {
	return NewOpinion(belief, uniform[F](len(belief)))
}

// NewBinomial returns the binomial opinion (belief, disbelief) with base rate 0.5.
func NewBinomial[F Float](belief, disbelief F) (Opinion[F], error) {
	return NewOpinion([]F{belief, disbelief}, []F{0.5, 0.5})
}

// NewBinomialWithBase returns the binomial opinion (belief, disbelief) whose
// base rate for the first hypothesis is a.
func NewBinomialWithBase[F Float](belief, disbelief, a F) (Opinion[F], error) {
	return NewOpinion([]F{belief, disbelief}, []F{a, 1 - a})
}

// VacuousOpinion returns the opinion with all mass on uncertainty and a
// uniform base rate.
func VacuousOpinion[F Float](n int) (Opinion[F], error) {
	if n < 2 {
		return Opinion[F]{}, ErrInvalidDimension
	}
	return Opinion[F]{belief: make([]F, n), baseRate: uniform[F](n)}, nil
}

// DogmaticTrust is full trust: belief 1, disbelief 0.
func DogmaticTrust[F Float]() Opinion[F] {
	return Opinion[F]{belief: []F{1, 0}, baseRate: []F{0.5, 0.5}}
}

// VacuousTrust carries no evidence about a source.
func VacuousTrust[F Float]() Opinion[F] {
	return Opinion[F]{belief: []F{0, 0}, baseRate: []F{0.5, 0.5}}
}

// fromMasses builds an opinion from values produced by an operation,
// clamping numeric drift instead of rejecting it.
func fromMasses[F Float](belief, baseRate []F) Opinion[F] {
	return Opinion[F]{
		belief:   clampMasses(belief),
		baseRate: normalizeDistribution(baseRate),
	}
}

func (o Opinion[F]) Dimension() int {
	return len(o.belief)
}

func (o Opinion[F]) Belief() []F {
	return clone(o.belief)
}

func (o Opinion[F]) BeliefAt(i int) F {
	return o.belief[i]
}

func (o Opinion[F]) BaseRate() []F {
	return clone(o.baseRate)
}

// Uncertainty is 1 - sum(belief), never negative.
func (o Opinion[F]) Uncertainty() F {
	u := 1 - sum(o.belief)
	if u < 0 {
		return 0
	}
	return u
}

// IsDogmatic reports whether the opinion carries no uncertainty.
func (o Opinion[F]) IsDogmatic() bool {
	return o.Uncertainty() < Epsilon[F]()
}

// IsVacuous reports whether the opinion carries no belief.
func (o Opinion[F]) IsVacuous() bool {
	return sum(o.belief) < Epsilon[F]()
}

// Validate checks the opinion invariants. It fails for the zero value.
func (o Opinion[F]) Validate() error {
	_, err := NewOpinion(o.belief, o.baseRate)
	return err
}

// Projection returns the projected probability b_i + a_i*u.
func (o Opinion[F]) Projection() []F {
	return project(o.belief, o.baseRate, o.Uncertainty())
}

// ProjectionWith projects using prior instead of the opinion's own base rate.
func (o Opinion[F]) ProjectionWith(prior []F) ([]F, error) {
	if len(prior) != o.Dimension() {
		return nil, ErrDimensionMismatch
	}
	return project(o.belief, prior, o.Uncertainty()), nil
}

// BinomialProjection is the projected probability of the first hypothesis.
// For a trust opinion this is the discount factor it implies.
func (o Opinion[F]) BinomialProjection() F {
	return o.belief[0] + o.baseRate[0]*o.Uncertainty()
}

func project[F Float](belief, prior []F, u F) []F {
	p := make([]F, len(belief))
	for i := range belief {
		p[i] = belief[i] + prior[i]*u
	}
	return p
}

// Equal reports whether both opinions have the same dimension and their
// belief and base rate differ by at most tol component-wise.
func (o Opinion[F]) Equal(other Opinion[F], tol F) bool {
	if o.Dimension() != other.Dimension() {
		return false
	}
	for i := range o.belief {
		if abs(o.belief[i]-other.belief[i]) > tol || abs(o.baseRate[i]-other.baseRate[i]) > tol {
			return false
		}
	}
	return true
}

func (o Opinion[F]) String() string {
	var sb strings.Builder
	sb.WriteString("Opinion(b=[")
	for i, b := range o.belief {
		if i > 0 {
			sb.WriteString(" ")
		}
		fmt.Fprintf(&sb, "%.4g", float64(b))
	}
	fmt.Fprintf(&sb, "] u=%.4g a=[", float64(o.Uncertainty()))
	for i, a := range o.baseRate {
		if i > 0 {
			sb.WriteString(" ")
		}
		fmt.Fprintf(&sb, "%.4g", float64(a))
	}
	sb.WriteString("])")
	return sb.String()
}

type opinionJSON[F Float] struct {
	Belief      []F `json:"belief"`
	Uncertainty F   `json:"uncertainty"`
	BaseRate    []F `json:"base_rate"`
}

func (o Opinion[F]) MarshalJSON() ([]byte, error) {
	return json.Marshal(opinionJSON[F]{
		Belief:      o.belief,
		Uncertainty: o.Uncertainty(),
		BaseRate:    o.baseRate,
	})
}

// UnmarshalJSON accepts {"belief": [...], "base_rate": [...]}. The base
// rate is optional and defaults to uniform; uncertainty is ignored on input.
func (o *Opinion[F]) UnmarshalJSON(data []byte) error {
	var raw opinionJSON[F]
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	base := raw.BaseRate
	if len(base) == 0 {
		base = uniform[F](len(raw.Belief))
	}
	parsed, err := NewOpinion(raw.Belief, base)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}
