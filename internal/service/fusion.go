package service

import (
	"errors"
	"fmt"

	"github.com/Harshitk-cp/trustfuse/internal/domain"
)

var (
	ErrNoOpinions            = errors.New("at least one opinion is required")
	ErrUnsupportedFusionType = errors.New("unsupported fusion type")
)

// FuseOpinions combines independent opinions over the same frame.
//
// Cumulative, average and weighted fusion use their n-source closed forms.
// For two sources these reduce to the pairwise operators. Cumulative fusion
// agrees with a left-to-right fold of CumFuse whenever at most two sources
// are dogmatic. When any source is dogmatic the result is the equal-weight
// average of the dogmatic sources, independent of their order, whereas a
// fold would halve the weight of all but the last. Belief-constraint fusion
// is folded pairwise. A single opinion is returned unchanged.
func FuseOpinions[F domain.Float](fusionType domain.FusionType, opinions []domain.Opinion[F]) (domain.Opinion[F], error) {
	if len(opinions) == 0 {
		return domain.Opinion[F]{}, ErrNoOpinions
	}
	if !domain.ValidFusionType(string(fusionType)) {
		return domain.Opinion[F]{}, fmt.Errorf("%q: %w", fusionType, ErrUnsupportedFusionType)
	}
	n := opinions[0].Dimension()
	for _, op := range opinions[1:] {
		if op.Dimension() != n {
			return domain.Opinion[F]{}, domain.ErrDimensionMismatch
		}
	}
	if len(opinions) == 1 {
		return opinions[0], nil
	}

	if fusionType == domain.FusionBeliefConstraint {
		fused := opinions[0]
		for _, op := range opinions[1:] {
			var err error
			if fused, err = fused.BeliefConstraintFuse(op); err != nil {
				return domain.Opinion[F]{}, err
			}
		}
		return fused, nil
	}

	if dogmatic := dogmaticOpinions(opinions); len(dogmatic) > 0 {
		return meanOpinion(dogmatic)
	}

	switch fusionType {
	case domain.FusionAverage:
		return averageFuse(opinions)
	case domain.FusionWeighted:
		return weightedFuse(opinions)
	default:
		return cumulativeFuse(opinions)
	}
}

func dogmaticOpinions[F domain.Float](opinions []domain.Opinion[F]) []domain.Opinion[F] {
	var out []domain.Opinion[F]
	for _, op := range opinions {
		if op.IsDogmatic() {
			out = append(out, op)
		}
	}
	return out
}

func meanOpinion[F domain.Float](opinions []domain.Opinion[F]) (domain.Opinion[F], error) {
	n := opinions[0].Dimension()
	belief := make([]F, n)
	base := make([]F, n)
	for _, op := range opinions {
		for i := 0; i < n; i++ {
			belief[i] += op.BeliefAt(i)
			base[i] += op.BaseRate()[i]
		}
	}
	k := F(len(opinions))
	for i := range belief {
		belief[i] /= k
		base[i] /= k
	}
	return buildOpinion(belief, base)
}

// othersProducts returns, for every source, the product of the other
// sources' uncertainties, together with the product over all sources.
// Every value is divided by the largest of the per-source products, which
// leaves the ratios the closed forms need intact while keeping the values
// in [u_min, 1]: the product without source i becomes u_min/u_i and the
// product over all sources becomes u_min. Sources must not be dogmatic.
func othersProducts[F domain.Float](opinions []domain.Opinion[F]) ([]F, F) {
	minU := opinions[0].Uncertainty()
	for _, op := range opinions[1:] {
		if u := op.Uncertainty(); u < minU {
			minU = u
		}
	}
	products := make([]F, len(opinions))
	for i, op := range opinions {
		products[i] = minU / op.Uncertainty()
	}
	return products, minU
}

func cumulativeFuse[F domain.Float](opinions []domain.Opinion[F]) (domain.Opinion[F], error) {
	n := opinions[0].Dimension()
	products, all := othersProducts(opinions)

	// sum_i prod_{j!=i} u_j - (N-1) prod_j u_j, without the subtraction
	denom := all
	for k, op := range opinions {
		denom += products[k] * (1 - op.Uncertainty())
	}

	belief := make([]F, n)
	base := make([]F, n)
	var baseWeight F
	for k, op := range opinions {
		w := (1 - op.Uncertainty()) * products[k]
		baseWeight += w
		a := op.BaseRate()
		for i := 0; i < n; i++ {
			belief[i] += op.BeliefAt(i) * products[k]
			base[i] += a[i] * w
		}
	}
	for i := range belief {
		belief[i] /= denom
	}
	return buildOpinion(belief, weightedOrMeanBaseRate(opinions, base, baseWeight))
}

func averageFuse[F domain.Float](opinions []domain.Opinion[F]) (domain.Opinion[F], error) {
	n := opinions[0].Dimension()
	products, _ := othersProducts(opinions)

	var denom F
	for _, p := range products {
		denom += p
	}

	belief := make([]F, n)
	for k, op := range opinions {
		for i := 0; i < n; i++ {
			belief[i] += op.BeliefAt(i) * products[k]
		}
	}
	for i := range belief {
		belief[i] /= denom
	}
	return buildOpinion(belief, weightedOrMeanBaseRate(opinions, make([]F, n), 0))
}

func weightedFuse[F domain.Float](opinions []domain.Opinion[F]) (domain.Opinion[F], error) {
	n := opinions[0].Dimension()
	products, _ := othersProducts(opinions)

	// sum_i prod_{j!=i} u_j - N prod_j u_j, without the subtraction
	var denom F
	for k, op := range opinions {
		denom += products[k] * (1 - op.Uncertainty())
	}

	belief := make([]F, n)
	base := make([]F, n)
	var baseWeight F
	for k, op := range opinions {
		certainty := 1 - op.Uncertainty()
		baseWeight += certainty
		a := op.BaseRate()
		for i := 0; i < n; i++ {
			belief[i] += op.BeliefAt(i) * certainty * products[k]
			base[i] += a[i] * certainty
		}
	}
	if denom < domain.Epsilon[F]() {
		// every source is vacuous
		belief = make([]F, n)
	} else {
		for i := range belief {
			belief[i] /= denom
		}
	}
	return buildOpinion(belief, weightedOrMeanBaseRate(opinions, base, baseWeight))
}

func weightedOrMeanBaseRate[F domain.Float](opinions []domain.Opinion[F], weighted []F, weight F) []F {
	if weight > domain.Epsilon[F]() {
		out := make([]F, len(weighted))
		for i := range weighted {
			out[i] = weighted[i] / weight
		}
		return out
	}
	out := make([]F, len(weighted))
	for _, op := range opinions {
		for i, a := range op.BaseRate() {
			out[i] += a / F(len(opinions))
		}
	}
	return out
}

// buildOpinion turns computed masses into an opinion, absorbing rounding
// drift the closed forms can produce.
func buildOpinion[F domain.Float](belief, base []F) (domain.Opinion[F], error) {
	eps := domain.Epsilon[F]()
	var total F
	for i, b := range belief {
		if b < 0 && b > -eps {
			belief[i] = 0
		}
		total += belief[i]
	}
	if total > 1 && total < 1+eps*F(len(belief)) {
		for i := range belief {
			belief[i] /= total
		}
	}
	var baseTotal F
	for _, a := range base {
		baseTotal += a
	}
	if baseTotal > 0 {
		for i := range base {
			base[i] /= baseTotal
		}
	}
	return domain.NewOpinion(belief, base)
}
