package service

import (
	"errors"
	"fmt"

	"github.com/Harshitk-cp/trustfuse/internal/domain"
)

var ErrUnsupportedConflictType = errors.New("unsupported conflict type")

// relation is the pairwise measure being aggregated: disagreement or
// agreement between two opinions.
type relation int

const (
	relationConflict relation = iota
	relationHarmony
)

func (r relation) String() string {
	if r == relationHarmony {
		return "harmony"
	}
	return "conflict"
}

// pairValue compares two opinions. Projected conflict types use the degree
// of conflict/harmony; belief conflict types use the distance between mass
// vectors, with harmony weighted by the conjunctive certainty.
func pairValue[F domain.Float](rel relation, ct domain.ConflictType, a, b domain.Opinion[F]) (F, error) {
	if !ct.OnBeliefMasses() {
		if rel == relationHarmony {
			return a.DegreeOfHarmony(b)
		}
		return a.DegreeOfConflict(b)
	}

	d, err := a.BeliefDistance(b)
	if err != nil {
		return 0, err
	}
	if rel == relationHarmony {
		return (1 - d) * (1 - a.Uncertainty()) * (1 - b.Uncertainty()), nil
	}
	return d, nil
}

// aggregate sums (or averages, depending on ct) a relation over all
// unordered pairs. Fewer than two opinions aggregate to 0.
func aggregate[F domain.Float](rel relation, ct domain.ConflictType, opinions []domain.Opinion[F]) (F, error) {
	if !domain.ValidConflictType(string(ct)) {
		return 0, fmt.Errorf("%q: %w", ct, ErrUnsupportedConflictType)
	}
	n := len(opinions)
	if n < 2 {
		return 0, nil
	}

	var total F
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v, err := pairValue(rel, ct, opinions[i], opinions[j])
			if err != nil {
				return 0, err
			}
			total += v
		}
	}
	if ct.Accumulates() {
		return total, nil
	}
	return total / F(n*(n-1)/2), nil
}

// sourceValues returns, per source, the relation between that source and
// every other source: summed for accumulating conflict types, averaged
// otherwise.
func sourceValues[F domain.Float](rel relation, ct domain.ConflictType, opinions []domain.Opinion[F]) ([]F, error) {
	n := len(opinions)
	values := make([]F, n)
	if n < 2 {
		return values, nil
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v, err := pairValue(rel, ct, opinions[i], opinions[j])
			if err != nil {
				return nil, err
			}
			values[i] += v
			values[j] += v
		}
	}
	if !ct.Accumulates() {
		for i := range values {
			values[i] /= F(n - 1)
		}
	}
	return values, nil
}

// Conflict measures the disagreement within a set of opinions. It is 0
// when all opinions coincide and when fewer than two are given. Projected
// conflict weights the projection distance by the pair's joint certainty,
// so a vacuous opinion conflicts with nothing even when its projection
// differs.
func Conflict[F domain.Float](ct domain.ConflictType, opinions []domain.Opinion[F]) (F, error) {
	return aggregate(relationConflict, ct, opinions)
}

// Harmony measures the agreement within a set of opinions, weighted by
// how certain they are.
func Harmony[F domain.Float](ct domain.ConflictType, opinions []domain.Opinion[F]) (F, error) {
	return aggregate(relationHarmony, ct, opinions)
}

// shares splits responsibility for an aggregate relation among sources.
func shares[F domain.Float](rel relation, ct domain.ConflictType, policy domain.SharePolicy, opinions []domain.Opinion[F]) ([]F, error) {
	n := len(opinions)
	out := make([]F, n)
	eps := domain.Epsilon[F]()

	switch policy {
	case domain.ShareProportional:
		values, err := sourceValues(rel, ct, opinions)
		if err != nil {
			return nil, err
		}
		var total F
		for _, v := range values {
			total += v
		}
		if total < eps {
			return out, nil
		}
		for i, v := range values {
			out[i] = v / total
		}
		return out, nil

	case domain.ShareLeaveOneOut, "":
		// Summed aggregates always shrink when a source is removed, so the
		// comparison is made on the averaging counterpart.
		avgType := ct.Averaged()
		whole, err := aggregate(rel, avgType, opinions)
		if err != nil {
			return nil, err
		}
		if whole < eps {
			return out, nil
		}
		for i := range opinions {
			without, err := aggregate(rel, avgType, leaveOut(opinions, i))
			if err != nil {
				return nil, err
			}
			out[i] = 1 - without/whole
		}
		return out, nil
	}

	return nil, fmt.Errorf("unknown share policy %q", policy)
}

// Shares returns each source's share of the total conflict within a set of
// opinions under the given policy.
func Shares[F domain.Float](ct domain.ConflictType, policy domain.SharePolicy, opinions []domain.Opinion[F]) ([]F, error) {
	return shares(relationConflict, ct, policy, opinions)
}

// UncertaintyDifferentials returns each opinion's share of the summed
// uncertainty. Sets without any uncertainty share equally.
func UncertaintyDifferentials[F domain.Float](opinions []domain.Opinion[F]) []F {
	out := make([]F, len(opinions))
	var total F
	for _, op := range opinions {
		total += op.Uncertainty()
	}
	for i, op := range opinions {
		if total < domain.Epsilon[F]() {
			out[i] = 1 / F(len(opinions))
			continue
		}
		out[i] = op.Uncertainty() / total
	}
	return out
}

func leaveOut[T any](items []T, skip int) []T {
	out := make([]T, 0, len(items)-1)
	for i, it := range items {
		if i != skip {
			out = append(out, it)
		}
	}
	return out
}
