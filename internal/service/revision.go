package service

import (
	"errors"
	"fmt"

	"github.com/Harshitk-cp/trustfuse/internal/domain"
)

var ErrUnsupportedRevisionType = errors.New("unsupported revision type")

// RevisionOptions selects the normalisations used by the share-based and
// reference-based revision types.
type RevisionOptions struct {
	Shares    domain.SharePolicy
	Reference domain.ReferencePolicy
	// ScaleByTrustUncertainty multiplies every term weight by the mean
	// uncertainty of the sources' trust, so revision slows down as trust
	// evidence accumulates.
	ScaleByTrustUncertainty bool
}

func DefaultRevisionOptions() RevisionOptions {
	return RevisionOptions{
		Shares:    domain.ShareLeaveOneOut,
		Reference: domain.ReferenceLeaveOneOut,
	}
}

// RevisionFactors computes the summed revision factor for every source.
// A positive factor moves a source toward distrust, a negative one toward
// trust. fusionType is the rule used to build references for the
// reference-fusion revision types.
func RevisionFactors[F domain.Float](
	fusionType domain.FusionType,
	terms []domain.RevisionTerm,
	opts RevisionOptions,
	trusted []domain.TrustedOpinion[F],
) ([]F, error) {
	n := len(trusted)
	factors := make([]F, n)
	if n == 0 || len(terms) == 0 {
		return factors, nil
	}

	raw := make([]domain.Opinion[F], n)
	discounted := make([]domain.Opinion[F], n)
	var trustUncertainty F
	for i, t := range trusted {
		raw[i] = t.Opinion
		discounted[i] = t.DiscountedOpinion()
		trustUncertainty += t.Trust.Uncertainty()
	}
	trustUncertainty /= F(n)

	for _, term := range terms {
		if err := term.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedRevisionType, err)
		}
		values, err := termFactors(fusionType, term, opts, raw, discounted)
		if err != nil {
			return nil, fmt.Errorf("revision term %s: %w", term, err)
		}
		weight := F(term.Weight)
		if opts.ScaleByTrustUncertainty {
			weight *= trustUncertainty
		}
		for i, v := range values {
			factors[i] += weight * v
		}
	}
	return factors, nil
}

func termFactors[F domain.Float](
	fusionType domain.FusionType,
	term domain.RevisionTerm,
	opts RevisionOptions,
	raw, discounted []domain.Opinion[F],
) ([]F, error) {
	switch term.Type {
	case domain.RevisionNormal:
		return sourceValues(relationConflict, term.Conflict, discounted)
	case domain.RevisionHarmonyNormal:
		values, err := sourceValues(relationHarmony, term.Conflict, discounted)
		return negate(values), err
	case domain.RevisionConflictShares:
		return shareFactors(relationConflict, term.Conflict, opts.Shares, false, discounted)
	case domain.RevisionConflictSharesAllowNegative:
		return shareFactors(relationConflict, term.Conflict, opts.Shares, true, discounted)
	case domain.RevisionHarmonyShares:
		values, err := shareFactors(relationHarmony, term.Conflict, opts.Shares, false, discounted)
		return negate(values), err
	case domain.RevisionHarmonySharesAllowNegative:
		values, err := shareFactors(relationHarmony, term.Conflict, opts.Shares, true, discounted)
		return negate(values), err
	case domain.RevisionReferenceFusion:
		return referenceFactors(relationConflict, fusionType, term.Conflict, opts.Reference, raw, discounted)
	case domain.RevisionHarmonyReferenceFusion:
		values, err := referenceFactors(relationHarmony, fusionType, term.Conflict, opts.Reference, raw, discounted)
		return negate(values), err
	}
	return nil, fmt.Errorf("%q: %w", term.Type, ErrUnsupportedRevisionType)
}

// shareFactors distributes the aggregate relation over sources by their
// shares. Negative shares are dropped unless allowNegative is set.
func shareFactors[F domain.Float](
	rel relation,
	ct domain.ConflictType,
	policy domain.SharePolicy,
	allowNegative bool,
	discounted []domain.Opinion[F],
) ([]F, error) {
	total, err := aggregate(rel, ct, discounted)
	if err != nil {
		return nil, err
	}
	sh, err := shares(rel, ct, policy, discounted)
	if err != nil {
		return nil, err
	}
	out := make([]F, len(sh))
	for i, s := range sh {
		if s < 0 && !allowNegative {
			s = 0
		}
		out[i] = total * s
	}
	return out, nil
}

// referenceFactors compares every source's own opinion with a fused
// reference built from the discounted opinions.
func referenceFactors[F domain.Float](
	rel relation,
	fusionType domain.FusionType,
	ct domain.ConflictType,
	policy domain.ReferencePolicy,
	raw, discounted []domain.Opinion[F],
) ([]F, error) {
	n := len(raw)
	out := make([]F, n)
	if n < 2 {
		return out, nil
	}

	switch policy {
	case domain.ReferenceLeaveOneOut, "":
		for i := range raw {
			ref, err := FuseOpinions(fusionType, leaveOut(discounted, i))
			if err != nil {
				return nil, err
			}
			v, err := pairValue(rel, ct, raw[i], ref)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case domain.ReferenceJoint:
		ref, err := FuseOpinions(fusionType, discounted)
		if err != nil {
			return nil, err
		}
		values := make([]F, n)
		var avg, highest F
		for i := range raw {
			v, err := pairValue(rel, ct, raw[i], ref)
			if err != nil {
				return nil, err
			}
			values[i] = v
			avg += v
			if v > highest {
				highest = v
			}
		}
		avg /= F(n)
		if highest-avg < domain.Epsilon[F]() {
			return out, nil
		}
		// only sources above the average are revised, the furthest by the maximum
		for i, v := range values {
			if v > avg {
				out[i] = highest * (v - avg) / (highest - avg)
			}
		}
		return out, nil
	}

	return nil, fmt.Errorf("unknown reference policy %q", policy)
}

// ReviseTrusts applies revision factors to the sources' trust opinions.
// Domain opinions are carried over unchanged and the input is not modified.
func ReviseTrusts[F domain.Float](trusted []domain.TrustedOpinion[F], factors []F) ([]domain.TrustedOpinion[F], error) {
	if len(factors) != len(trusted) {
		return nil, fmt.Errorf("%d factors for %d sources: %w", len(factors), len(trusted), ErrSourceCountMismatch)
	}
	out := make([]domain.TrustedOpinion[F], len(trusted))
	for i, t := range trusted {
		trust, err := t.Trust.ReviseTrust(factors[i])
		if err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}
		out[i] = domain.TrustedOpinion[F]{Trust: trust, Opinion: t.Opinion}
	}
	return out, nil
}

// ReviseTrust computes revision factors and applies them in one step.
func ReviseTrust[F domain.Float](
	fusionType domain.FusionType,
	terms []domain.RevisionTerm,
	opts RevisionOptions,
	trusted []domain.TrustedOpinion[F],
) ([]domain.TrustedOpinion[F], error) {
	factors, err := RevisionFactors(fusionType, terms, opts, trusted)
	if err != nil {
		return nil, err
	}
	return ReviseTrusts(trusted, factors)
}

func negate[F domain.Float](values []F) []F {
	for i := range values {
		values[i] = -values[i]
	}
	return values
}
