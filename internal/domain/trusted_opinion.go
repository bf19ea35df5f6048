package domain

import "fmt"

// TrustedOpinion pairs what a source reports with how much that source is
// trusted. Trust is binomial: index 0 is trust, index 1 distrust.
type TrustedOpinion[F Float] struct {
	Trust   Opinion[F] `json:"trust"`
	Opinion Opinion[F] `json:"opinion"`
}

func NewTrustedOpinion[F Float](trust, opinion Opinion[F]) (TrustedOpinion[F], error) {
	if err := trust.requireBinomial(); err != nil {
		return TrustedOpinion[F]{}, fmt.Errorf("trust: %w", err)
	}
	if opinion.Dimension() < 2 {
		return TrustedOpinion[F]{}, ErrInvalidDimension
	}
	return TrustedOpinion[F]{Trust: trust, Opinion: opinion}, nil
}

// DiscountedOpinion is the source's opinion discounted by the projected
// probability of its trust.
func (t TrustedOpinion[F]) DiscountedOpinion() Opinion[F] {
	return t.Opinion.TrustDiscount(t.Trust.BinomialProjection())
}

// RevisePair revises the trust of two sources against each other: both
// trusts move toward distrust by the degree of conflict between their
// discounted opinions, each scaled by its own uncertainty differential.
func (t TrustedOpinion[F]) RevisePair(other TrustedOpinion[F]) (TrustedOpinion[F], TrustedOpinion[F], error) {
	conflict, err := t.DiscountedOpinion().DegreeOfConflict(other.DiscountedOpinion())
	if err != nil {
		return t, other, err
	}

	ownShare := t.Trust.UncertaintyDifferential(other.Trust)
	trust, err := t.Trust.ReviseTrust(ownShare * conflict)
	if err != nil {
		return t, other, err
	}
	otherTrust, err := other.Trust.ReviseTrust((1 - ownShare) * conflict)
	if err != nil {
		return t, other, err
	}

	return TrustedOpinion[F]{Trust: trust, Opinion: t.Opinion},
		TrustedOpinion[F]{Trust: otherTrust, Opinion: other.Opinion}, nil
}
