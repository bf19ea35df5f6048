package service

import (
	"errors"

	"github.com/Harshitk-cp/trustfuse/internal/domain"
)

var ErrSourceCountMismatch = errors.New("number of sources does not match")

// DiscountedOpinions returns every source's opinion discounted by its trust.
func DiscountedOpinions[F domain.Float](trusted []domain.TrustedOpinion[F]) []domain.Opinion[F] {
	out := make([]domain.Opinion[F], len(trusted))
	for i, t := range trusted {
		out[i] = t.DiscountedOpinion()
	}
	return out
}

// TrustedFuse discounts every source by its trust and fuses the results.
func TrustedFuse[F domain.Float](fusionType domain.FusionType, trusted []domain.TrustedOpinion[F]) (domain.Opinion[F], error) {
	if len(trusted) == 0 {
		return domain.Opinion[F]{}, ErrNoOpinions
	}
	return FuseOpinions(fusionType, DiscountedOpinions(trusted))
}

// TrustedFuseAndRevise runs one round: trust is revised from the
// disagreement between the currently discounted opinions, then the
// opinions are discounted by the revised trust and fused. It returns the
// fused opinion and the revised sources; the input slice is not modified.
func TrustedFuseAndRevise[F domain.Float](
	fusionType domain.FusionType,
	terms []domain.RevisionTerm,
	opts RevisionOptions,
	trusted []domain.TrustedOpinion[F],
) (domain.Opinion[F], []domain.TrustedOpinion[F], error) {
	if len(trusted) == 0 {
		return domain.Opinion[F]{}, nil, ErrNoOpinions
	}

	revised, err := ReviseTrust(fusionType, terms, opts, trusted)
	if err != nil {
		return domain.Opinion[F]{}, nil, err
	}
	fused, err := TrustedFuse(fusionType, revised)
	if err != nil {
		return domain.Opinion[F]{}, nil, err
	}
	return fused, revised, nil
}

// TrustedFuseAndReviseInPlace is TrustedFuseAndRevise writing the revised
// trust back into trusted.
func TrustedFuseAndReviseInPlace[F domain.Float](
	fusionType domain.FusionType,
	terms []domain.RevisionTerm,
	opts RevisionOptions,
	trusted []domain.TrustedOpinion[F],
) (domain.Opinion[F], error) {
	fused, revised, err := TrustedFuseAndRevise(fusionType, terms, opts, trusted)
	if err != nil {
		return domain.Opinion[F]{}, err
	}
	copy(trusted, revised)
	return fused, nil
}
