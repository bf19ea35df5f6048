package domain

import (
	"time"

	"github.com/google/uuid"
)

// Session is a durable trusted-fusion setup: a fixed set of sources over
// one frame, the rules used to fuse them and revise their trust, and the
// trust state carried from round to round.
type Session struct {
	ID                      uuid.UUID       `json:"id"`
	TenantID                uuid.UUID       `json:"tenant_id"`
	Name                    string          `json:"name"`
	Dimension               int             `json:"dimension"`
	FusionType              FusionType      `json:"fusion_type"`
	RevisionTerms           []RevisionTerm  `json:"revision_terms"`
	SharePolicy             SharePolicy     `json:"share_policy"`
	ReferencePolicy         ReferencePolicy `json:"reference_policy"`
	ScaleByTrustUncertainty bool            `json:"scale_by_trust_uncertainty"`
	PriorWeight             float64         `json:"prior_weight"`
	AgeingRate              float64         `json:"ageing_rate"`
	RoundCount              int             `json:"round_count"`
	Sources                 []Source        `json:"sources,omitempty"`
	CreatedAt               time.Time       `json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`
}

// Source is one observer within a session. Evidence holds the Dirichlet
// evidence accumulated from soft observations and is nil while the source
// only reports explicit opinions.
type Source struct {
	ID        uuid.UUID        `json:"id"`
	SessionID uuid.UUID        `json:"session_id"`
	Name      string           `json:"name"`
	Position  int              `json:"position"`
	Trust     Opinion[float64] `json:"trust"`
	Opinion   Opinion[float64] `json:"opinion"`
	Evidence  []float64        `json:"evidence,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func (s Source) Trusted() TrustedOpinion[float64] {
	return TrustedOpinion[float64]{Trust: s.Trust, Opinion: s.Opinion}
}

// Round records the outcome of one trusted-fusion round.
type Round struct {
	ID         uuid.UUID        `json:"id"`
	SessionID  uuid.UUID        `json:"session_id"`
	Number     int              `json:"number"`
	Fused      Opinion[float64] `json:"fused"`
	Conflict   float64          `json:"conflict"`
	Projection []float64        `json:"projection"`
	Factors    []float64        `json:"revision_factors"`
	CreatedAt  time.Time        `json:"created_at"`
}

type RoundWithDistance struct {
	Round
	Distance float64 `json:"distance"`
}
