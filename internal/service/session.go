package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Harshitk-cp/trustfuse/internal/domain"
	"github.com/Harshitk-cp/trustfuse/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionConflict     = errors.New("session with this name already exists")
	ErrSessionNameEmpty    = errors.New("name is required")
	ErrSessionNoSources    = errors.New("at least one source is required")
	ErrDuplicateSource     = errors.New("source names must be unique")
	ErrUnknownSource       = errors.New("unknown source")
	ErrInvalidSourceInput  = errors.New("each source needs exactly one of opinion or weights")
	ErrInvalidSessionInput = errors.New("invalid session configuration")
)

// SessionDefaults fill in whatever a new session leaves unset.
type SessionDefaults struct {
	FusionType    domain.FusionType
	RevisionTerms []domain.RevisionTerm
	Options       RevisionOptions
	// PriorWeight of zero means "use the session dimension".
	PriorWeight float64
	AgeingRate  float64
}

func DefaultSessionDefaults() SessionDefaults {
	return SessionDefaults{
		FusionType: domain.FusionCumulative,
		RevisionTerms: []domain.RevisionTerm{
			{Type: domain.RevisionConflictShares, Conflict: domain.ConflictAverage, Weight: 1},
		},
		Options: DefaultRevisionOptions(),
	}
}

type SessionService struct {
	store    domain.SessionStore
	logger   *zap.Logger
	defaults SessionDefaults
}

func NewSessionService(s domain.SessionStore, defaults SessionDefaults, logger *zap.Logger) *SessionService {
	return &SessionService{store: s, logger: logger, defaults: defaults}
}

// CreateSessionInput describes a new session. Zero-valued fields take the
// service defaults; InitialTrust defaults to vacuous trust.
type CreateSessionInput struct {
	Name                    string
	Dimension               int
	Sources                 []string
	FusionType              domain.FusionType
	RevisionTerms           []domain.RevisionTerm
	SharePolicy             domain.SharePolicy
	ReferencePolicy         domain.ReferencePolicy
	ScaleByTrustUncertainty *bool
	PriorWeight             float64
	AgeingRate              float64
	InitialTrust            *domain.Opinion[float64]
}

func (s *SessionService) Create(ctx context.Context, tenantID uuid.UUID, in CreateSessionInput) (*domain.Session, error) {
	sess, err := s.buildSession(tenantID, in)
	if err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, sess); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrSessionConflict
		}
		return nil, err
	}

	s.logger.Info("session created",
		zap.String("session_id", sess.ID.String()),
		zap.String("fusion_type", string(sess.FusionType)),
		zap.Int("dimension", sess.Dimension),
		zap.Int("sources", len(sess.Sources)))
	return sess, nil
}

func (s *SessionService) buildSession(tenantID uuid.UUID, in CreateSessionInput) (*domain.Session, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrSessionNameEmpty
	}
	if len(in.Sources) == 0 {
		return nil, ErrSessionNoSources
	}
	if in.Dimension == 0 {
		in.Dimension = 2
	}
	if in.Dimension < 2 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSessionInput, domain.ErrInvalidDimension)
	}

	sess := &domain.Session{
		TenantID:                tenantID,
		Name:                    name,
		Dimension:               in.Dimension,
		FusionType:              firstNonEmpty(in.FusionType, s.defaults.FusionType, domain.FusionCumulative),
		RevisionTerms:           in.RevisionTerms,
		SharePolicy:             firstNonEmpty(in.SharePolicy, s.defaults.Options.Shares, domain.ShareLeaveOneOut),
		ReferencePolicy:         firstNonEmpty(in.ReferencePolicy, s.defaults.Options.Reference, domain.ReferenceLeaveOneOut),
		ScaleByTrustUncertainty: s.defaults.Options.ScaleByTrustUncertainty,
		PriorWeight:             in.PriorWeight,
		AgeingRate:              in.AgeingRate,
	}
	if in.ScaleByTrustUncertainty != nil {
		sess.ScaleByTrustUncertainty = *in.ScaleByTrustUncertainty
	}
	if sess.RevisionTerms == nil {
		sess.RevisionTerms = s.defaults.RevisionTerms
	}
	if sess.PriorWeight == 0 {
		sess.PriorWeight = s.defaults.PriorWeight
	}
	if sess.PriorWeight == 0 {
		sess.PriorWeight = float64(sess.Dimension)
	}
	if sess.AgeingRate == 0 {
		sess.AgeingRate = s.defaults.AgeingRate
	}

	switch {
	case !domain.ValidFusionType(string(sess.FusionType)):
		return nil, fmt.Errorf("%w: fusion type %q", ErrInvalidSessionInput, sess.FusionType)
	case !domain.ValidSharePolicy(string(sess.SharePolicy)):
		return nil, fmt.Errorf("%w: share policy %q", ErrInvalidSessionInput, sess.SharePolicy)
	case !domain.ValidReferencePolicy(string(sess.ReferencePolicy)):
		return nil, fmt.Errorf("%w: reference policy %q", ErrInvalidSessionInput, sess.ReferencePolicy)
	case sess.PriorWeight < 0:
		return nil, fmt.Errorf("%w: %v", ErrInvalidSessionInput, domain.ErrInvalidPrior)
	case sess.AgeingRate < 0:
		return nil, fmt.Errorf("%w: ageing rate must not be negative", ErrInvalidSessionInput)
	}
	for _, t := range sess.RevisionTerms {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSessionInput, err)
		}
	}

	trust := domain.VacuousTrust[float64]()
	if in.InitialTrust != nil {
		if in.InitialTrust.Dimension() != 2 {
			return nil, fmt.Errorf("%w: initial trust: %v", ErrInvalidSessionInput, domain.ErrNotBinomial)
		}
		trust = *in.InitialTrust
	}
	opinion, err := domain.VacuousOpinion[float64](sess.Dimension)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSessionInput, err)
	}

	seen := make(map[string]bool, len(in.Sources))
	for i, srcName := range in.Sources {
		srcName = strings.TrimSpace(srcName)
		if srcName == "" || seen[srcName] {
			return nil, ErrDuplicateSource
		}
		seen[srcName] = true
		sess.Sources = append(sess.Sources, domain.Source{
			Name:     srcName,
			Position: i,
			Trust:    trust,
			Opinion:  opinion,
		})
	}
	return sess, nil
}

func (s *SessionService) GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*domain.Session, error) {
	sess, err := s.store.GetByID(ctx, id, tenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return sess, nil
}

// SourceInput is what one source reports in a round: either an explicit
// opinion or a soft observation (weights summing to 1) folded into the
// source's Dirichlet evidence.
type SourceInput struct {
	Source  string
	Opinion *domain.Opinion[float64]
	Weights []float64
}

// SubmitRound runs one trusted-fusion round for the session and persists
// the revised trust together with the round record.
func (s *SessionService) SubmitRound(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, inputs []SourceInput) (*domain.Round, error) {
	round, err := s.store.ApplyRound(ctx, id, tenantID, func(sess *domain.Session) (*domain.Round, error) {
		return runRound(sess, inputs)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	s.logger.Debug("round applied",
		zap.String("session_id", id.String()),
		zap.Int("round", round.Number),
		zap.Float64("conflict", round.Conflict),
		zap.Float64s("projection", round.Projection),
		zap.Float64s("revision_factors", round.Factors))
	return round, nil
}

// runRound updates the session's sources in place and returns the round.
func runRound(sess *domain.Session, inputs []SourceInput) (*domain.Round, error) {
	if len(inputs) != len(sess.Sources) {
		return nil, fmt.Errorf("%d inputs for %d sources: %w", len(inputs), len(sess.Sources), ErrSourceCountMismatch)
	}

	index := make(map[string]int, len(sess.Sources))
	for i, src := range sess.Sources {
		index[src.Name] = i
	}
	updated := make([]domain.Source, len(sess.Sources))
	copy(updated, sess.Sources)
	seen := make(map[int]bool, len(inputs))

	for _, in := range inputs {
		i, ok := index[in.Source]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownSource, in.Source)
		}
		if seen[i] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateSource, in.Source)
		}
		seen[i] = true

		src, err := applyInput(sess, updated[i], in)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", in.Source, err)
		}
		updated[i] = src
	}

	trusted := make([]domain.TrustedOpinion[float64], len(updated))
	for i, src := range updated {
		trusted[i] = src.Trusted()
	}

	opts := RevisionOptions{
		Shares:                  sess.SharePolicy,
		Reference:               sess.ReferencePolicy,
		ScaleByTrustUncertainty: sess.ScaleByTrustUncertainty,
	}
	conflictType := domain.ConflictAverage
	if len(sess.RevisionTerms) > 0 {
		conflictType = sess.RevisionTerms[0].Conflict
	}
	conflict, err := Conflict(conflictType, DiscountedOpinions(trusted))
	if err != nil {
		return nil, err
	}

	factors, err := RevisionFactors(sess.FusionType, sess.RevisionTerms, opts, trusted)
	if err != nil {
		return nil, err
	}
	revised, err := ReviseTrusts(trusted, factors)
	if err != nil {
		return nil, err
	}
	fused, err := TrustedFuse(sess.FusionType, revised)
	if err != nil {
		return nil, err
	}

	for i := range updated {
		updated[i].Trust = revised[i].Trust
	}
	sess.Sources = updated
	sess.RoundCount++

	return &domain.Round{
		SessionID:  sess.ID,
		Number:     sess.RoundCount,
		Fused:      fused,
		Conflict:   conflict,
		Projection: fused.Projection(),
		Factors:    factors,
	}, nil
}

func applyInput(sess *domain.Session, src domain.Source, in SourceInput) (domain.Source, error) {
	switch {
	case in.Opinion != nil && in.Weights == nil:
		if in.Opinion.Dimension() != sess.Dimension {
			return src, domain.ErrDimensionMismatch
		}
		src.Opinion = *in.Opinion
		// later soft observations continue from the reported opinion
		src.Evidence = nil
		if !src.Opinion.IsDogmatic() {
			evidence, err := src.Opinion.Evidence(sess.PriorWeight)
			if err != nil {
				return src, err
			}
			src.Evidence = evidence
		}
		return src, nil

	case in.Opinion == nil && in.Weights != nil:
		evidence := src.Evidence
		if evidence == nil {
			evidence = make([]float64, sess.Dimension)
		}
		dir, err := domain.NewDirichletWithPrior(evidence, src.Opinion.BaseRate(), sess.PriorWeight)
		if err != nil {
			return src, err
		}
		if err := dir.MomentMatchingUpdateInPlace(in.Weights); err != nil {
			return src, err
		}
		src.Evidence = dir.Evidence()
		src.Opinion = dir.AsOpinion()
		return src, nil
	}
	return src, ErrInvalidSourceInput
}

func (s *SessionService) ListRounds(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, limit int) ([]domain.Round, error) {
	if _, err := s.GetByID(ctx, id, tenantID); err != nil {
		return nil, err
	}
	return s.store.ListRounds(ctx, id, tenantID, limit)
}

// FindSimilarRounds looks up past rounds whose consensus projection is
// nearest to projection.
func (s *SessionService) FindSimilarRounds(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, projection []float64, limit int) ([]domain.RoundWithDistance, error) {
	sess, err := s.GetByID(ctx, id, tenantID)
	if err != nil {
		return nil, err
	}
	if len(projection) != sess.Dimension {
		return nil, fmt.Errorf("%w: projection has %d entries, session dimension is %d",
			ErrInvalidSessionInput, len(projection), sess.Dimension)
	}
	vec := make([]float32, len(projection))
	for i, p := range projection {
		vec[i] = float32(p)
	}
	return s.store.FindSimilarRounds(ctx, id, tenantID, vec, limit)
}

func firstNonEmpty[T ~string](values ...T) T {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
