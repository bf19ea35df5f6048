package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Harshitk-cp/trustfuse/internal/domain"
	"github.com/Harshitk-cp/trustfuse/internal/service"
)

type Opinion = domain.Opinion[float64]

// OpinionHandler exposes the stateless opinion algebra.
type OpinionHandler struct {
	defaults service.SessionDefaults
}

func NewOpinionHandler(defaults service.SessionDefaults) *OpinionHandler {
	return &OpinionHandler{defaults: defaults}
}

type fuseRequest struct {
	FusionType domain.FusionType `json:"fusion_type"`
	Opinions   []Opinion         `json:"opinions"`
}

type opinionResponse struct {
	Opinion    Opinion   `json:"opinion"`
	Projection []float64 `json:"projection"`
}

func newOpinionResponse(op Opinion) opinionResponse {
	return opinionResponse{Opinion: op, Projection: op.Projection()}
}

func (h *OpinionHandler) Fuse(w http.ResponseWriter, r *http.Request) {
	var req fuseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.FusionType == "" {
		req.FusionType = h.defaults.FusionType
	}

	fused, err := service.FuseOpinions(req.FusionType, req.Opinions)
	if err != nil {
		writeAlgebraError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOpinionResponse(fused))
}

type conflictRequest struct {
	ConflictType domain.ConflictType `json:"conflict_type"`
	SharePolicy  domain.SharePolicy  `json:"share_policy"`
	Opinions     []Opinion           `json:"opinions"`
}

type conflictResponse struct {
	Conflict float64   `json:"conflict"`
	Harmony  float64   `json:"harmony"`
	Shares   []float64 `json:"shares"`
}

func (h *OpinionHandler) Conflict(w http.ResponseWriter, r *http.Request) {
	var req conflictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ConflictType == "" {
		req.ConflictType = domain.ConflictAverage
	}
	if req.SharePolicy == "" {
		req.SharePolicy = h.defaults.Options.Shares
	}

	conflict, err := service.Conflict(req.ConflictType, req.Opinions)
	if err != nil {
		writeAlgebraError(w, err)
		return
	}
	harmony, err := service.Harmony(req.ConflictType, req.Opinions)
	if err != nil {
		writeAlgebraError(w, err)
		return
	}
	shares, err := service.Shares(req.ConflictType, req.SharePolicy, req.Opinions)
	if err != nil {
		writeAlgebraError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conflictResponse{Conflict: conflict, Harmony: harmony, Shares: shares})
}

type discountRequest struct {
	Opinion Opinion  `json:"opinion"`
	Factor  *float64 `json:"factor,omitempty"`
	Trust   *Opinion `json:"trust,omitempty"`
	Limit   *float64 `json:"limit,omitempty"`
}

// Discount discounts an opinion either by an explicit factor or by the
// projection of a trust opinion, optionally capping the resulting
// uncertainty.
func (h *OpinionHandler) Discount(w http.ResponseWriter, r *http.Request) {
	var req discountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := requireOperand("opinion", req.Opinion); err != nil {
		writeAlgebraError(w, err)
		return
	}

	var factor float64
	switch {
	case req.Factor != nil && req.Trust == nil:
		factor = *req.Factor
	case req.Trust != nil && req.Factor == nil:
		if req.Trust.Dimension() != 2 {
			writeError(w, http.StatusBadRequest, domain.ErrNotBinomial.Error())
			return
		}
		factor = req.Trust.BinomialProjection()
	default:
		writeError(w, http.StatusBadRequest, "exactly one of factor or trust is required")
		return
	}

	var out Opinion
	if req.Limit != nil {
		out = req.Opinion.LimitedTrustDiscount(*req.Limit, factor)
	} else {
		out = req.Opinion.TrustDiscount(factor)
	}
	writeJSON(w, http.StatusOK, newOpinionResponse(out))
}

type unfuseRequest struct {
	Fused   Opinion `json:"fused"`
	Removed Opinion `json:"removed"`
}

func (h *OpinionHandler) Unfuse(w http.ResponseWriter, r *http.Request) {
	var req unfuseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := requireOperand("fused", req.Fused); err != nil {
		writeAlgebraError(w, err)
		return
	}
	if err := requireOperand("removed", req.Removed); err != nil {
		writeAlgebraError(w, err)
		return
	}
	out, err := req.Fused.CumUnfuse(req.Removed)
	if err != nil {
		writeAlgebraError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOpinionResponse(out))
}

// requireOperand rejects an operand left at its zero value because the
// field was missing from the request body.
func requireOperand(name string, op Opinion) error {
	if err := op.Validate(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

type barycentricRequest struct {
	Opinions []Opinion `json:"opinions"`
}

type point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (h *OpinionHandler) Barycentric(w http.ResponseWriter, r *http.Request) {
	var req barycentricRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	points := make([]point, 0, len(req.Opinions))
	for _, op := range req.Opinions {
		x, y, err := domain.Barycentric(op)
		if err != nil {
			writeAlgebraError(w, err)
			return
		}
		points = append(points, point{X: x, Y: y})
	}
	writeJSON(w, http.StatusOK, map[string]any{"points": points})
}

type trustedFuseRequest struct {
	FusionType      domain.FusionType                `json:"fusion_type"`
	RevisionTerms   []domain.RevisionTerm            `json:"revision_terms"`
	SharePolicy     domain.SharePolicy               `json:"share_policy"`
	ReferencePolicy domain.ReferencePolicy           `json:"reference_policy"`
	Sources         []domain.TrustedOpinion[float64] `json:"sources"`
}

type trustedFuseResponse struct {
	Fused           opinionResponse                  `json:"fused"`
	RevisionFactors []float64                        `json:"revision_factors"`
	Sources         []domain.TrustedOpinion[float64] `json:"sources"`
}

// TrustedFuse runs a single stateless trusted-fusion round: the caller
// passes the trusted opinions in and gets the revised ones back.
func (h *OpinionHandler) TrustedFuse(w http.ResponseWriter, r *http.Request) {
	var req trustedFuseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.FusionType == "" {
		req.FusionType = h.defaults.FusionType
	}
	if req.RevisionTerms == nil {
		req.RevisionTerms = h.defaults.RevisionTerms
	}
	opts := h.defaults.Options
	if req.SharePolicy != "" {
		opts.Shares = req.SharePolicy
	}
	if req.ReferencePolicy != "" {
		opts.Reference = req.ReferencePolicy
	}
	for _, src := range req.Sources {
		if src.Trust.Dimension() != 2 {
			writeError(w, http.StatusBadRequest, "trust: "+domain.ErrNotBinomial.Error())
			return
		}
		if src.Opinion.Dimension() < 2 {
			writeError(w, http.StatusBadRequest, "opinion: "+domain.ErrInvalidDimension.Error())
			return
		}
	}

	factors, err := service.RevisionFactors(req.FusionType, req.RevisionTerms, opts, req.Sources)
	if err != nil {
		writeAlgebraError(w, err)
		return
	}
	revised, err := service.ReviseTrusts(req.Sources, factors)
	if err != nil {
		writeAlgebraError(w, err)
		return
	}
	fused, err := service.TrustedFuse(req.FusionType, revised)
	if err != nil {
		writeAlgebraError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trustedFuseResponse{
		Fused:           newOpinionResponse(fused),
		RevisionFactors: factors,
		Sources:         revised,
	})
}

// writeAlgebraError maps engine errors to client errors; anything else is
// reported as an internal failure.
func writeAlgebraError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNoOpinions),
		errors.Is(err, service.ErrUnsupportedFusionType),
		errors.Is(err, service.ErrUnsupportedConflictType),
		errors.Is(err, service.ErrUnsupportedRevisionType),
		errors.Is(err, service.ErrSourceCountMismatch),
		errors.Is(err, domain.ErrInvalidDimension),
		errors.Is(err, domain.ErrDimensionMismatch),
		errors.Is(err, domain.ErrNotBinomial),
		errors.Is(err, domain.ErrNegativeMass),
		errors.Is(err, domain.ErrBeliefSumExceeded),
		errors.Is(err, domain.ErrInvalidBaseRate),
		errors.Is(err, domain.ErrInvalidWeights),
		errors.Is(err, domain.ErrInvalidEvidence),
		errors.Is(err, domain.ErrInvalidPrior),
		errors.Is(err, domain.ErrNonFinite):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrDegenerateOperation):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
