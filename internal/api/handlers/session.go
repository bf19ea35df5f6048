package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Harshitk-cp/trustfuse/internal/api/middleware"
	"github.com/Harshitk-cp/trustfuse/internal/domain"
	"github.com/Harshitk-cp/trustfuse/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	defaultRoundLimit = 50
	maxRoundLimit     = 500
)

type SessionHandler struct {
	svc *service.SessionService
}

func NewSessionHandler(svc *service.SessionService) *SessionHandler {
	return &SessionHandler{svc: svc}
}

type createSessionRequest struct {
	Name                    string                 `json:"name"`
	Dimension               int                    `json:"dimension,omitempty"`
	Sources                 []string               `json:"sources"`
	FusionType              domain.FusionType      `json:"fusion_type,omitempty"`
	RevisionTerms           []domain.RevisionTerm  `json:"revision_terms,omitempty"`
	SharePolicy             domain.SharePolicy     `json:"share_policy,omitempty"`
	ReferencePolicy         domain.ReferencePolicy `json:"reference_policy,omitempty"`
	ScaleByTrustUncertainty *bool                  `json:"scale_by_trust_uncertainty,omitempty"`
	PriorWeight             float64                `json:"prior_weight,omitempty"`
	AgeingRate              float64                `json:"ageing_rate,omitempty"`
	InitialTrust            *Opinion               `json:"initial_trust,omitempty"`
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := h.svc.Create(r.Context(), tenant.ID, service.CreateSessionInput{
		Name:                    req.Name,
		Dimension:               req.Dimension,
		Sources:                 req.Sources,
		FusionType:              req.FusionType,
		RevisionTerms:           req.RevisionTerms,
		SharePolicy:             req.SharePolicy,
		ReferencePolicy:         req.ReferencePolicy,
		ScaleByTrustUncertainty: req.ScaleByTrustUncertainty,
		PriorWeight:             req.PriorWeight,
		AgeingRate:              req.AgeingRate,
		InitialTrust:            req.InitialTrust,
	})
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (h *SessionHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	sess, err := h.svc.GetByID(r.Context(), id, tenant.ID)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type sourceInputRequest struct {
	Source  string    `json:"source"`
	Opinion *Opinion  `json:"opinion,omitempty"`
	Weights []float64 `json:"weights,omitempty"`
}

type submitRoundRequest struct {
	Inputs []sourceInputRequest `json:"inputs"`
}

// SubmitRound takes one report per source and runs a trusted-fusion round.
func (h *SessionHandler) SubmitRound(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	var req submitRoundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Inputs) == 0 {
		writeError(w, http.StatusBadRequest, "inputs are required")
		return
	}

	inputs := make([]service.SourceInput, len(req.Inputs))
	for i, in := range req.Inputs {
		inputs[i] = service.SourceInput{Source: in.Source, Opinion: in.Opinion, Weights: in.Weights}
	}

	round, err := h.svc.SubmitRound(r.Context(), id, tenant.ID, inputs)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, round)
}

func (h *SessionHandler) ListRounds(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rounds, err := h.svc.ListRounds(r.Context(), id, tenant.ID, limit)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	if rounds == nil {
		rounds = []domain.Round{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rounds": rounds})
}

// Similar returns past rounds whose consensus is closest to the given
// projection, e.g. ?projection=0.7,0.3&limit=5.
func (h *SessionHandler) Similar(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	raw := r.URL.Query().Get("projection")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "projection is required")
		return
	}
	var projection []float64
	for _, part := range strings.Split(raw, ",") {
		p, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid projection")
			return
		}
		projection = append(projection, p)
	}

	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rounds, err := h.svc.FindSimilarRounds(r.Context(), id, tenant.ID, projection, limit)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	if rounds == nil {
		rounds = []domain.RoundWithDistance{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rounds": rounds})
}

func parseLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultRoundLimit, nil
	}
	limit, err := strconv.Atoi(v)
	if err != nil || limit <= 0 {
		return 0, errors.New("invalid limit")
	}
	if limit > maxRoundLimit {
		limit = maxRoundLimit
	}
	return limit, nil
}

func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, service.ErrSessionConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrSessionNameEmpty),
		errors.Is(err, service.ErrSessionNoSources),
		errors.Is(err, service.ErrDuplicateSource),
		errors.Is(err, service.ErrUnknownSource),
		errors.Is(err, service.ErrInvalidSourceInput),
		errors.Is(err, service.ErrInvalidSessionInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeAlgebraError(w, err)
	}
}
